package brokercfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
listen:
  addr: ":9100"
servers:
  - name: files
    command: npx
    args: ["-y", "server-filesystem", "/data"]
    env:
      LOG_LEVEL: debug
  - name: search
    endpoint: https://search.example.com/mcp
    timeout: 5s
    bearer_token: ${SEARCH_TOKEN}
    headers:
      X-Team: platform
`

func TestParse(t *testing.T) {
	t.Setenv("SEARCH_TOKEN", "sekret")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Listen.Addr)
	assert.Equal(t, "/mcp", cfg.Listen.Path)
	require.Len(t, cfg.Servers, 2)

	files := cfg.Servers[0]
	assert.Equal(t, "files", files.Name)
	assert.Equal(t, "npx", files.Command)
	assert.Equal(t, []string{"-y", "server-filesystem", "/data"}, files.Args)
	assert.Equal(t, 30*time.Second, files.Timeout)

	search := cfg.Servers[1]
	assert.Equal(t, "https://search.example.com/mcp", search.Endpoint)
	assert.Equal(t, 5*time.Second, search.Timeout)
	assert.Equal(t, "sekret", search.BearerToken)
	assert.Equal(t, "platform", search.Headers["X-Team"])
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Servers, 2)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestValidateRejectsBadEntries(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no servers",
			yaml: "servers: []",
			want: "at least one server",
		},
		{
			name: "missing name",
			yaml: "servers:\n  - command: npx",
			want: "name is required",
		},
		{
			name: "duplicate name",
			yaml: "servers:\n  - name: a\n    command: npx\n  - name: a\n    command: npx",
			want: "duplicate server name",
		},
		{
			name: "both transports",
			yaml: "servers:\n  - name: a\n    command: npx\n    endpoint: https://x/mcp",
			want: "mutually exclusive",
		},
		{
			name: "no transport",
			yaml: "servers:\n  - name: a",
			want: "either command or endpoint",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestDescriptorsPreserveOrder(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	descs := cfg.Descriptors(nil)
	require.Len(t, descs, 2)
	assert.Equal(t, "files", descs[0].Name)
	assert.Equal(t, "search", descs[1].Name)
	assert.NotNil(t, descs[0].Connector)
}
