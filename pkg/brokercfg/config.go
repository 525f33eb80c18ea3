// Package brokercfg loads broker configuration from YAML and turns the
// declared servers into connector-backed descriptors ready for registration.
package brokercfg

import (
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/relaygear/toolbroker/pkg/mcpconn"
	"github.com/relaygear/toolbroker/pkg/toolbroker"
)

// Config is the root of the broker configuration file.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Servers []ServerEntry `yaml:"servers"`
}

// ListenConfig controls the HTTP serving mode.
type ListenConfig struct {
	// Addr is the listen address for HTTP mode. Defaults to ":8700".
	Addr string `yaml:"addr"`
	// Path is the mount point of the Streamable endpoint. Defaults to "/mcp".
	Path string `yaml:"path"`
}

// ServerEntry declares one brokered server. Exactly one of Command or
// Endpoint must be set; Command selects the stdio transport and Endpoint the
// streamable HTTP transport.
type ServerEntry struct {
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`

	// Stdio transport.
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`

	// HTTP transport.
	Endpoint    string            `yaml:"endpoint"`
	Headers     map[string]string `yaml:"headers"`
	BearerToken string            `yaml:"bearer_token"`
	MaxRetries  int               `yaml:"max_retries"`
	PreferSSE   *bool             `yaml:"prefer_sse"`
}

// Load reads, expands, and validates a configuration file. ${VAR} patterns
// are replaced with environment variable values before parsing, so secrets
// stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("brokercfg: reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw configuration bytes.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("brokercfg: parsing config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.Addr == "" {
		cfg.Listen.Addr = ":8700"
	}
	if cfg.Listen.Path == "" {
		cfg.Listen.Path = "/mcp"
	}
	for i := range cfg.Servers {
		if cfg.Servers[i].Timeout == 0 {
			cfg.Servers[i].Timeout = 30 * time.Second
		}
	}
}

// Validate checks structural requirements: at least one server, unique
// non-empty names, and exactly one transport per server.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Servers) == 0 {
		errs = append(errs, "at least one server must be configured")
	}
	seen := make(map[string]bool, len(c.Servers))
	for i, entry := range c.Servers {
		label := entry.Name
		if label == "" {
			label = fmt.Sprintf("servers[%d]", i)
			errs = append(errs, fmt.Sprintf("%s: name is required", label))
		}
		if seen[entry.Name] && entry.Name != "" {
			errs = append(errs, fmt.Sprintf("%s: duplicate server name", label))
		}
		seen[entry.Name] = true

		hasCommand := entry.Command != ""
		hasEndpoint := entry.Endpoint != ""
		switch {
		case hasCommand && hasEndpoint:
			errs = append(errs, fmt.Sprintf("%s: command and endpoint are mutually exclusive", label))
		case !hasCommand && !hasEndpoint:
			errs = append(errs, fmt.Sprintf("%s: either command or endpoint is required", label))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("brokercfg: invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Descriptors builds connector-backed server descriptors for every declared
// server, in file order.
func (c *Config) Descriptors(logger *zap.Logger) []toolbroker.ServerDescriptor {
	descs := make([]toolbroker.ServerDescriptor, 0, len(c.Servers))
	for _, entry := range c.Servers {
		descs = append(descs, mcpconn.New(entry.Name, entry.connectorConfig(), logger).Descriptor())
	}
	return descs
}

func (e *ServerEntry) connectorConfig() mcpconn.ServerConfig {
	base := mcpconn.BaseConfig{Timeout: e.Timeout}
	if e.Command != "" {
		return &mcpconn.StdioConfig{
			BaseConfig: base,
			Command:    e.Command,
			Args:       e.Args,
			Env:        e.Env,
		}
	}
	headers := http.Header{}
	for k, v := range e.Headers {
		headers.Set(k, v)
	}
	if e.BearerToken != "" {
		headers.Set("Authorization", "Bearer "+e.BearerToken)
	}
	if len(headers) == 0 {
		headers = nil
	}
	return &mcpconn.HTTPConfig{
		BaseConfig: base,
		Endpoint:   e.Endpoint,
		Headers:    headers,
		MaxRetries: e.MaxRetries,
		PreferSSE:  e.PreferSSE,
	}
}
