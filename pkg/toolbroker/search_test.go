package toolbroker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchFixture(t *testing.T) *Broker {
	t.Helper()
	alpha := &fakeConnector{ops: []OperationDescriptor{
		opDesc("search_docs", "Search the documentation index for matching documents"),
		opDesc("read_doc", "Read a single document by identifier"),
	}}
	beta := &fakeConnector{ops: []OperationDescriptor{
		opDesc("send_email", "Send an email message to a recipient"),
		opDesc("list_inbox", "List messages in the inbox"),
	}}
	b := newTestBroker(t,
		ServerDescriptor{Name: "alpha", Connector: alpha},
		ServerDescriptor{Name: "beta", Connector: beta},
	)
	ctx := context.Background()
	_, err := b.Connect(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, b.EnsureConnected(ctx, "beta"))
	return b
}

func TestSearchExactNameMatchScoresOne(t *testing.T) {
	t.Parallel()

	b := searchFixture(t)
	results := b.Search("search_docs", 0, 0)
	require.NotEmpty(t, results)
	assert.Equal(t, "search_docs", results[0].Operation.Name)
	assert.Equal(t, 1.0, results[0].Score)
	for _, r := range results[1:] {
		assert.LessOrEqual(t, r.Score, results[0].Score)
	}
}

func TestSearchExactMatchIgnoresSeparatorStyle(t *testing.T) {
	t.Parallel()

	b := searchFixture(t)
	for _, query := range []string{"search docs", "searchDocs", "Search Docs"} {
		results := b.Search(query, 1, 0)
		require.NotEmpty(t, results, "query %q", query)
		assert.Equal(t, "search_docs", results[0].Operation.Name, "query %q", query)
		assert.Equal(t, 1.0, results[0].Score, "query %q", query)
	}
}

func TestSearchRanksRelatedAboveUnrelated(t *testing.T) {
	t.Parallel()

	b := searchFixture(t)
	results := b.Search("find documents", 0, 0)
	require.NotEmpty(t, results)

	rank := func(name string) int {
		for i, r := range results {
			if r.Operation.Name == name {
				return i
			}
		}
		return -1
	}
	docsRank, emailRank := rank("search_docs"), rank("send_email")
	require.NotEqual(t, -1, docsRank)
	require.NotEqual(t, -1, emailRank)
	assert.Less(t, docsRank, emailRank)
}

func TestSearchIsDeterministic(t *testing.T) {
	t.Parallel()

	b := searchFixture(t)
	first := b.Search("message", 0, 0)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, b.Search("message", 0, 0))
	}
}

func TestSearchTiesKeepDeclarationOrder(t *testing.T) {
	t.Parallel()

	b := searchFixture(t)
	// An unmatched query scores everything 0; order must be server
	// declaration order, then per-server insertion order.
	results := b.Search("zzzz", 0, 0)
	require.Len(t, results, 4)
	keys := make([]string, len(results))
	for i, r := range results {
		keys[i] = r.Operation.Key()
	}
	assert.Equal(t, []string{
		"alpha:search_docs",
		"alpha:read_doc",
		"beta:send_email",
		"beta:list_inbox",
	}, keys)
}

func TestSearchLimitAndMinScore(t *testing.T) {
	t.Parallel()

	b := searchFixture(t)

	limited := b.Search("document", 2, 0)
	assert.Len(t, limited, 2)

	filtered := b.Search("document", 0, 0.5)
	for _, r := range filtered {
		assert.GreaterOrEqual(t, r.Score, 0.5)
	}
	assert.NotEmpty(t, filtered)
	assert.Less(t, len(filtered), 4)
}

func TestSearchIncludesDisconnectedServers(t *testing.T) {
	t.Parallel()

	b := searchFixture(t)
	require.NoError(t, b.Disconnect(context.Background(), "beta"))

	results := b.Search("send_email", 1, 0)
	require.NotEmpty(t, results)
	assert.Equal(t, "beta:send_email", results[0].Operation.Key())
}

func TestSearchEmptyQueryScoresZero(t *testing.T) {
	t.Parallel()

	b := searchFixture(t)
	results := b.Search("", 0, 0.01)
	assert.Empty(t, results)
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"search_docs":     {"search", "docs"},
		"searchDocs":      {"search", "docs"},
		"Search the Docs": {"search", "the", "docs"},
		"HTTP2Server":     {"http2", "server"},
		"":                nil,
		"  --  ":          nil,
	}
	for in, want := range cases {
		assert.Equal(t, want, tokenize(in), "input %q", in)
	}
}
