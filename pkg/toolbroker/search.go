package toolbroker

import (
	"sort"
	"strings"
	"unicode"
)

// SearchResult pairs an operation with its relevance score in [0, 1].
type SearchResult struct {
	Operation OperationDescriptor `json:"operation"`
	Score     float64             `json:"score"`
}

// Match weights for a single query token. A hit on the operation name counts
// more than a hit in the description; prefix matches count less than exact
// token matches.
const (
	nameTokenWeight      = 1.0
	namePrefixWeight     = 0.7
	descTokenWeight      = 0.6
	descPrefixWeight     = 0.35
	nonExactScoreCeiling = 0.95
	prefixMinTokenLength = 3
)

// Search scores every operation in the catalog, connected servers or not,
// against a free-text query. Results are sorted by descending score; equal
// scores keep declaration order (server order, then operation order), so
// identical catalog contents and query always produce identical output.
// At most limit results are returned (limit <= 0 means no cap); results
// scoring below minScore are dropped.
func (b *Broker) Search(query string, limit int, minScore float64) []SearchResult {
	b.metrics.searchObserved()
	snapshot := b.catalog.allOperations()
	queryTokens := tokenize(query)

	results := make([]SearchResult, 0, len(snapshot))
	for _, op := range snapshot {
		score := scoreOperation(queryTokens, op)
		if score < minScore {
			continue
		}
		results = append(results, SearchResult{Operation: op, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func scoreOperation(queryTokens []string, op OperationDescriptor) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	nameTokens := tokenize(op.Name)
	if normalized(queryTokens) == normalized(nameTokens) {
		return 1.0
	}
	descTokens := tokenize(op.Description)

	var total float64
	for _, qt := range queryTokens {
		total += bestTokenMatch(qt, nameTokens, descTokens)
	}
	score := total / float64(len(queryTokens))
	if score > nonExactScoreCeiling {
		score = nonExactScoreCeiling
	}
	return score
}

func bestTokenMatch(qt string, nameTokens, descTokens []string) float64 {
	best := 0.0
	for _, nt := range nameTokens {
		if w := matchWeight(qt, nt, nameTokenWeight, namePrefixWeight); w > best {
			best = w
		}
	}
	if best >= nameTokenWeight {
		return best
	}
	for _, dt := range descTokens {
		if w := matchWeight(qt, dt, descTokenWeight, descPrefixWeight); w > best {
			best = w
		}
	}
	return best
}

func matchWeight(query, candidate string, exact, prefix float64) float64 {
	if query == candidate {
		return exact
	}
	if len(query) >= prefixMinTokenLength &&
		(strings.HasPrefix(candidate, query) || strings.HasPrefix(query, candidate)) {
		return prefix
	}
	return 0
}

// tokenize lowercases and splits on non-alphanumeric boundaries and on
// camelCase transitions, so "searchDocs", "search_docs", and "search docs"
// all produce the same tokens.
func tokenize(s string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	var prev rune
	for _, r := range s {
		switch {
		case unicode.IsLower(r) || unicode.IsDigit(r):
			current.WriteRune(unicode.ToLower(r))
		case unicode.IsUpper(r):
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				flush()
			}
			current.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
		prev = r
	}
	flush()
	return tokens
}

func normalized(tokens []string) string {
	return strings.Join(tokens, " ")
}
