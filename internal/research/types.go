// Package research gathers web evidence for a company/address pair: it plans
// search queries, fans them out to a search backend, and fetches page text for
// the deduplicated result URLs.
package research

import "context"

// SearchResult is one hit returned by a search backend. Snippet may be empty.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// EvidenceDocument is the cleaned text of one fetched page paired with the
// search hit it came from.
type EvidenceDocument struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Content string `json:"content"`
}

// QueryPlan is an ordered, deduplicated list of search queries.
type QueryPlan struct {
	Queries   []string `json:"queries"`
	Rationale string   `json:"rationale"`
	Raw       string   `json:"-"`
	UsedModel bool     `json:"used_model"`
}

// Collection is the outcome of one evidence collection call.
type Collection struct {
	Documents   []EvidenceDocument
	Plan        QueryPlan
	SearchCalls int
	FetchCalls  int
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// Fetcher retrieves a page and returns its plain text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ContentFetcher is a search backend's own content retrieval path, used when
// fetching a page directly fails.
type ContentFetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}

// Backend is a search service that can also retrieve page content.
type Backend interface {
	Searcher
	ContentFetcher
}

// QueryPlanner produces search queries for a company/address pair. It must
// return defaults (or a prefix of them) when it cannot do better.
type QueryPlanner interface {
	Plan(ctx context.Context, company, address string, defaults []string) QueryPlan
}
