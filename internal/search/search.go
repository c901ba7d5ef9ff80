package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultCycle   ResultType = "cycle"
	ResultSection ResultType = "section"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	CycleID    string     `json:"cycleId"`
	DocumentID string     `json:"documentId,omitempty"`
	Kind       string     `json:"kind,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	FilterCycleID string
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// CycleRecord is the data we index for an analysis cycle.
type CycleRecord struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// SectionRecord is the data we index for one document section. ID is
// documentID:kind so re-indexing a section overwrites the previous copy.
type SectionRecord struct {
	ID         string `json:"id"`
	CycleID    string `json:"cycleId"`
	DocumentID string `json:"documentId"`
	Kind       string `json:"kind"`
	Heading    string `json:"heading"`
	Body       string `json:"body"`
}
