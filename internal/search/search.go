package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultNote     ResultType = "note"
	ResultRoadmap  ResultType = "roadmap"
	ResultResource ResultType = "resource"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	OwnerID string     `json:"ownerId"`
}

// Query describes a search request. OwnerID is mandatory: results never
// cross user boundaries.
type Query struct {
	Text       string
	OwnerID    string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
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

// NoteRecord is the data we index for a note.
type NoteRecord struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	OwnerID string `json:"ownerId"`
}

// RoadmapRecord is the data we index for a roadmap.
type RoadmapRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	OwnerID     string `json:"ownerId"`
}

// ResourceRecord is the data we index for a resource.
type ResourceRecord struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	OwnerID string `json:"ownerId"`
}
