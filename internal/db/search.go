package db

import "fmt"

// DefaultVectorField is the attribute KNN queries target when VectorField is empty.
const DefaultVectorField = "vector"

// TagFilter restricts a search to documents whose TAG field equals Value.
type TagFilter struct {
	Field string
	Value string
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string
	Tags         []TagFilter
	Vector       []float32
	K            int
	ReturnFields []string
}

// Validate reports a malformed query as ErrInvalidQuery.
func (q *KNNQuery) Validate() error {
	switch {
	case q.IndexName == "":
		return fmt.Errorf("%w: index name is required", ErrInvalidQuery)
	case len(q.Vector) == 0:
		return fmt.Errorf("%w: vector is required", ErrInvalidQuery)
	case q.K <= 0:
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidQuery, q.K)
	}
	return nil
}

// Field returns the targeted vector attribute.
func (q *KNNQuery) Field() string {
	if q.VectorField == "" {
		return DefaultVectorField
	}
	return q.VectorField
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
// Score is cosine similarity (1 - distance), not clamped.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
