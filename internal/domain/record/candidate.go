package record

import (
	"sort"

	"github.com/kailas-cloud/vecsight/internal/domain"
)

// Candidate is a nearest-neighbour hit returned by a vector store.
// Score is the store's cosine similarity; Embedding is zero when the backend
// did not return the stored vector.
type Candidate struct {
	ID         string
	Category   string
	ContentRef string
	Score      float64
	Embedding  domain.Embedding
	Seq        int64
}

// SortCandidates orders candidates by descending score, earliest insertion first on ties.
func SortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].Seq < cs[j].Seq
	})
}

// Stats holds record counts for a store.
type Stats struct {
	Total      int
	Categories map[string]int
}
