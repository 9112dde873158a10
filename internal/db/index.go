package db

import (
	"fmt"
	"strings"
)

// DistanceMetric is the DISTANCE_METRIC of a vector attribute.
type DistanceMetric string

// DistanceCosine scores by cosine distance; the image index always uses it.
const DistanceCosine DistanceMetric = "COSINE"

// VectorAlgorithm is the vector index algorithm passed to FT.CREATE.
type VectorAlgorithm string

const (
	// VectorHNSW builds an approximate HNSW graph.
	VectorHNSW VectorAlgorithm = "HNSW"
	// VectorFlat scans every vector.
	VectorFlat VectorAlgorithm = "FLAT"
)

// IndexFieldType enumerates the schema attribute kinds in use.
type IndexFieldType int

const (
	// IndexFieldNumeric is a NUMERIC attribute.
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag is a TAG attribute.
	IndexFieldTag
	// IndexFieldVector is a FLOAT32 VECTOR attribute.
	IndexFieldVector
)

// VectorSpec configures a FLOAT32 vector attribute.
type VectorSpec struct {
	Algorithm   VectorAlgorithm // FLAT when empty
	Dim         int
	Distance    DistanceMetric // COSINE when empty
	M           int            // HNSW max edges per node
	EFConstruct int            // HNSW build-time candidate list size
}

// IndexField is one attribute of an index schema.
type IndexField struct {
	Name   string // hash field
	Alias  string // AS name used in queries
	Type   IndexFieldType
	Vector *VectorSpec // set for IndexFieldVector
}

// Attribute returns the name queries refer to.
func (f *IndexField) Attribute() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// IndexDefinition declares an FT index over hashes whose keys start with one of Prefixes.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// VectorField returns the vector attribute, or nil.
func (idx *IndexDefinition) VectorField() *IndexField {
	for i := range idx.Fields {
		if idx.Fields[i].Type == IndexFieldVector {
			return &idx.Fields[i]
		}
	}
	return nil
}

// Validate reports the first problem as ErrInvalidIndex.
func (idx *IndexDefinition) Validate() error {
	switch {
	case !IsValidIdentifier(idx.Name):
		return fmt.Errorf("%w: bad name %q", ErrInvalidIndex, idx.Name)
	case len(idx.Prefixes) == 0:
		return fmt.Errorf("%w: %s has no key prefix", ErrInvalidIndex, idx.Name)
	case len(idx.Fields) == 0:
		return fmt.Errorf("%w: %s has no fields", ErrInvalidIndex, idx.Name)
	}

	seen := make(map[string]struct{}, len(idx.Fields))
	vectors := 0
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("%w: field %d has no name", ErrInvalidIndex, i)
		}
		attr := f.Attribute()
		if _, dup := seen[attr]; dup {
			return fmt.Errorf("%w: duplicate attribute %q", ErrInvalidIndex, attr)
		}
		seen[attr] = struct{}{}

		if f.Type != IndexFieldVector {
			continue
		}
		vectors++
		if f.Vector == nil || f.Vector.Dim <= 0 {
			return fmt.Errorf("%w: vector %q needs a positive DIM", ErrInvalidIndex, attr)
		}
	}
	if vectors > 1 {
		return fmt.Errorf("%w: %s declares %d vector attributes", ErrInvalidIndex, idx.Name, vectors)
	}
	return nil
}

// IsValidIdentifier reports whether s is non-empty and made of [a-zA-Z0-9_:-].
func IsValidIdentifier(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '_' || r == ':' || r == '-':
			return false
		}
		return true
	}) < 0
}
