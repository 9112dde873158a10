package redis

import (
	"cmp"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/vecsight/internal/db"
)

// CreateIndex creates an FT index from the given definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

// IndexVectorDim reads FT.INFO and returns the DIM of the named vector attribute.
// Redis and valkey-search nest attribute options differently, so the reply is walked
// recursively for a "dim"/"dimensions" key inside the matching attribute block.
func (s *Store) IndexVectorDim(ctx context.Context, name, attribute string) (int, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "not found") {
			return 0, db.ErrIndexNotFound
		}
		return 0, &db.Error{Op: db.OpIndexInfo, Err: err}
	}

	attrs, ok := lookupPair(raw, "attributes")
	if !ok {
		return 0, fmt.Errorf("ft.info %s: no attributes section", name)
	}
	list, err := attrs.ToArray()
	if err != nil {
		return 0, fmt.Errorf("ft.info %s: parse attributes: %w", name, err)
	}
	for i := range list {
		block, err := list[i].ToArray()
		if err != nil {
			continue
		}
		if !attributeMatches(block, attribute) {
			continue
		}
		if dim, ok := findDim(block); ok {
			return dim, nil
		}
	}
	return 0, fmt.Errorf("ft.info %s: vector attribute %q not found", name, attribute)
}

// lookupPair finds the value following key in a flat [k1, v1, k2, v2, ...] reply.
func lookupPair(flat []rueidis.RedisMessage, key string) (rueidis.RedisMessage, bool) {
	for i := 0; i+1 < len(flat); i += 2 {
		k, err := flat[i].ToString()
		if err != nil {
			continue
		}
		if strings.EqualFold(k, key) {
			return flat[i+1], true
		}
	}
	return rueidis.RedisMessage{}, false
}

func attributeMatches(block []rueidis.RedisMessage, attribute string) bool {
	for _, key := range []string{"attribute", "identifier"} {
		if v, ok := lookupPair(block, key); ok {
			if str, err := v.ToString(); err == nil && str == attribute {
				return true
			}
		}
	}
	return false
}

func findDim(block []rueidis.RedisMessage) (int, bool) {
	for i := 0; i < len(block); i++ {
		if nested, err := block[i].ToArray(); err == nil {
			if dim, ok := findDim(nested); ok {
				return dim, true
			}
			continue
		}
		k, err := block[i].ToString()
		if err != nil || i+1 >= len(block) {
			continue
		}
		if !strings.EqualFold(k, "dim") && !strings.EqualFold(k, "dimensions") {
			continue
		}
		if n, err := block[i+1].AsInt64(); err == nil {
			return int(n), true
		}
		if str, err := block[i+1].ToString(); err == nil {
			if n, err := strconv.Atoi(str); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// buildCreateArgs renders FT.CREATE arguments for a hash index.
func buildCreateArgs(idx *db.IndexDefinition) ([]string, error) {
	if err := idx.Validate(); err != nil {
		return nil, err //nolint:wrapcheck // already carries db.ErrInvalidIndex
	}

	args := make([]string, 0, 6+len(idx.Prefixes)+len(idx.Fields)*4)
	args = append(args, idx.Name, "ON", "HASH", "PREFIX", strconv.Itoa(len(idx.Prefixes)))
	args = append(args, idx.Prefixes...)
	args = append(args, "SCHEMA")

	for i := range idx.Fields {
		fieldArgs, err := buildFieldArgs(&idx.Fields[i])
		if err != nil {
			return nil, err
		}
		args = append(args, fieldArgs...)
	}
	return args, nil
}

func buildFieldArgs(f *db.IndexField) ([]string, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("%w: field name is required", db.ErrInvalidIndex)
	}
	args := []string{f.Name}
	if f.Alias != "" {
		args = append(args, "AS", f.Alias)
	}

	switch f.Type {
	case db.IndexFieldNumeric:
		return append(args, "NUMERIC"), nil
	case db.IndexFieldTag:
		return append(args, "TAG"), nil
	case db.IndexFieldVector:
		if f.Vector == nil {
			return nil, fmt.Errorf("%w: vector %q has no spec", db.ErrInvalidIndex, f.Attribute())
		}
		vectorArgs, err := buildVectorArgs(f.Vector)
		if err != nil {
			return nil, fmt.Errorf("vector %q: %w", f.Attribute(), err)
		}
		return append(args, vectorArgs...), nil
	default:
		return nil, fmt.Errorf("%w: unknown field type %d", db.ErrInvalidIndex, f.Type)
	}
}

// buildVectorArgs renders "VECTOR <algo> <nargs> TYPE FLOAT32 DIM n DISTANCE_METRIC m [...]".
func buildVectorArgs(v *db.VectorSpec) ([]string, error) {
	if v.Dim <= 0 {
		return nil, fmt.Errorf("%w: DIM must be positive, got %d", db.ErrInvalidIndex, v.Dim)
	}
	algo := cmp.Or(v.Algorithm, db.VectorFlat)
	distance := cmp.Or(v.Distance, db.DistanceCosine)

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(v.Dim),
		"DISTANCE_METRIC", string(distance),
	}
	if algo == db.VectorHNSW {
		if v.M > 0 {
			attrs = append(attrs, "M", strconv.Itoa(v.M))
		}
		if v.EFConstruct > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(v.EFConstruct))
		}
	}
	return append([]string{"VECTOR", string(algo), strconv.Itoa(len(attrs))}, attrs...), nil
}
