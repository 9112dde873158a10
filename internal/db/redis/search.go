package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/vecsight/internal/db"
)

// scoreField is the distance attribute FT.SEARCH adds to KNN hits.
const scoreField = "__vector_score"

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	args, err := BuildKNNArgs(q)
	if err != nil {
		return nil, err
	}

	raw, err := s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
	switch {
	case err == nil:
		return ParseKNNResult(raw)
	case isRedisErr(err, "unknown index name"), isRedisErr(err, "no such index"):
		return nil, db.ErrIndexNotFound
	default:
		return nil, wrap(db.OpSearch, q.IndexName, err)
	}
}

// SearchCount returns the number of documents matching query.
func (s *Store) SearchCount(ctx context.Context, index, query string) (int, error) {
	cmd := s.b().Arbitrary("FT.SEARCH").Args(index, query, "LIMIT", "0", "0").Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, wrap(db.OpSearch, index, err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// BuildKNNArgs renders FT.SEARCH arguments for q:
//
//	index "(filter)=>[KNN k @field $BLOB]" [RETURN n f...] PARAMS 2 BLOB v LIMIT 0 k DIALECT 2
func BuildKNNArgs(q *db.KNNQuery) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	pre := BuildTagFilter(q.Tags)
	if pre == "" {
		pre = "*"
	} else {
		pre = "(" + pre + ")"
	}
	k := strconv.Itoa(q.K)

	args := make([]string, 0, 12+len(q.ReturnFields))
	args = append(args, q.IndexName, pre+"=>[KNN "+k+" @"+q.Field()+" $BLOB]")
	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
		args = append(args, q.ReturnFields...)
	}
	// without LIMIT the server caps the reply at 10 hits
	return append(args,
		"PARAMS", "2", "BLOB", VectorToBytes(q.Vector),
		"LIMIT", "0", k,
		"DIALECT", "2",
	), nil
}

// BuildTagFilter renders TAG equality filters joined by AND. Filters with an
// empty field or value are skipped.
func BuildTagFilter(tags []db.TagFilter) string {
	var sb strings.Builder
	for _, t := range tags {
		if t.Field == "" || t.Value == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte('@')
		sb.WriteString(t.Field)
		sb.WriteString(":{")
		writeTagValue(&sb, t.Value)
		sb.WriteByte('}')
	}
	return sb.String()
}

// writeTagValue backslash-escapes every rune the query tokenizer treats as
// punctuation or whitespace.
func writeTagValue(sb *strings.Builder, v string) {
	for _, r := range v {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
}

// ParseKNNResult parses a [total, key, fields, key, fields, ...] reply and
// turns the cosine distance in __vector_score into a similarity.
func ParseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	res := &db.SearchResult{Total: int(total)}
	if total == 0 {
		return res, nil
	}
	res.Entries = make([]db.SearchEntry, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].AsStrMap()
		if err != nil {
			continue
		}

		e := db.SearchEntry{Key: key, Fields: fields}
		if dist, ok := fields[scoreField]; ok {
			if d, err := strconv.ParseFloat(dist, 64); err == nil {
				e.Score = 1 - d
			}
			delete(fields, scoreField)
		}
		res.Entries = append(res.Entries, e)
	}
	return res, nil
}

// VectorToBytes packs v as little-endian FLOAT32, the BLOB layout of VECTOR attributes.
func VectorToBytes(v []float32) string {
	buf := make([]byte, 0, 4*len(v))
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return string(buf)
}

// BytesToVector reverses VectorToBytes. A trailing partial word is ignored.
func BytesToVector(s string) []float32 {
	b := []byte(s)
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
