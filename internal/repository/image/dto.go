package image

import (
	"strconv"
	"time"

	"github.com/kailas-cloud/vecsight/internal/db"
	dbRedis "github.com/kailas-cloud/vecsight/internal/db/redis"
	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/domain/record"
)

const (
	fieldID         = "id"
	fieldCategory   = "category"
	fieldContentRef = "content_ref"
	fieldCreatedAt  = "created_at"
	fieldSeq        = "seq"
	fieldVector     = "__vector"
	vectorAttr      = "vector"
)

// __vector_score must be listed or RETURN drops it.
var returnFields = []string{
	fieldID, fieldCategory, fieldContentRef, fieldSeq, fieldVector, "__vector_score",
}

// buildHashFields converts a record into a flat map for HSET.
func buildHashFields(rec record.Record) map[string]string {
	return map[string]string{
		fieldID:         rec.ID(),
		fieldCategory:   rec.Category(),
		fieldContentRef: rec.ContentRef(),
		fieldCreatedAt:  rec.CreatedAt().Format(time.RFC3339Nano),
		fieldSeq:        strconv.FormatInt(rec.Seq(), 10),
		fieldVector:     vectorToBytes(rec.Embedding().Values()),
	}
}

// parseHashFields converts a flat hash back into a record.
func parseHashFields(id string, m map[string]string) record.Record {
	createdAt, _ := time.Parse(time.RFC3339Nano, m[fieldCreatedAt]) //nolint:errcheck // zero time on legacy rows
	return record.Reconstruct(
		id,
		m[fieldCategory],
		m[fieldContentRef],
		domain.ReconstructEmbedding(bytesToVector(m[fieldVector])),
		createdAt,
		parseSeq(m[fieldSeq]),
	)
}

func parseSeq(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func categoryQuery(category string) string {
	return dbRedis.BuildTagFilter([]db.TagFilter{{Field: fieldCategory, Value: category}})
}

func vectorToBytes(v []float32) string { return dbRedis.VectorToBytes(v) }

func bytesToVector(s string) []float32 { return dbRedis.BytesToVector(s) }
