package record

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/vecsight/internal/domain"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxIDLength is the maximum image id length.
const MaxIDLength = 128

// MaxContentRefLength is the maximum content reference length in bytes.
const MaxContentRefLength = 2048

// Record is the image record aggregate (immutable value object).
type Record struct {
	id         string
	category   string
	contentRef string
	embedding  domain.Embedding
	createdAt  time.Time
	seq        int64
}

// NewID generates a fresh record id.
func NewID() string {
	return uuid.NewString()
}

// New validates and creates a Record.
// ID: ^[a-zA-Z0-9_-]+$, 1-128 chars. Category set membership is checked by the caller.
func New(id, category, contentRef string, emb domain.Embedding, createdAt time.Time) (Record, error) {
	if err := ValidateID(id); err != nil {
		return Record{}, err
	}
	if category == "" {
		return Record{}, fmt.Errorf("%w: category is required", domain.ErrInvalidRecord)
	}
	if len(contentRef) > MaxContentRefLength {
		return Record{}, fmt.Errorf("%w: content reference too long (max %d)", domain.ErrInvalidRecord, MaxContentRefLength)
	}
	if emb.IsZero() {
		return Record{}, fmt.Errorf("%w: embedding is required", domain.ErrInvalidRecord)
	}
	return Record{
		id:         id,
		category:   category,
		contentRef: contentRef,
		embedding:  emb,
		createdAt:  createdAt.UTC(),
	}, nil
}

// ValidateID checks the id format.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidRecord)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: id too long (max %d)", domain.ErrInvalidRecord, MaxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: id must be alphanumeric with underscores and hyphens", domain.ErrInvalidRecord)
	}
	return nil
}

// Reconstruct creates a Record without validation (storage hydration).
func Reconstruct(
	id, category, contentRef string, emb domain.Embedding, createdAt time.Time, seq int64,
) Record {
	return Record{
		id: id, category: category, contentRef: contentRef,
		embedding: emb, createdAt: createdAt, seq: seq,
	}
}

// ID returns the record identifier.
func (r *Record) ID() string { return r.id }

// Category returns the record category.
func (r *Record) Category() string { return r.category }

// ContentRef returns the opaque reference to the source image.
func (r *Record) ContentRef() string { return r.contentRef }

// Embedding returns the stored feature vector.
func (r *Record) Embedding() domain.Embedding { return r.embedding }

// CreatedAt returns the insertion timestamp.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// Seq returns the store-assigned insertion sequence (0 before insert).
func (r *Record) Seq() int64 { return r.seq }

// WithSeq returns a copy carrying the given insertion sequence.
func (r *Record) WithSeq(seq int64) Record {
	c := *r
	c.seq = seq
	return c
}
