package image

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/vecsight/internal/db"
	"github.com/kailas-cloud/vecsight/internal/domain"
)

func TestInsert_Success(t *testing.T) {
	repo, ms := newTestRepo(t)
	rec := testRecord(t, "img1", []float32{1, 0, 0, 0})

	ms.incrFn = func(_ context.Context, key string) (int64, error) {
		if key != "vecsight:meta:img_seq" {
			t.Errorf("unexpected seq key %q", key)
		}
		return 7, nil
	}
	var (
		createdKey string
		stored     map[string]string
	)
	ms.hsetIfAbsentFn = func(_ context.Context, key string, fields map[string]string) (bool, error) {
		createdKey = key
		stored = fields
		return true, nil
	}

	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if createdKey != "vecsight:img:img1" {
		t.Errorf("created key = %q", createdKey)
	}
	if stored["id"] != "img1" || stored["seq"] != "7" || stored["category"] != "satellite" {
		t.Errorf("unexpected fields: %v", stored)
	}
	if len(stored["__vector"]) != testDim*4 {
		t.Errorf("vector blob length = %d", len(stored["__vector"]))
	}
	if stored["created_at"] != "2026-01-02T03:04:05Z" {
		t.Errorf("created_at = %q", stored["created_at"])
	}
}

func TestInsert_Duplicate(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hsetIfAbsentFn = func(context.Context, string, map[string]string) (bool, error) { return false, nil }

	err := repo.Insert(context.Background(), testRecord(t, "img1", []float32{1, 0, 0, 0}))
	if !errors.Is(err, domain.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestInsert_DimensionMismatch(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.incrFn = func(context.Context, string) (int64, error) {
		t.Error("store must not be touched")
		return 1, nil
	}

	err := repo.Insert(context.Background(), testRecord(t, "img1", []float32{1, 0}))
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestInsert_IncrFailureWritesNothing(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.incrFn = func(context.Context, string) (int64, error) {
		return 0, &db.Error{Op: db.OpIncr, Err: errors.New("connection reset")}
	}
	ms.hsetIfAbsentFn = func(context.Context, string, map[string]string) (bool, error) {
		t.Error("hash must not be written without a sequence number")
		return true, nil
	}

	if err := repo.Insert(context.Background(), testRecord(t, "img1", []float32{1, 0, 0, 0})); err == nil {
		t.Fatal("expected error")
	}
}

// A create whose reply was lost leaves a complete record: the retry sees a
// duplicate and Get returns the full record.
func TestInsert_LostReplyLeavesCompleteRecord(t *testing.T) {
	repo, ms := newTestRepo(t)
	hashes := map[string]map[string]string{}
	attempts := 0
	ms.hsetIfAbsentFn = func(_ context.Context, key string, fields map[string]string) (bool, error) {
		attempts++
		if _, ok := hashes[key]; ok {
			return false, nil
		}
		hashes[key] = fields
		if attempts == 1 {
			return false, &db.Error{Op: db.OpHSet, Key: key, Err: context.DeadlineExceeded}
		}
		return true, nil
	}
	ms.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		if h, ok := hashes[key]; ok {
			return h, nil
		}
		return map[string]string{}, nil
	}
	rec := testRecord(t, "img1", []float32{1, 0, 0, 0})

	if err := repo.Insert(context.Background(), rec); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected lost reply, got %v", err)
	}
	if err := repo.Insert(context.Background(), rec); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID on retry, got %v", err)
	}
	got, err := repo.Get(context.Background(), "img1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Category() != "satellite" || got.Embedding().At(0) != 1 {
		t.Errorf("unexpected record %s %v", got.Category(), got.Embedding().Values())
	}
}

func TestQuery_BuildsFilteredKNN(t *testing.T) {
	repo, ms := newTestRepo(t)
	var got *db.KNNQuery
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		got = q
		return &db.SearchResult{}, nil
	}

	emb, _ := domain.NewEmbedding([]float32{1, 0, 0, 0})
	if _, err := repo.Query(context.Background(), emb, 5, "healthcare"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IndexName != "vecsight:img:idx" || got.K != 5 || got.VectorField != "vector" {
		t.Errorf("unexpected query: %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0].Field != "category" || got.Tags[0].Value != "healthcare" {
		t.Errorf("unexpected tags: %v", got.Tags)
	}
}

func TestQuery_NoFilter(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		if len(q.Tags) != 0 {
			t.Errorf("expected no tags, got %v", q.Tags)
		}
		return nil, nil
	}
	emb, _ := domain.NewEmbedding([]float32{1, 0, 0, 0})
	res, err := repo.Query(context.Background(), emb, 2, "")
	if err != nil || len(res) != 0 {
		t.Errorf("expected empty result, got %v, %v", res, err)
	}
}

func TestQuery_ParsesAndTieBreaksBySeq(t *testing.T) {
	repo, ms := newTestRepo(t)
	vecA := vectorToBytes([]float32{1, 0, 0, 0})
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return &db.SearchResult{Total: 3, Entries: []db.SearchEntry{
			{Key: "vecsight:img:late", Score: 0.5, Fields: map[string]string{
				"id": "late", "category": "satellite", "seq": "9",
			}},
			{Key: "vecsight:img:img1", Score: 1, Fields: map[string]string{
				"id": "img1", "category": "satellite", "content_ref": "a.png", "seq": "3", "__vector": vecA,
			}},
			{Key: "vecsight:img:early", Score: 0.5, Fields: map[string]string{
				"category": "satellite", "seq": "1",
			}},
		}}, nil
	}

	emb, _ := domain.NewEmbedding([]float32{1, 0, 0, 0})
	res, err := repo.Query(context.Background(), emb, 3, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := []string{res[0].ID, res[1].ID, res[2].ID}
	if strings.Join(ids, ",") != "img1,early,late" {
		t.Errorf("unexpected order: %v", ids)
	}
	if res[0].ContentRef != "a.png" || res[0].Embedding.Dim() != testDim {
		t.Errorf("unexpected top candidate: %+v", res[0])
	}
	if !res[1].Embedding.IsZero() {
		t.Error("candidate without stored vector must have zero embedding")
	}
}

func TestQuery_StoreError(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return nil, db.ErrIndexNotFound
	}
	emb, _ := domain.NewEmbedding([]float32{1, 0, 0, 0})
	if _, err := repo.Query(context.Background(), emb, 1, ""); !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected wrapped ErrIndexNotFound, got %v", err)
	}
}

func TestGet(t *testing.T) {
	repo, ms := newTestRepo(t)
	rec := testRecord(t, "img1", []float32{0, 1, 0, 0})
	fields := buildHashFields(rec.WithSeq(4))
	ms.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		if key == "vecsight:img:img1" {
			return fields, nil
		}
		return map[string]string{}, nil
	}

	got, err := repo.Get(context.Background(), "img1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Category() != "satellite" || got.Seq() != 4 || got.Embedding().At(1) != 1 {
		t.Errorf("unexpected record: %+v", got)
	}
	if !got.CreatedAt().Equal(rec.CreatedAt()) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt(), rec.CreatedAt())
	}

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_PartialInsertIsNotFound(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetAllFn = func(context.Context, string) (map[string]string, error) {
		return map[string]string{"id": "img1"}, nil
	}
	if _, err := repo.Get(context.Background(), "img1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStats(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchCountFn = func(_ context.Context, index, query string) (int, error) {
		if index != "vecsight:img:idx" {
			t.Errorf("unexpected index %q", index)
		}
		switch query {
		case "*":
			return 5, nil
		case "@category:{satellite}":
			return 3, nil
		case "@category:{healthcare}":
			return 2, nil
		}
		t.Errorf("unexpected query %q", query)
		return 0, nil
	}

	stats, err := repo.Stats(context.Background(), []string{"satellite", "healthcare"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 5 || stats.Categories["satellite"] != 3 || stats.Categories["healthcare"] != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestEnsureIndex_Creates(t *testing.T) {
	repo, ms := newTestRepo(t)
	var def *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, d *db.IndexDefinition) error {
		def = d
		return nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def == nil || def.Name != "vecsight:img:idx" || def.Prefixes[0] != "vecsight:img:" {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if err := def.Validate(); err != nil {
		t.Errorf("definition invalid: %v", err)
	}
	vec := def.VectorField()
	if vec == nil || vec.Attribute() != "vector" {
		t.Fatalf("unexpected vector field: %+v", vec)
	}
	if vec.Vector.Dim != testDim || vec.Vector.Distance != db.DistanceCosine || vec.Vector.Algorithm != db.VectorHNSW {
		t.Errorf("unexpected vector spec: %+v", vec.Vector)
	}
}

func TestEnsureIndex_ExistingDimMismatch(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.indexExistsFn = func(context.Context, string) (bool, error) { return true, nil }
	ms.indexVectorDimFn = func(context.Context, string, string) (int, error) { return 512, nil }

	if err := repo.EnsureIndex(context.Background()); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestEnsureIndex_CreateRaceChecksDim(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error { return db.ErrIndexExists }
	probed := false
	ms.indexVectorDimFn = func(context.Context, string, string) (int, error) {
		probed = true
		return testDim, nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !probed {
		t.Error("expected dimension probe after losing the create race")
	}
}

func TestWithHNSW(t *testing.T) {
	repo, _ := newTestRepo(t)
	repo.WithHNSW(HNSWConfig{M: 32})
	if repo.hnsw.M != 32 || repo.hnsw.EFConstruct != 200 {
		t.Errorf("unexpected hnsw config: %+v", repo.hnsw)
	}
}
