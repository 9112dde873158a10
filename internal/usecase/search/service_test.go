package search

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/domain/record"
	"github.com/kailas-cloud/vecsight/internal/metrics"
	"github.com/kailas-cloud/vecsight/internal/repository/memory"
)

func newMemoryStore(t *testing.T) *memory.Repo {
	t.Helper()
	repo, err := memory.New(testDim)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	return repo
}

func storeImage(t *testing.T, svc *Service, image, id string) {
	t.Helper()
	res, err := svc.SearchAndStore(context.Background(), []byte(image), StoreRequest{
		ID: id, Category: "satellite", ContentRef: "s3://bucket/" + id,
	})
	if err != nil {
		t.Fatalf("search and store %s: %v", id, err)
	}
	if !res.Stored {
		t.Fatalf("expected %s stored, got error %v", id, res.StoreErr)
	}
}

func TestSearch_TwoRecordScenario(t *testing.T) {
	svc := newTestService(t, newMemoryStore(t), abExtractor(), 0.5)
	storeImage(t, svc, "A", "img1")
	storeImage(t, svc, "B", "img2")

	res, err := svc.Search(context.Background(), []byte("A"), Query{K: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(res.Hits))
	}

	top, second := res.Hits[0], res.Hits[1]
	if top.ID != "img1" || math.Abs(top.Score-1) > 1e-6 || !top.HighConfidence {
		t.Errorf("unexpected top hit: %+v", top)
	}
	if math.Abs(top.RawScore-1) > 1e-6 || math.Abs(top.QuantumScore-1) > 1e-6 {
		t.Errorf("expected raw and quantum 1, got %+v", top)
	}
	if second.ID != "img2" || math.Abs(second.Score) > 1e-6 || second.HighConfidence {
		t.Errorf("unexpected second hit: %+v", second)
	}
	if top.ContentRef != "s3://bucket/img1" || top.Category != "satellite" {
		t.Errorf("expected stored metadata, got %+v", top)
	}
	if res.ExactMatch != "img1" || res.Status != StatusExactMatch {
		t.Errorf("expected exact match img1, got %q / %s", res.ExactMatch, res.Status)
	}
	if res.HighConfidenceCount != 1 {
		t.Errorf("expected 1 high-confidence hit, got %d", res.HighConfidenceCount)
	}
}

func TestSearch_EmptyStoreIsNotFound(t *testing.T) {
	svc := newTestService(t, newMemoryStore(t), abExtractor(), 0.5)

	res, err := svc.Search(context.Background(), []byte("A"), Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 0 || res.Status != StatusNotFound || res.ExactMatch != "" {
		t.Errorf("expected empty not_found result, got %+v", res)
	}
}

func TestSearch_RankingNonIncreasing(t *testing.T) {
	store := &mockStore{queryFn: func(context.Context, domain.Embedding, int, string) ([]record.Candidate, error) {
		return []record.Candidate{
			candidate("low", 0.2, 1),
			candidate("high", 0.95, 2),
			candidate("mid", 0.6, 3),
			candidate("neg", -0.4, 4),
		}, nil
	}}
	svc := newTestService(t, store, abExtractor(), 0.5)

	res, err := svc.Search(context.Background(), []byte("A"), Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"high", "mid", "low", "neg"}
	for i, h := range res.Hits {
		if h.ID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, h.ID, want[i])
		}
		if i > 0 && h.Score > res.Hits[i-1].Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
	}
	if res.Hits[3].RawScore != -0.4 || res.Hits[3].Score != 0 {
		t.Errorf("expected negative raw kept and combined 0, got %+v", res.Hits[3])
	}
	if res.Status != StatusHighConfidence {
		t.Errorf("expected high_confidence status, got %s", res.Status)
	}
}

func TestSearch_TiesKeepStoreOrder(t *testing.T) {
	store := &mockStore{queryFn: func(context.Context, domain.Embedding, int, string) ([]record.Candidate, error) {
		return []record.Candidate{candidate("first", 0.5, 1), candidate("second", 0.5, 2)}, nil
	}}
	svc := newTestService(t, store, abExtractor(), 0.5)

	res, err := svc.Search(context.Background(), []byte("A"), Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Hits[0].ID != "first" || res.Hits[1].ID != "second" {
		t.Errorf("expected store order on ties, got %s, %s", res.Hits[0].ID, res.Hits[1].ID)
	}
	if res.Status != StatusLowConfidence {
		t.Errorf("expected low_confidence, got %s", res.Status)
	}
}

func TestSearch_ZeroBlendWeightIsCosine(t *testing.T) {
	store := &mockStore{queryFn: func(context.Context, domain.Embedding, int, string) ([]record.Candidate, error) {
		return []record.Candidate{candidate("x", 0.9, 1)}, nil
	}}
	svc := newTestService(t, store, abExtractor(), 0)

	res, err := svc.Search(context.Background(), []byte("A"), Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Hits[0].Score != 0.9 {
		t.Errorf("expected combined exactly 0.9, got %v", res.Hits[0].Score)
	}
	if !res.Hits[0].HighConfidence {
		t.Error("expected 0.9 to be high-confidence at threshold 0.88")
	}
}

func TestSearch_RescoresWithStoredVector(t *testing.T) {
	stored := mustEmbedding(t, 0.8, 0.6, 0, 0)
	store := &mockStore{queryFn: func(context.Context, domain.Embedding, int, string) ([]record.Candidate, error) {
		c := candidate("c", 0.1, 1) // stale store score, vector wins
		c.Embedding = stored
		return []record.Candidate{c}, nil
	}}
	svc := newTestService(t, store, abExtractor(), 0.5)

	res, err := svc.Search(context.Background(), []byte("A"), Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(res.Hits[0].RawScore-0.8) > 1e-6 {
		t.Errorf("expected raw 0.8 from vectors, got %v", res.Hits[0].RawScore)
	}
	want := 0.5*0.64 + 0.5*0.8
	if math.Abs(res.Hits[0].Score-want) > 1e-6 {
		t.Errorf("expected combined %v, got %v", want, res.Hits[0].Score)
	}
}

func TestSearch_CategoryFilter(t *testing.T) {
	var gotCategory string
	store := &mockStore{queryFn: func(_ context.Context, _ domain.Embedding, _ int, category string) ([]record.Candidate, error) {
		gotCategory = category
		return nil, nil
	}}
	svc := newTestService(t, store, abExtractor(), 0.5)

	if _, err := svc.Search(context.Background(), []byte("A"), Query{Category: " Satellite "}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotCategory != "satellite" {
		t.Errorf("expected normalized filter satellite, got %q", gotCategory)
	}

	_, err := svc.Search(context.Background(), []byte("A"), Query{Category: "astronomy"})
	if !errors.Is(err, domain.ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
	if store.queries.Load() != 1 {
		t.Errorf("invalid category must not reach the store, got %d queries", store.queries.Load())
	}
}

func TestSearch_CategoryFilterMemoryStore(t *testing.T) {
	repo := newMemoryStore(t)
	svc := newTestService(t, repo, abExtractor(), 0.5)
	storeImage(t, svc, "A", "sat")
	if _, err := svc.SearchAndStore(context.Background(), []byte("C"), StoreRequest{
		ID: "med", Category: "healthcare",
	}); err != nil {
		t.Fatalf("store: %v", err)
	}

	res, err := svc.Search(context.Background(), []byte("A"), Query{Category: "healthcare"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].ID != "med" {
		t.Fatalf("expected only healthcare record, got %+v", res.Hits)
	}
}

func TestSearch_KDefaultAndCap(t *testing.T) {
	var gotK int
	store := &mockStore{queryFn: func(_ context.Context, _ domain.Embedding, k int, _ string) ([]record.Candidate, error) {
		gotK = k
		return nil, nil
	}}
	svc := newTestService(t, store, abExtractor(), 0.5)

	tests := []struct {
		name string
		k    int
		want int
	}{
		{"default", 0, 10},
		{"explicit", 3, 3},
		{"capped", 1000, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Search(context.Background(), []byte("A"), Query{K: tt.k}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotK != tt.want {
				t.Errorf("expected k=%d, got %d", tt.want, gotK)
			}
		})
	}
}

func TestSearch_MinScoreFilter(t *testing.T) {
	store := &mockStore{queryFn: func(context.Context, domain.Embedding, int, string) ([]record.Candidate, error) {
		return []record.Candidate{candidate("keep", 0.9, 1), candidate("drop", 0.3, 2)}, nil
	}}
	scorerSvc := newTestService(t, store, abExtractor(), 0.5)
	scorerSvc.cfg.MinScore = 0.5

	res, err := scorerSvc.Search(context.Background(), []byte("A"), Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].ID != "keep" {
		t.Errorf("expected only 'keep', got %+v", res.Hits)
	}
}

func TestSearch_ExtractorErrorNotRetried(t *testing.T) {
	store := &mockStore{}
	ext := &mockExtractor{err: domain.ErrExtractionFailure}
	svc := newTestService(t, store, ext, 0.5)

	_, err := svc.Search(context.Background(), []byte("A"), Query{})
	if !errors.Is(err, domain.ErrExtractionFailure) {
		t.Fatalf("expected ErrExtractionFailure, got %v", err)
	}
	if ext.calls.Load() != 1 {
		t.Errorf("expected a single extraction attempt, got %d", ext.calls.Load())
	}
	if store.queries.Load() != 0 {
		t.Errorf("expected no store query, got %d", store.queries.Load())
	}
}

func TestSearch_UnsupportedFormat(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(t, store, abExtractor(), 0.5)

	_, err := svc.SearchAndStore(context.Background(), []byte("not an image"), StoreRequest{Category: "satellite"})
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if store.inserts.Load() != 0 {
		t.Errorf("expected no insert after extraction failure, got %d", store.inserts.Load())
	}
}

func TestSearch_TransientStoreErrorRetried(t *testing.T) {
	store := &mockStore{}
	store.queryFn = func(context.Context, domain.Embedding, int, string) ([]record.Candidate, error) {
		if n := store.queries.Load(); n < 3 {
			return nil, transientErr(int(n))
		}
		return []record.Candidate{candidate("x", 0.5, 1)}, nil
	}
	svc := newTestService(t, store, abExtractor(), 0.5)
	before := testutil.ToFloat64(metrics.StoreRetriesTotal.WithLabelValues("query"))

	res, err := svc.Search(context.Background(), []byte("A"), Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 1 {
		t.Errorf("expected 1 hit, got %d", len(res.Hits))
	}
	if store.queries.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", store.queries.Load())
	}
	if got := testutil.ToFloat64(metrics.StoreRetriesTotal.WithLabelValues("query")) - before; got != 2 {
		t.Errorf("expected 2 retries recorded, got %v", got)
	}
}

func TestSearch_StoreUnavailableAfterBudget(t *testing.T) {
	store := &mockStore{}
	store.queryFn = func(context.Context, domain.Embedding, int, string) ([]record.Candidate, error) {
		return nil, transientErr(int(store.queries.Load()))
	}
	svc := newTestService(t, store, abExtractor(), 0.5)

	_, err := svc.Search(context.Background(), []byte("A"), Query{})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if store.queries.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", store.queries.Load())
	}
}

func TestSearch_CancelledContextNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &mockStore{}
	store.queryFn = func(context.Context, domain.Embedding, int, string) ([]record.Candidate, error) {
		cancel()
		return nil, context.Canceled
	}
	svc := newTestService(t, store, abExtractor(), 0.5)

	_, err := svc.Search(ctx, []byte("A"), Query{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		t.Error("cancellation must not be reported as store unavailable")
	}
	if store.queries.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", store.queries.Load())
	}
}

func TestSearchAndStore_RequiresValidCategory(t *testing.T) {
	store := &mockStore{}
	ext := abExtractor()
	svc := newTestService(t, store, ext, 0.5)

	for _, c := range []string{"", "astronomy"} {
		_, err := svc.SearchAndStore(context.Background(), []byte("A"), StoreRequest{Category: c})
		if !errors.Is(err, domain.ErrInvalidCategory) {
			t.Errorf("category %q: expected ErrInvalidCategory, got %v", c, err)
		}
	}
	if ext.calls.Load() != 0 {
		t.Errorf("expected validation before extraction, got %d extractions", ext.calls.Load())
	}
}

func TestSearchAndStore_InvalidID(t *testing.T) {
	svc := newTestService(t, &mockStore{}, abExtractor(), 0.5)

	_, err := svc.SearchAndStore(context.Background(), []byte("A"), StoreRequest{ID: "bad id!", Category: "satellite"})
	if !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestSearchAndStore_GeneratesID(t *testing.T) {
	var inserted record.Record
	store := &mockStore{insertFn: func(_ context.Context, rec record.Record) error {
		inserted = rec
		return nil
	}}
	svc := newTestService(t, store, abExtractor(), 0.5)

	res, err := svc.SearchAndStore(context.Background(), []byte("A"), StoreRequest{Category: "Healthcare", ContentRef: "ref"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Stored || res.ID == "" {
		t.Fatalf("expected stored with generated id, got %+v", res)
	}
	if inserted.ID() != res.ID || inserted.Category() != "healthcare" || inserted.ContentRef() != "ref" {
		t.Errorf("unexpected inserted record: id=%s category=%s ref=%s",
			inserted.ID(), inserted.Category(), inserted.ContentRef())
	}
}

func TestSearchAndStore_DuplicateIsPartialSuccess(t *testing.T) {
	repo := newMemoryStore(t)
	svc := newTestService(t, repo, abExtractor(), 0.5)
	storeImage(t, svc, "A", "img1")

	res, err := svc.SearchAndStore(context.Background(), []byte("B"), StoreRequest{ID: "img1", Category: "satellite"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stored {
		t.Fatal("expected Stored=false for duplicate id")
	}
	if !errors.Is(res.StoreErr, domain.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", res.StoreErr)
	}
	if len(res.Hits) != 1 || res.Hits[0].ID != "img1" {
		t.Errorf("expected search results kept, got %+v", res.Hits)
	}

	rec, err := repo.Get(context.Background(), "img1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Embedding().At(0) != 1 {
		t.Error("expected original record unchanged")
	}
}

func TestSearchAndStore_DuplicateNotRetried(t *testing.T) {
	store := &mockStore{insertFn: func(context.Context, record.Record) error {
		return domain.ErrDuplicateID
	}}
	svc := newTestService(t, store, abExtractor(), 0.5)

	res, err := svc.SearchAndStore(context.Background(), []byte("A"), StoreRequest{ID: "x", Category: "satellite"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stored || !errors.Is(res.StoreErr, domain.ErrDuplicateID) {
		t.Errorf("expected duplicate store error, got %+v", res)
	}
	if store.inserts.Load() != 1 {
		t.Errorf("expected 1 insert attempt, got %d", store.inserts.Load())
	}
}

func TestSearchAndStore_InsertUnavailable(t *testing.T) {
	store := &mockStore{insertFn: func(context.Context, record.Record) error {
		return errors.New("READONLY replica")
	}}
	svc := newTestService(t, store, abExtractor(), 0.5)

	res, err := svc.SearchAndStore(context.Background(), []byte("A"), StoreRequest{ID: "x", Category: "satellite"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stored || !errors.Is(res.StoreErr, domain.ErrStoreUnavailable) {
		t.Errorf("expected store unavailable, got %+v", res)
	}
	if store.inserts.Load() != 3 {
		t.Errorf("expected 3 insert attempts, got %d", store.inserts.Load())
	}
}

// lossyStore commits the first insert and then loses its reply until the
// attempt times out.
type lossyStore struct {
	*memory.Repo
	inserts atomic.Int32
}

func (l *lossyStore) Insert(ctx context.Context, rec record.Record) error {
	err := l.Repo.Insert(ctx, rec)
	if l.inserts.Add(1) == 1 && err == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func TestSearchAndStore_LostInsertReplyCountsAsStored(t *testing.T) {
	store := &lossyStore{Repo: newMemoryStore(t)}
	svc := newTestService(t, store, abExtractor(), 0.5)
	svc.cfg.Retry.Timeout = 20 * time.Millisecond

	res, err := svc.SearchAndStore(context.Background(), []byte("A"), StoreRequest{
		ID: "img1", Category: "satellite", ContentRef: "s3://bucket/img1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Stored || res.StoreErr != nil {
		t.Fatalf("expected stored after lost reply, got stored=%v err=%v", res.Stored, res.StoreErr)
	}
	if store.inserts.Load() != 2 {
		t.Errorf("expected 2 insert attempts, got %d", store.inserts.Load())
	}
	if _, err := store.Get(context.Background(), "img1"); err != nil {
		t.Errorf("expected record present, got %v", err)
	}
}

func TestSearchAndStore_RetriedDuplicateOfOtherRecord(t *testing.T) {
	other := mustEmbedding(t, 0, 1, 0, 0)
	store := &mockStore{}
	store.insertFn = func(context.Context, record.Record) error {
		if store.inserts.Load() == 1 {
			return transientErr(1)
		}
		return domain.ErrDuplicateID
	}
	store.getFn = func(_ context.Context, id string) (record.Record, error) {
		return record.Reconstruct(id, "satellite", "s3://bucket/img1", other, time.Time{}, 1), nil
	}
	svc := newTestService(t, store, abExtractor(), 0.5)

	res, err := svc.SearchAndStore(context.Background(), []byte("A"), StoreRequest{
		ID: "img1", Category: "satellite", ContentRef: "s3://bucket/img1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stored || !errors.Is(res.StoreErr, domain.ErrDuplicateID) {
		t.Errorf("expected duplicate of a different record, got stored=%v err=%v", res.Stored, res.StoreErr)
	}
}

func TestSearchAndStore_FirstInsertDoesNotSeeItself(t *testing.T) {
	svc := newTestService(t, newMemoryStore(t), abExtractor(), 0.5)

	res, err := svc.SearchAndStore(context.Background(), []byte("A"), StoreRequest{ID: "img1", Category: "satellite"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Stored {
		t.Fatalf("expected stored, got %v", res.StoreErr)
	}
	if len(res.Hits) != 0 || res.Status != StatusNotFound || res.ExactMatch != "" {
		t.Errorf("expected empty not_found result before insert, got %+v", res.Result)
	}
}

func TestSearchAndStore_QueriesBeforeInsert(t *testing.T) {
	var calls []string
	store := &mockStore{
		queryFn: func(context.Context, domain.Embedding, int, string) ([]record.Candidate, error) {
			calls = append(calls, "query")
			return nil, nil
		},
		insertFn: func(context.Context, record.Record) error {
			calls = append(calls, "insert")
			return nil
		},
	}
	svc := newTestService(t, store, abExtractor(), 0.5)

	if _, err := svc.SearchAndStore(context.Background(), []byte("A"), StoreRequest{Category: "satellite"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(calls, []string{"query", "insert"}) {
		t.Errorf("expected query then insert, got %v", calls)
	}
}

func TestSearchAndStore_ThenSearchFindsItself(t *testing.T) {
	svc := newTestService(t, newMemoryStore(t), abExtractor(), 0.5)
	storeImage(t, svc, "C", "c1")

	res, err := svc.Search(context.Background(), []byte("C"), Query{K: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].ID != "c1" {
		t.Fatalf("expected c1 top-1, got %+v", res.Hits)
	}
	if math.Abs(res.Hits[0].Score-1) > 1e-6 {
		t.Errorf("expected combined ~1, got %v", res.Hits[0].Score)
	}
}

func TestSearchVector(t *testing.T) {
	svc := newTestService(t, newMemoryStore(t), abExtractor(), 0.5)
	storeImage(t, svc, "A", "img1")

	res, err := svc.SearchVector(context.Background(), []float32{2, 0, 0, 0}, Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExactMatch != "img1" {
		t.Errorf("expected normalized query to match img1 exactly, got %+v", res)
	}

	_, err = svc.SearchVector(context.Background(), []float32{1, 0}, Query{})
	if !errors.Is(err, domain.ErrInvalidVector) {
		t.Errorf("expected ErrInvalidVector for wrong length, got %v", err)
	}

	_, err = svc.SearchVector(context.Background(), []float32{0, 0, 0, 0}, Query{})
	if !errors.Is(err, domain.ErrInvalidVector) {
		t.Errorf("expected ErrInvalidVector for zero vector, got %v", err)
	}
}

func TestGetImage(t *testing.T) {
	svc := newTestService(t, newMemoryStore(t), abExtractor(), 0.5)
	storeImage(t, svc, "A", "img1")

	rec, err := svc.GetImage(context.Background(), "img1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID() != "img1" || rec.Category() != "satellite" {
		t.Errorf("unexpected record %s/%s", rec.ID(), rec.Category())
	}

	for _, id := range []string{"missing", "../etc"} {
		if _, err := svc.GetImage(context.Background(), id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("%q: expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestStats(t *testing.T) {
	svc := newTestService(t, newMemoryStore(t), abExtractor(), 0.5)
	storeImage(t, svc, "A", "img1")
	storeImage(t, svc, "B", "img2")

	st, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Total != 2 || st.Categories["satellite"] != 2 || st.Categories["healthcare"] != 0 {
		t.Errorf("unexpected counts: %+v", st.Stats)
	}
	if st.Dimension != testDim || st.BlendWeight != 0.5 || st.TopK != 10 {
		t.Errorf("unexpected settings: %+v", st.Settings)
	}
	if len(svc.Categories()) != 3 {
		t.Errorf("expected 3 categories, got %v", svc.Categories())
	}
}

func TestSearch_Metrics(t *testing.T) {
	svc := newTestService(t, newMemoryStore(t), abExtractor(), 0.5)
	before := testutil.ToFloat64(metrics.SearchRequestsTotal.WithLabelValues(modeImage, string(StatusNotFound)))

	if _, err := svc.Search(context.Background(), []byte("A"), Query{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := testutil.ToFloat64(metrics.SearchRequestsTotal.WithLabelValues(modeImage, string(StatusNotFound)))
	if after-before != 1 {
		t.Errorf("expected not_found counter +1, got %v", after-before)
	}
}
