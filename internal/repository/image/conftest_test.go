package image

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/vecsight/internal/db"
	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/domain/record"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	pingFn           func(ctx context.Context) error
	hsetIfAbsentFn   func(ctx context.Context, key string, fields map[string]string) (bool, error)
	hgetAllFn        func(ctx context.Context, key string) (map[string]string, error)
	incrFn           func(ctx context.Context, key string) (int64, error)
	createIndexFn    func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn    func(ctx context.Context, name string) (bool, error)
	indexVectorDimFn func(ctx context.Context, name, attribute string) (int, error)
	searchKNNFn      func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchCountFn    func(ctx context.Context, index, query string) (int, error)
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func (m *mockStore) HSetIfAbsent(ctx context.Context, key string, fields map[string]string) (bool, error) {
	if m.hsetIfAbsentFn != nil {
		return m.hsetIfAbsentFn(ctx, key, fields)
	}
	return true, nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) Incr(ctx context.Context, key string) (int64, error) {
	if m.incrFn != nil {
		return m.incrFn(ctx, key)
	}
	return 1, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) IndexVectorDim(ctx context.Context, name, attribute string) (int, error) {
	if m.indexVectorDimFn != nil {
		return m.indexVectorDimFn(ctx, name, attribute)
	}
	return testDim, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index, query string) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, index, query)
	}
	return 0, nil
}

const testDim = 4

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, "vecsight:", testDim), ms
}

func testRecord(t *testing.T, id string, vec []float32) record.Record {
	t.Helper()
	emb, err := domain.NewEmbedding(vec)
	if err != nil {
		t.Fatalf("NewEmbedding: %v", err)
	}
	rec, err := record.New(id, "satellite", "s3://bucket/"+id+".png", emb,
		time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("record.New: %v", err)
	}
	return rec
}
