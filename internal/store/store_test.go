package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"titan/internal/config"
	"titan/internal/research"
	"titan/internal/synthesis"
)

// fakeEmbedder maps any text containing one of its keys to a fixed
// 4-dimensional vector.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	for key, vec := range f.vectors {
		if strings.Contains(text, key) {
			return vec, nil
		}
	}
	return []float32{0, 0, 0, 0}, nil
}

func testReport(id, query, summary string) *research.Report {
	return &research.Report{
		ID:    id,
		Query: query,
		Mode:  research.ModeResearch,
		Map: &synthesis.IntelligenceMap{
			Summary:     summary,
			KeyFindings: []string{"finding"},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func openTestStore(t *testing.T, embedder Embedder) *Store {
	t.Helper()
	cfg := config.StoreConfig{
		Path:      filepath.Join(t.TempDir(), "titan.db"),
		EmbedDims: 4,
	}
	s, err := Open(cfg, embedder, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAndRecentWithoutEmbedder(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	older := testReport("r1", "acme pricing", "Acme sells seats.")
	older.CreatedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	newer := testReport("r2", "rival pricing", "Rival sells usage.")
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	require.NoError(t, s.Store(ctx, older))
	require.NoError(t, s.Store(ctx, newer))

	// Newest first.
	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rival pricing", got[0].Query)
	assert.Equal(t, "acme pricing", got[1].Query)
	assert.Equal(t, "Rival sells usage.", got[0].Map.Summary)
	assert.Equal(t, string(research.ModeResearch), got[0].Mode)
}

func TestSimilarOrdersByDistance(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"acme":  {1, 0, 0, 0},
		"rival": {0, 1, 0, 0},
		"recall acme": {0.9, 0.1, 0, 0},
	}}
	s := openTestStore(t, embedder)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, testReport("r1", "acme pricing", "Acme sells seats.")))
	require.NoError(t, s.Store(ctx, testReport("r2", "rival pricing", "Rival sells usage.")))

	got, err := s.Similar(ctx, "recall acme", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "acme pricing", got[0].Query)
	assert.Less(t, got[0].Distance, got[1].Distance)
}

func TestSimilarRequiresEmbedder(t *testing.T) {
	s := openTestStore(t, nil)

	_, err := s.Similar(context.Background(), "anything", 5)
	require.Error(t, err)
}

func TestEmbeddingFailureStillPersists(t *testing.T) {
	s := openTestStore(t, &fakeEmbedder{err: errors.New("embed quota")})
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, testReport("r1", "acme", "summary")))

	got, err := s.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
}

// contendingEmbedder checks whether the store mutex is free while the
// embedding call runs; writes must not serialize behind it.
type contendingEmbedder struct {
	s         *Store
	mutexHeld bool
}

func (e *contendingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.s.mu.TryLock() {
		e.s.mu.Unlock()
	} else {
		e.mutexHeld = true
	}
	return []float32{1, 0, 0, 0}, nil
}

func TestStoreReleasesMutexBeforeEmbedding(t *testing.T) {
	embedder := &contendingEmbedder{}
	s := openTestStore(t, embedder)
	embedder.s = s

	require.NoError(t, s.Store(context.Background(), testReport("r1", "acme", "summary")))
	assert.False(t, embedder.mutexHeld, "store mutex held across the embedding call")
}

func TestStoreAfterClose(t *testing.T) {
	s := openTestStore(t, nil)
	require.NoError(t, s.Close())

	err := s.Store(context.Background(), testReport("r1", "acme", "summary"))
	require.Error(t, err)
}
