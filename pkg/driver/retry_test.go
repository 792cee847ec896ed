package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the first n writes with err.
type flakyStore struct {
	*MemoryDriver
	failures int
	err      error
	calls    int
}

func (f *flakyStore) UpsertVertex(ctx context.Context, v *Vertex) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return f.MemoryDriver.UpsertVertex(ctx, v)
}

func (f *flakyStore) UpsertEdge(ctx context.Context, e *Edge) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return f.MemoryDriver.UpsertEdge(ctx, e)
}

func fastRetryConfig(retries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:        retries,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
		CallTimeout:       time.Second,
	}
}

func TestRetryingStoreRecoversFromTransientFailure(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{MemoryDriver: NewMemoryDriver(), failures: 2, err: errors.New("connection reset")}
	store := NewRetryingStore(inner, fastRetryConfig(2), nil)

	id, err := store.UpsertVertex(ctx, entityVertex(t, "a", "Alice"))
	require.NoError(t, err)
	assert.Equal(t, "a", id)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingStoreWrapsFinalFailure(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("service unavailable")
	inner := &flakyStore{MemoryDriver: NewMemoryDriver(), failures: 10, err: cause}
	store := NewRetryingStore(inner, fastRetryConfig(2), nil)

	_, err := store.UpsertVertex(ctx, entityVertex(t, "a", "Alice"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGraphWrite)
	assert.ErrorIs(t, err, cause)

	var gwe *GraphWriteError
	require.ErrorAs(t, err, &gwe)
	assert.Equal(t, "upsert_vertex", gwe.Op)
	assert.Equal(t, "a", gwe.ID)
	assert.Equal(t, 3, gwe.Attempts)
}

func TestRetryingStoreDoesNotRetryValidationErrors(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{MemoryDriver: NewMemoryDriver()}
	store := NewRetryingStore(inner, fastRetryConfig(3), nil)

	_, err := store.UpsertEdge(ctx, relEdge("missing", "gone", "knows"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVertexNotFound)

	var gwe *GraphWriteError
	require.ErrorAs(t, err, &gwe)
	assert.Equal(t, 1, gwe.Attempts)
	assert.NotEmpty(t, gwe.ID, "edge id is pinned before the first attempt")
}

func TestRetryingStoreSetEmbedding(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryDriver()
	store := NewRetryingStore(inner, fastRetryConfig(2), nil)

	_, err := store.UpsertVertex(ctx, entityVertex(t, "a", "Alice"))
	require.NoError(t, err)
	require.NoError(t, store.SetEmbedding(ctx, "a", []float32{1, 0}))

	got, err := inner.GetVertex(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, got.Embedding)

	err = store.SetEmbedding(ctx, "missing", []float32{1, 0})
	var gwErr *GraphWriteError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "set_embedding", gwErr.Op)
	assert.Equal(t, 1, gwErr.Attempts)
	assert.ErrorIs(t, err, ErrVertexNotFound)
}

func TestRetryingStoreHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inner := &flakyStore{MemoryDriver: NewMemoryDriver(), failures: 10, err: errors.New("timeout")}
	store := NewRetryingStore(inner, fastRetryConfig(5), nil)

	_, err := store.UpsertVertex(ctx, entityVertex(t, "a", "Alice"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGraphWrite)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingStoreCalculateDelay(t *testing.T) {
	store := NewRetryingStore(NewMemoryDriver(), &RetryConfig{
		MaxRetries:        5,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          300 * time.Millisecond,
		BackoffMultiplier: 2,
	}, nil)

	assert.Equal(t, 100*time.Millisecond, store.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, store.calculateDelay(2))
	assert.Equal(t, 300*time.Millisecond, store.calculateDelay(3))
}
