package embedder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingClient returns [len(text), calls] for every text.
type countingClient struct {
	calls  int
	texts  int
	err    error
	closed bool
}

func (c *countingClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		c.texts++
		out[i] = []float32{float32(len(t)), float32(c.calls)}
	}
	return out, nil
}

func (c *countingClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return single(ctx, c, text)
}

func (c *countingClient) Dimensions() int { return 2 }

func (c *countingClient) Close() error {
	c.closed = true
	return nil
}

func TestCachedClient(t *testing.T) {
	inner := &countingClient{}
	cache, err := NewCachedClient(inner, CacheOptions{Model: "m"})
	require.NoError(t, err)
	ctx := context.Background()

	first, err := cache.Embed(ctx, []string{"alpha", "be"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{5, 1}, {2, 1}}, first)

	second, err := cache.Embed(ctx, []string{"be", "gamma", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 1}, {5, 2}, {5, 1}}, second)
	assert.Equal(t, 3, inner.texts, "only the miss is re-embedded")

	v, err := cache.EmbedSingle(ctx, "gamma")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 2}, v)
	assert.Equal(t, 2, inner.calls)

	assert.Equal(t, 2, cache.Dimensions())
	require.NoError(t, cache.Close())
	assert.True(t, inner.closed)
}

func TestCachedClientPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cache, err := NewCachedClient(&countingClient{}, CacheOptions{Dir: dir, Model: "m"})
	require.NoError(t, err)
	_, err = cache.Embed(ctx, []string{"hello"})
	require.NoError(t, err)
	require.NoError(t, cache.Close())

	inner := &countingClient{err: errors.New("should not be called")}
	reopened, err := NewCachedClient(inner, CacheOptions{Dir: dir, Model: "m"})
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.EmbedSingle(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1}, v)

	// A different model never sees the first model's vectors.
	other, err := NewCachedClient(&countingClient{}, CacheOptions{Model: "other"})
	require.NoError(t, err)
	defer other.Close()
	assert.NotEqual(t, reopened.key("hello"), other.key("hello"))
}

func TestCachedClientPropagatesErrors(t *testing.T) {
	boom := errors.New("provider down")
	cache, err := NewCachedClient(&countingClient{err: boom}, CacheOptions{})
	require.NoError(t, err)
	defer cache.Close()

	_, err = cache.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
