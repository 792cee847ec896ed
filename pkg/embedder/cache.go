package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/dgraph-io/badger/v4"
)

// CachedClient memoizes another Client's vectors in a Badger store.
// Keys are model + sha256(text); values are little-endian float32s.
type CachedClient struct {
	client Client
	db     *badger.DB
	model  string
	logger *slog.Logger
}

// CacheOptions configures NewCachedClient.
type CacheOptions struct {
	// Dir is the Badger directory. Empty keeps the cache in memory.
	Dir string
	// Model namespaces keys so switching models never returns stale vectors.
	Model  string
	Logger *slog.Logger
}

// NewCachedClient opens the cache and wraps client.
func NewCachedClient(client Client, opts CacheOptions) (*CachedClient, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	badgerOpts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.Dir == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	return &CachedClient{
		client: client,
		db:     db,
		model:  opts.Model,
		logger: opts.Logger,
	}, nil
}

// Embed returns cached vectors and embeds only the misses.
func (c *CachedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	err := c.db.View(func(txn *badger.Txn) error {
		for i, text := range texts {
			item, err := txn.Get(c.key(text))
			if errors.Is(err, badger.ErrKeyNotFound) {
				missTexts = append(missTexts, text)
				missIdx = append(missIdx, i)
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				v, err := decodeVector(val)
				out[i] = v
				return err
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// A broken cache degrades to the wrapped client.
		c.logger.Warn("Embedding cache read failed", "error", err)
		return c.client.Embed(ctx, texts)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.client.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmptyResult, len(fresh), len(missTexts))
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for j, v := range fresh {
		out[missIdx[j]] = v
		if err := wb.Set(c.key(missTexts[j]), encodeVector(v)); err != nil {
			c.logger.Warn("Embedding cache write failed", "error", err)
			return out, nil
		}
	}
	if err := wb.Flush(); err != nil {
		c.logger.Warn("Embedding cache flush failed", "error", err)
	}
	return out, nil
}

// EmbedSingle generates an embedding for a single text.
func (c *CachedClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return single(ctx, c, text)
}

// Dimensions returns the wrapped client's dimension.
func (c *CachedClient) Dimensions() int {
	return c.client.Dimensions()
}

// Close closes the cache and the wrapped client.
func (c *CachedClient) Close() error {
	return errors.Join(c.db.Close(), c.client.Close())
}

func (c *CachedClient) key(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return []byte(c.model + ":" + hex.EncodeToString(sum[:]))
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector of %d bytes", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
