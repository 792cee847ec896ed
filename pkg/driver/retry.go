package driver

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils"
)

// RetryConfig controls how RetryingStore retries writes and bounds calls.
type RetryConfig struct {
	// MaxRetries is the number of extra write attempts (default: 2)
	MaxRetries int
	// InitialDelay is the delay before the first retry (default: 200ms)
	InitialDelay time.Duration
	// MaxDelay caps the backoff (default: 5s)
	MaxDelay time.Duration
	// BackoffMultiplier grows the delay per attempt (default: 2.0)
	BackoffMultiplier float64
	// CallTimeout bounds every individual store call; 0 disables it.
	CallTimeout time.Duration
}

// DefaultRetryConfig returns the default store retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        2,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		CallTimeout:       30 * time.Second,
	}
}

// RetryingStore wraps a GraphStore with per-call timeouts and retried
// writes. Writes that still fail come back as *GraphWriteError.
type RetryingStore struct {
	store  GraphStore
	config *RetryConfig
	logger *slog.Logger
}

// NewRetryingStore wraps store. A nil config uses DefaultRetryConfig.
func NewRetryingStore(store GraphStore, config *RetryConfig, logger *slog.Logger) *RetryingStore {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 200 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingStore{store: store, config: config, logger: logger}
}

// Unwrap returns the underlying store.
func (r *RetryingStore) Unwrap() GraphStore {
	return r.store
}

func (r *RetryingStore) Provider() GraphProvider {
	return r.store.Provider()
}

func (r *RetryingStore) UpsertVertex(ctx context.Context, v *Vertex) (string, error) {
	var id string
	err := r.write(ctx, "upsert_vertex", v.ID, func(ctx context.Context) error {
		var err error
		id, err = r.store.UpsertVertex(ctx, v)
		return err
	})
	return id, err
}

func (r *RetryingStore) UpsertEdge(ctx context.Context, e *Edge) (string, error) {
	// Pin the id so a retry after an ambiguous failure cannot add a second edge.
	pinned := *e
	if pinned.ID == "" {
		pinned.ID = utils.GenerateUUID()
	}
	var id string
	err := r.write(ctx, "upsert_edge", pinned.ID, func(ctx context.Context) error {
		var err error
		id, err = r.store.UpsertEdge(ctx, &pinned)
		return err
	})
	return id, err
}

func (r *RetryingStore) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	return r.write(ctx, "set_embedding", id, func(ctx context.Context) error {
		return r.store.SetEmbedding(ctx, id, embedding)
	})
}

func (r *RetryingStore) DeleteVertex(ctx context.Context, id string) error {
	return r.write(ctx, "delete_vertex", id, func(ctx context.Context) error {
		return r.store.DeleteVertex(ctx, id)
	})
}

func (r *RetryingStore) RedirectEdges(ctx context.Context, fromID, toID string) error {
	return r.write(ctx, "redirect_edges", fromID, func(ctx context.Context) error {
		return r.store.RedirectEdges(ctx, fromID, toID)
	})
}

func (r *RetryingStore) GetVertex(ctx context.Context, id string) (*Vertex, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.GetVertex(ctx, id)
}

func (r *RetryingStore) FindVertices(ctx context.Context, label string, filters *types.Properties) ([]*Vertex, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.FindVertices(ctx, label, filters)
}

func (r *RetryingStore) FindEdges(ctx context.Context, label string, filters *types.Properties) ([]*Edge, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.FindEdges(ctx, label, filters)
}

func (r *RetryingStore) Traverse(ctx context.Context, startID string, maxHops int, edgeLabels []string) (*Subgraph, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.Traverse(ctx, startID, maxHops, edgeLabels)
}

func (r *RetryingStore) CreateIndices(ctx context.Context) error {
	return r.store.CreateIndices(ctx)
}

func (r *RetryingStore) GetStats(ctx context.Context, groupID string) (*GraphStats, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.GetStats(ctx, groupID)
}

func (r *RetryingStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.HealthCheck(ctx)
}

func (r *RetryingStore) Close(ctx context.Context) error {
	return r.store.Close(ctx)
}

func (r *RetryingStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.config.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.config.CallTimeout)
}

func (r *RetryingStore) write(ctx context.Context, op, id string, fn func(context.Context) error) error {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &GraphWriteError{Op: op, ID: id, Attempts: attempts, Err: ctx.Err()}
			}
			r.logger.Warn("Retrying graph write", "op", op, "id", id, "attempt", attempt, "error", lastErr)
		}

		attempts++
		callCtx, cancel := r.bound(ctx)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableStoreError(ctx, err) {
			break
		}
	}
	return &GraphWriteError{Op: op, ID: id, Attempts: attempts, Err: lastErr}
}

func (r *RetryingStore) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	return time.Duration(delay)
}

// isRetryableStoreError rejects validation failures and caller cancellation.
// A per-call timeout on a live parent context is worth another attempt.
func isRetryableStoreError(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidLabel),
		errors.Is(err, ErrInvalidProperties),
		errors.Is(err, ErrVertexNotFound),
		errors.Is(err, ErrStoreClosed),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
