package episodic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soundprediction/episodic/pkg/config"
	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/embedder"
	"github.com/soundprediction/episodic/pkg/nlp"
	"github.com/soundprediction/episodic/pkg/prompts"
	"github.com/soundprediction/episodic/pkg/search"
	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils"
	"github.com/soundprediction/episodic/pkg/utils/maintenance"
)

const (
	DefaultGroupID                 = "default"
	DefaultSource                  = "user_input"
	DefaultMaxEpisodeContentLength = 2000
	DefaultGraphTimeout            = 30 * time.Second
	DefaultLLMTimeout              = 60 * time.Second
	DefaultGraphWriteRetries       = 2
	DefaultEmbeddingConcurrency    = 4
	DefaultEpisodeConcurrency      = 4
)

// Config holds configuration for the episodic client. A zero numeric field
// takes its default. SimilarityThreshold, DefaultConfidence,
// MentionConfidence and GraphWriteRetries accept a negative value to mean
// a literal zero.
type Config struct {
	// GroupID partitions every vertex and edge the client reads or writes.
	GroupID string
	// EntityTypes restricts extraction; empty means every type.
	EntityTypes []types.EntityType

	// SimilarityThreshold is the cosine score a same-type entity must
	// strictly exceed to be merged (default 0.92).
	SimilarityThreshold float64
	// DefaultConfidence is used when the LLM omits a relationship
	// confidence (default 0.5).
	DefaultConfidence float64
	// MentionConfidence is stored on episode MENTIONS edges (default 0.8).
	MentionConfidence float64
	// MaxEpisodeContentLength bounds the content stored on the episode
	// vertex, in runes (default 2000). Extraction always sees the full text.
	MaxEpisodeContentLength int

	LLMTimeout   time.Duration
	GraphTimeout time.Duration
	// GraphWriteRetries is how many times a failed write is retried
	// (default 2, negative disables retries).
	GraphWriteRetries int
	// GraphRetryDelay is the first backoff between write attempts.
	GraphRetryDelay time.Duration

	EmbeddingConcurrency int
	EpisodeConcurrency   int

	// ArchiveDir, when set, receives a parquet copy of every processed
	// episode with its entities and relationships.
	ArchiveDir string

	Search search.Config
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.GroupID == "" {
		c.GroupID = DefaultGroupID
	}
	c.SimilarityThreshold = orDefault(c.SimilarityThreshold, maintenance.DefaultSimilarityThreshold)
	c.DefaultConfidence = orDefault(c.DefaultConfidence, maintenance.DefaultConfidence)
	c.MentionConfidence = orDefault(c.MentionConfidence, maintenance.DefaultMentionConfidence)
	c.GraphWriteRetries = orDefault(c.GraphWriteRetries, DefaultGraphWriteRetries)
	if c.MaxEpisodeContentLength <= 0 {
		c.MaxEpisodeContentLength = DefaultMaxEpisodeContentLength
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = DefaultLLMTimeout
	}
	if c.GraphTimeout <= 0 {
		c.GraphTimeout = DefaultGraphTimeout
	}
	if c.EmbeddingConcurrency <= 0 {
		c.EmbeddingConcurrency = DefaultEmbeddingConcurrency
	}
	if c.EpisodeConcurrency <= 0 {
		c.EpisodeConcurrency = DefaultEpisodeConcurrency
	}
}

// orDefault maps zero to def and a negative value to zero.
func orDefault[T int | float64](v, def T) T {
	switch {
	case v == 0:
		return def
	case v < 0:
		return 0
	}
	return v
}

// literal keeps an explicit zero from being read as "unset".
func literal[T int | float64](v T) T {
	if v == 0 {
		return -1
	}
	return v
}

// ConfigFrom maps the loaded application configuration onto a client Config.
// The loaded values already carry their defaults, so a zero there is taken
// literally. Remaining defaults are applied by NewClient.
func ConfigFrom(cfg *config.Config) *Config {
	c := &Config{
		GroupID:                 cfg.GroupID,
		SimilarityThreshold:     literal(cfg.Pipeline.SimilarityThreshold),
		DefaultConfidence:       literal(cfg.Pipeline.DefaultConfidence),
		MentionConfidence:       literal(cfg.Pipeline.MentionConfidence),
		MaxEpisodeContentLength: cfg.Pipeline.MaxContentLength,
		LLMTimeout:              cfg.Pipeline.LLMTimeout,
		GraphTimeout:            cfg.Pipeline.GraphTimeout,
		GraphWriteRetries:       literal(cfg.Pipeline.GraphWriteRetries),
		EmbeddingConcurrency:    cfg.Pipeline.EmbeddingConcurrency,
		EpisodeConcurrency:      cfg.Pipeline.EpisodeConcurrency,
		ArchiveDir:              cfg.Pipeline.ArchiveDir,
		Search: search.Config{
			DefaultLimit:     cfg.Search.DefaultLimit,
			MaxLimit:         cfg.Search.MaxLimit,
			MinSemanticScore: cfg.Search.MinSemanticScore,
			DefaultMaxHops:   cfg.Search.DefaultMaxHops,
			MaxHops:          cfg.Search.MaxHops,
			NeighborLimit:    cfg.Search.NeighborLimit,
		},
	}
	return c
}

// AddEpisodeOptions holds options for adding a single episode.
type AddEpisodeOptions struct {
	// EpisodeID overrides the generated id. Re-using an id refreshes the
	// existing provenance vertex.
	EpisodeID string
	// CreatedAt overrides the episode timestamp (default now).
	CreatedAt time.Time
	// GroupID overrides the client's group for this episode.
	GroupID string
	// KnownEntities are offered to the extractor so it reuses their names.
	KnownEntities []*types.Entity
}

// EpisodeResult reports the outcome of one episode.
type EpisodeResult struct {
	EpisodeID       string              `json:"episode_id"`
	Status          types.EpisodeStatus `json:"status"`
	State           types.EpisodeState  `json:"state"`
	EntityIDs       []string            `json:"entity_ids"`
	RelationshipIDs []string            `json:"relationship_ids"`
	// CreatedEntities counts the entities that did not exist before.
	CreatedEntities int           `json:"created_entities"`
	Warnings        []error       `json:"-"`
	Duration        time.Duration `json:"duration"`
}

// WarningMessages returns the warnings as strings.
func (r *EpisodeResult) WarningMessages() []string {
	msgs := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		msgs = append(msgs, w.Error())
	}
	return msgs
}

// Client is the main implementation of the Episodic interface.
type Client struct {
	store    driver.GraphStore
	llm      nlp.Client
	embedder embedder.Client
	searcher *search.Searcher
	nodeOps  *maintenance.NodeOperations
	edgeOps  *maintenance.EdgeOperations
	resolver *maintenance.Resolver
	graphOps *maintenance.GraphDataOperations
	utils    *maintenance.MaintenanceUtils
	archive  *utils.ParquetGraphWriter
	config   *Config
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	closed   bool
}

// NewClient creates a new episodic client. The store is wrapped with
// retried writes and per-call timeouts. A nil embedder disables semantic
// resolution, entity embeddings and semantic search.
func NewClient(store driver.GraphStore, llmClient nlp.Client, embedderClient embedder.Client, config *Config, logger *slog.Logger) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("graph store is required")
	}
	if llmClient == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	cfg.applyDefaults()
	if err := utils.ValidateGroupID(cfg.GroupID); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	retryCfg := driver.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.GraphWriteRetries
	retryCfg.CallTimeout = cfg.GraphTimeout
	if cfg.GraphRetryDelay > 0 {
		retryCfg.InitialDelay = cfg.GraphRetryDelay
	}
	wrapped := driver.NewRetryingStore(store, retryCfg, logger)

	library := prompts.NewLibrary()

	nodeOps := maintenance.NewNodeOperations(llmClient, library)
	nodeOps.SetLogger(logger)
	nodeOps.Timeout = cfg.LLMTimeout

	edgeOps := maintenance.NewEdgeOperations(llmClient, library)
	edgeOps.SetLogger(logger)
	edgeOps.Timeout = cfg.LLMTimeout
	edgeOps.DefaultConfidence = cfg.DefaultConfidence
	edgeOps.MentionConfidence = cfg.MentionConfidence

	resolver := maintenance.NewResolver(wrapped, embedderClient)
	resolver.SetLogger(logger)
	resolver.SimilarityThreshold = cfg.SimilarityThreshold

	graphOps := maintenance.NewGraphDataOperations(wrapped)
	graphOps.SetLogger(logger)

	searcher := search.NewSearcher(wrapped, embedderClient, cfg.Search)
	searcher.SetLogger(logger)

	c := &Client{
		store:    wrapped,
		llm:      llmClient,
		embedder: embedderClient,
		searcher: searcher,
		nodeOps:  nodeOps,
		edgeOps:  edgeOps,
		resolver: resolver,
		graphOps: graphOps,
		utils:    maintenance.NewMaintenanceUtils(wrapped),
		config:   &cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		inFlight: make(map[string]struct{}),
	}

	if cfg.ArchiveDir != "" {
		archive, err := utils.NewParquetGraphWriter(cfg.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open episode archive: %w", err)
		}
		c.archive = archive
	}
	return c, nil
}

// SetClock replaces the time source used for timestamps.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
	c.resolver.Now = now
	c.graphOps.Now = now
}

// GetStore returns the underlying graph store (wrapped with retries).
func (c *Client) GetStore() driver.GraphStore {
	return c.store
}

// GetLLM returns the LLM client
func (c *Client) GetLLM() nlp.Client {
	return c.llm
}

// GetEmbedder returns the embedder client
func (c *Client) GetEmbedder() embedder.Client {
	return c.embedder
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() Config {
	return *c.config
}

// acquire marks an episode id as in flight.
func (c *Client) acquire(id string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if _, busy := c.inFlight[id]; busy {
		return nil, fmt.Errorf("%w: %s", ErrEpisodeInFlight, id)
	}
	c.inFlight[id] = struct{}{}
	return func() {
		c.mu.Lock()
		delete(c.inFlight, id)
		c.mu.Unlock()
	}, nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the store, the LLM client, the embedder and the archive.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var errs []error
	if c.archive != nil {
		if err := c.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("archive: %w", err))
		}
	}
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("embedder: %w", err))
		}
	}
	if err := c.llm.Close(); err != nil {
		errs = append(errs, fmt.Errorf("llm: %w", err))
	}
	if err := c.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	return errors.Join(errs...)
}
