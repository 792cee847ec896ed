package search

const (
	DefaultLimit            = 10
	MaxSearchLimit          = 100
	DefaultMinSemanticScore = 0.3
	DefaultMaxHops          = 2
	MaxHops                 = 5
	DefaultNeighborLimit    = 20
)

// Config tunes the Searcher. Zero fields take the package defaults.
type Config struct {
	DefaultLimit     int     `json:"default_limit"`
	MaxLimit         int     `json:"max_limit"`
	MinSemanticScore float64 `json:"min_semantic_score"`
	DefaultMaxHops   int     `json:"default_max_hops"`
	MaxHops          int     `json:"max_hops"`
	NeighborLimit    int     `json:"neighbor_limit"`
}

// DefaultConfig returns the default search settings.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:     DefaultLimit,
		MaxLimit:         MaxSearchLimit,
		MinSemanticScore: DefaultMinSemanticScore,
		DefaultMaxHops:   DefaultMaxHops,
		MaxHops:          MaxHops,
		NeighborLimit:    DefaultNeighborLimit,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = d.DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = d.MaxLimit
	}
	if c.MinSemanticScore <= 0 {
		c.MinSemanticScore = d.MinSemanticScore
	}
	if c.DefaultMaxHops <= 0 {
		c.DefaultMaxHops = d.DefaultMaxHops
	}
	if c.MaxHops <= 0 {
		c.MaxHops = d.MaxHops
	}
	if c.NeighborLimit <= 0 {
		c.NeighborLimit = d.NeighborLimit
	}
	return c
}

// RelationshipSearchOptions restricts a relationship search to the
// neighbourhood of one entity.
type RelationshipSearchOptions struct {
	// AnchorEntity is an entity name, resolved through entity search.
	AnchorEntity string `json:"anchor_entity,omitempty"`
	// MaxHops bounds the distance from the anchor (default 2, max 5).
	MaxHops int `json:"max_hops,omitempty"`
}

// limit applies the default and the cap.
func (c Config) limit(n int) int {
	if n <= 0 {
		return c.DefaultLimit
	}
	if n > c.MaxLimit {
		return c.MaxLimit
	}
	return n
}

// hops applies the default and the cap.
func (c Config) hops(n int) int {
	if n <= 0 {
		return c.DefaultMaxHops
	}
	if n > c.MaxHops {
		return c.MaxHops
	}
	return n
}
