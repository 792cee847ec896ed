package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every automatically bound environment variable,
// e.g. EPISODIC_PIPELINE_SIMILARITY_THRESHOLD.
const EnvPrefix = "EPISODIC"

// Config holds all configuration for the application
type Config struct {
	// GroupID namespaces every record written or read.
	GroupID string `mapstructure:"group_id"`

	Log            LogConfig            `mapstructure:"log"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	LLM            LLMConfig            `mapstructure:"llm"`
	Embedding      EmbeddingConfig      `mapstructure:"embedding"`
	Pipeline       PipelineConfig       `mapstructure:"pipeline"`
	Search         SearchConfig         `mapstructure:"search"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Alert          AlertConfig          `mapstructure:"alert"`
	Telemetry      TelemetryConfig      `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json, color
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // neo4j, memory
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// LLMConfig holds the chat model used for extraction.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"` // openai, azure
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	APIVersion  string  `mapstructure:"api_version"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	MaxRetries  int     `mapstructure:"max_retries"`
}

// EmbeddingConfig holds embedding configuration
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // openai, azure, embedeverything, none
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	APIVersion string `mapstructure:"api_version"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
	// CacheDir enables the on-disk embedding cache when set.
	CacheDir string `mapstructure:"cache_dir"`
}

// PipelineConfig tunes episode ingestion.
type PipelineConfig struct {
	SimilarityThreshold  float64       `mapstructure:"similarity_threshold"`
	DefaultConfidence    float64       `mapstructure:"default_confidence"`
	MentionConfidence    float64       `mapstructure:"mention_confidence"`
	MaxContentLength     int           `mapstructure:"max_content_length"`
	LLMTimeout           time.Duration `mapstructure:"llm_timeout"`
	GraphTimeout         time.Duration `mapstructure:"graph_timeout"`
	GraphWriteRetries    int           `mapstructure:"graph_write_retries"`
	EmbeddingConcurrency int           `mapstructure:"embedding_concurrency"`
	EpisodeConcurrency   int           `mapstructure:"episode_concurrency"`
	// ArchiveDir enables the parquet archive of ingested episodes when set.
	ArchiveDir string `mapstructure:"archive_dir"`
}

// SearchConfig tunes retrieval.
type SearchConfig struct {
	DefaultLimit     int     `mapstructure:"default_limit"`
	MaxLimit         int     `mapstructure:"max_limit"`
	MinSemanticScore float64 `mapstructure:"min_semantic_score"`
	DefaultMaxHops   int     `mapstructure:"default_max_hops"`
	MaxHops          int     `mapstructure:"max_hops"`
	NeighborLimit    int     `mapstructure:"neighbor_limit"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// AlertConfig holds configuration for alerting
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ParquetPath string `mapstructure:"parquet_path"`
	// TokenUsage also records per-call token counts under ParquetPath.
	TokenUsage bool `mapstructure:"token_usage"`
	// SQLDSN, when set, also sends error logs to a MySQL-compatible
	// database (Dolt works).
	SQLDSN string `mapstructure:"sql_dsn"`
}

// Load builds the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds the configuration from v: defaults, then whatever v
// already read (config file, flags), then EPISODIC_* and well-known
// environment variables.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)
	return config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	v.SetDefault("group_id", "default")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "neo4j")
	v.SetDefault("database.uri", "bolt://localhost:7687")
	v.SetDefault("database.username", "neo4j")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "neo4j")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.max_retries", 3)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.batch_size", 64)

	v.SetDefault("pipeline.similarity_threshold", 0.92)
	v.SetDefault("pipeline.default_confidence", 0.5)
	v.SetDefault("pipeline.mention_confidence", 0.8)
	v.SetDefault("pipeline.max_content_length", 2000)
	v.SetDefault("pipeline.llm_timeout", "60s")
	v.SetDefault("pipeline.graph_timeout", "30s")
	v.SetDefault("pipeline.graph_write_retries", 2)
	v.SetDefault("pipeline.embedding_concurrency", 4)
	v.SetDefault("pipeline.episode_concurrency", 4)

	v.SetDefault("search.default_limit", 10)
	v.SetDefault("search.max_limit", 100)
	v.SetDefault("search.min_semantic_score", 0.3)
	v.SetDefault("search.default_max_hops", 2)
	v.SetDefault("search.max_hops", 5)
	v.SetDefault("search.neighbor_limit", 20)

	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("circuit_breaker.max_requests", 1)
	v.SetDefault("circuit_breaker.interval", 60)
	v.SetDefault("circuit_breaker.timeout", 30)
	v.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	v.SetDefault("alert.smtp_port", 587)

	home, err := os.UserHomeDir()
	if err == nil {
		v.SetDefault("telemetry.parquet_path", filepath.Join(home, ".episodic", "telemetry"))
	}
}

// overrideWithEnv applies the well-known provider variables, which win over
// config file values.
func overrideWithEnv(config *Config) {
	if groupID := os.Getenv("EPISODIC_GROUP_ID"); groupID != "" {
		config.GroupID = groupID
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if config.LLM.Provider == "openai" {
			config.LLM.APIKey = apiKey
		}
		if config.Embedding.Provider == "openai" {
			config.Embedding.APIKey = apiKey
		}
	}

	// Azure OpenAI switches both the chat and embedding clients over.
	if endpoint := os.Getenv("AZURE_OPENAI_ENDPOINT"); endpoint != "" {
		key := os.Getenv("AZURE_OPENAI_KEY")
		version := os.Getenv("AZURE_OPENAI_API_VERSION")

		config.LLM.Provider = "azure"
		config.LLM.BaseURL = endpoint
		config.LLM.APIKey = key
		if version != "" {
			config.LLM.APIVersion = version
		}
		if deployment := os.Getenv("AZURE_OPENAI_LLM_DEPLOYMENT"); deployment != "" {
			config.LLM.Model = deployment
		}

		if config.Embedding.Provider == "openai" || config.Embedding.Provider == "azure" {
			config.Embedding.Provider = "azure"
			config.Embedding.BaseURL = endpoint
			config.Embedding.APIKey = key
			if version != "" {
				config.Embedding.APIVersion = version
			}
			if deployment := os.Getenv("AZURE_OPENAI_EMBEDDINGS_DEPLOYMENT"); deployment != "" {
				config.Embedding.Model = deployment
			}
		}
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		config.Database.Database = db
	}

	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}

// Validate reports every missing or out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	missing := func(name string) {
		errs = append(errs, fmt.Errorf("missing required setting %s", name))
	}

	if c.GroupID == "" {
		missing("group_id")
	}

	switch c.Database.Driver {
	case "neo4j":
		if c.Database.URI == "" {
			missing("database.uri (NEO4J_URI)")
		}
		if c.Database.Username == "" {
			missing("database.username (NEO4J_USER)")
		}
		if c.Database.Password == "" {
			missing("database.password (NEO4J_PASSWORD)")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
			missing("llm.api_key (OPENAI_API_KEY)")
		}
	case "azure":
		if c.LLM.BaseURL == "" {
			missing("llm.base_url (AZURE_OPENAI_ENDPOINT)")
		}
		if c.LLM.APIKey == "" {
			missing("llm.api_key (AZURE_OPENAI_KEY)")
		}
		if c.LLM.Model == "" {
			missing("llm.model (AZURE_OPENAI_LLM_DEPLOYMENT)")
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported llm.provider %q", c.LLM.Provider))
	}

	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" && c.Embedding.BaseURL == "" {
			missing("embedding.api_key (OPENAI_API_KEY)")
		}
	case "azure":
		if c.Embedding.BaseURL == "" {
			missing("embedding.base_url (AZURE_OPENAI_ENDPOINT)")
		}
		if c.Embedding.Model == "" {
			missing("embedding.model (AZURE_OPENAI_EMBEDDINGS_DEPLOYMENT)")
		}
	case "embedeverything", "none":
	default:
		errs = append(errs, fmt.Errorf("unsupported embedding.provider %q", c.Embedding.Provider))
	}

	p := c.Pipeline
	if p.SimilarityThreshold <= 0 || p.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.similarity_threshold must be in (0, 1], got %v", p.SimilarityThreshold))
	}
	if p.DefaultConfidence < 0 || p.DefaultConfidence > 1 {
		errs = append(errs, fmt.Errorf("pipeline.default_confidence must be in [0, 1], got %v", p.DefaultConfidence))
	}
	if p.MentionConfidence < 0 || p.MentionConfidence > 1 {
		errs = append(errs, fmt.Errorf("pipeline.mention_confidence must be in [0, 1], got %v", p.MentionConfidence))
	}
	if p.MaxContentLength <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_content_length must be positive, got %d", p.MaxContentLength))
	}

	if c.Search.MaxLimit < c.Search.DefaultLimit {
		errs = append(errs, fmt.Errorf("search.max_limit (%d) is below search.default_limit (%d)", c.Search.MaxLimit, c.Search.DefaultLimit))
	}

	if c.Alert.Enabled && (c.Alert.SMTPHost == "" || len(c.Alert.To) == 0) {
		missing("alert.smtp_host and alert.to")
	}

	return errors.Join(errs...)
}
