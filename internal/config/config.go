// homerag/config.go

package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// EmbeddingConfig selects and sizes the embedding backend (§6.2/§6.3).
type EmbeddingConfig struct {
	Backend   string `yaml:"backend"` // local | remote_a | remote_b
	Dimension int    `yaml:"dimension"`
	Host      string `yaml:"host,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
}

// RewriteConfig controls QueryRewriter.
type RewriteConfig struct {
	Enabled   bool `yaml:"enabled"`
	TimeoutMs int  `yaml:"timeout_ms"`
}

// ExpansionConfig controls QueryExpander.
type ExpansionConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxVariants int  `yaml:"max_variants"`
}

type QueryConfig struct {
	Rewrite   RewriteConfig   `yaml:"rewrite"`
	Expansion ExpansionConfig `yaml:"expansion"`
}

// KRangeConfig is the {min, base, max} triplet for one scope (§4.5/§6.3).
type KRangeConfig struct {
	Min  int `yaml:"min"`
	Base int `yaml:"base"`
	Max  int `yaml:"max"`
}

type ScopeConfig struct {
	KRanges map[string]KRangeConfig `yaml:"k_ranges"`
}

type ClusterRetrieverConfig struct {
	TopM int `yaml:"top_m"`
}

type HybridRetrieverConfig struct {
	VectorWeight float64 `yaml:"vector_weight"`
}

type RetrieverConfig struct {
	Cluster ClusterRetrieverConfig `yaml:"cluster"`
	Hybrid  HybridRetrieverConfig  `yaml:"hybrid"`
}

// SimilarityThresholds are the §4.6 ClusterSearch/HybridVectorSearch cutoffs.
type SimilarityThresholds struct {
	Excellent  float64 `yaml:"excellent"`
	Good       float64 `yaml:"good"`
	Acceptable float64 `yaml:"acceptable"`
	Minimum    float64 `yaml:"minimum"`
}

// RerankerWeights are the seven §4.7 factor weights.
type RerankerWeights struct {
	Semantic float64 `yaml:"semantic"`
	Lexical  float64 `yaml:"lexical"`
	Area     float64 `yaml:"area"`
	Domain   float64 `yaml:"domain"`
	Intent   float64 `yaml:"intent"`
	Memory   float64 `yaml:"memory"`
	Recency  float64 `yaml:"recency"`
}

type RerankerConfig struct {
	Weights    RerankerWeights `yaml:"weights"`
	TimeoutMs  int             `yaml:"timeout_ms"`
	ScorerHost string          `yaml:"scorer_host,omitempty"`
}

// MemoryConfig controls ConversationMemory (§4's memory collaborator).
type MemoryConfig struct {
	TTLSeconds           int    `yaml:"ttl_seconds"`
	MaxEntriesPerSession int    `yaml:"max_entries_per_session"`
	RedisAddr            string `yaml:"redis_addr,omitempty"`
	RedisPassword        string `yaml:"redis_password,omitempty"`
	RedisDB              int    `yaml:"redis_db,omitempty"`
}

type FormatterConfig struct {
	MaxChars     int `yaml:"max_chars"`
	HardCapChars int `yaml:"hard_cap_chars"`
}

type EnricherConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
	Workers       int `yaml:"workers"`
}

// LLMConfig configures the completion backend used by QueryRewriter,
// ScopeDetector's primary classifier, and AsyncEnricher.
type LLMConfig struct {
	Backend string `yaml:"backend"` // openai | deterministic
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// StoreConfig selects the document store backend (§6.2).
type StoreConfig struct {
	Backend string `yaml:"backend"` // postgres | qdrant | memory
	DSN     string `yaml:"dsn,omitempty"`
	Host    string `yaml:"host,omitempty"`
}

// AliasTableConfig is the §6.2 static alias/synonym configuration,
// loaded at startup from YAML.
type AliasTableConfig struct {
	AreaAlias   map[string]string `yaml:"area_alias"`
	DomainAlias map[string]string `yaml:"domain_alias"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Config is the root configuration for the RAG bridge (§6.3).
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	Embedding EmbeddingConfig  `yaml:"embedding"`
	Query     QueryConfig      `yaml:"query"`
	Scope     ScopeConfig      `yaml:"scope"`
	Retriever RetrieverConfig  `yaml:"retriever"`
	Similarity SimilarityThresholds `yaml:"similarity"`
	Reranker  RerankerConfig   `yaml:"reranker"`
	Memory    MemoryConfig     `yaml:"memory"`
	Formatter FormatterConfig  `yaml:"formatter"`
	Enricher  EnricherConfig   `yaml:"enricher"`
	LLM       LLMConfig        `yaml:"llm"`
	Store     StoreConfig      `yaml:"store"`
	Aliases   AliasTableConfig `yaml:"aliases"`
	OTel      TelemetryConfig  `yaml:"otel"`
}

// LoadConfig reads configuration from a YAML file and applies the §6.3
// defaults for anything left unset.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		log.Error().Err(err).Msg("error reading config file")
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Error().Err(err).Msg("error unmarshaling config")
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	log.Info().Msg("configuration loaded successfully")
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = "local"
	}
	if cfg.Embedding.Dimension <= 0 {
		cfg.Embedding.Dimension = 384
		log.Info().Msg("No embedding.dimension specified, using default (384).")
	}
	if cfg.Query.Rewrite.TimeoutMs <= 0 {
		cfg.Query.Rewrite.TimeoutMs = 1500
	}
	if cfg.Query.Expansion.MaxVariants <= 0 {
		cfg.Query.Expansion.MaxVariants = 3
	}
	if cfg.Query.Expansion.MaxVariants > 8 {
		cfg.Query.Expansion.MaxVariants = 8
	}
	if cfg.Scope.KRanges == nil {
		cfg.Scope.KRanges = map[string]KRangeConfig{
			"micro":    {Min: 5, Base: 8, Max: 20},
			"macro":    {Min: 15, Base: 18, Max: 30},
			"overview": {Min: 30, Base: 35, Max: 50},
		}
		log.Info().Msg("No scope.k_ranges specified, using defaults.")
	}
	if cfg.Retriever.Cluster.TopM <= 0 {
		cfg.Retriever.Cluster.TopM = 5
	}
	if cfg.Retriever.Hybrid.VectorWeight <= 0 {
		cfg.Retriever.Hybrid.VectorWeight = 0.7
	}
	if (cfg.Similarity == SimilarityThresholds{}) {
		cfg.Similarity = SimilarityThresholds{Excellent: 0.85, Good: 0.70, Acceptable: 0.55, Minimum: 0.35}
		log.Info().Msg("No similarity.thresholds specified, using defaults.")
	}
	if (cfg.Reranker.Weights == RerankerWeights{}) {
		cfg.Reranker.Weights = RerankerWeights{Semantic: 0.40, Lexical: 0.20, Area: 0.10, Domain: 0.10, Intent: 0.05, Memory: 0.10, Recency: 0.05}
	}
	if cfg.Reranker.TimeoutMs <= 0 {
		cfg.Reranker.TimeoutMs = 1500
	}
	if cfg.Memory.TTLSeconds <= 0 {
		cfg.Memory.TTLSeconds = 900
	}
	if cfg.Formatter.MaxChars <= 0 {
		cfg.Formatter.MaxChars = 4096
	}
	if cfg.Formatter.HardCapChars <= 0 {
		cfg.Formatter.HardCapChars = 8192
	}
	if cfg.Enricher.QueueCapacity <= 0 {
		cfg.Enricher.QueueCapacity = 1024
	}
	if cfg.Enricher.Workers <= 0 {
		cfg.Enricher.Workers = 2
	}
	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = "deterministic"
		log.Warn().Msg("No llm.backend specified, falling back to the deterministic stub client.")
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = "ragbridged"
	}
}
