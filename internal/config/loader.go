package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load builds a Config from environment variables (optionally a .env file),
// then overlays a YAML file if CONFIG_PATH points at one. Env vars always
// win over YAML, matching this codebase's existing precedence.
func Load() (Config, error) {
	// Use Overload so .env values override existing OS environment
	// variables, letting local/dev configuration deterministically control
	// runtime behavior even where the operator has already set the var.
	_ = godotenv.Overload()

	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		if loaded, err := LoadConfig(path); err == nil {
			cfg = *loaded
		}
	}

	cfg.Host = firstNonEmpty(strings.TrimSpace(os.Getenv("HOST")), cfg.Host)
	cfg.Port = intFromEnv("PORT", cfg.Port)

	cfg.Embedding.Backend = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_BACKEND")), cfg.Embedding.Backend)
	cfg.Embedding.Dimension = intFromEnv("EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
	cfg.Embedding.Host = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_HOST")), cfg.Embedding.Host)
	cfg.Embedding.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY")), cfg.Embedding.APIKey)

	cfg.Query.Rewrite.Enabled = boolFromEnv("QUERY_REWRITE_ENABLED", cfg.Query.Rewrite.Enabled)
	cfg.Query.Rewrite.TimeoutMs = intFromEnv("QUERY_REWRITE_TIMEOUT_MS", cfg.Query.Rewrite.TimeoutMs)
	cfg.Query.Expansion.Enabled = boolFromEnv("QUERY_EXPANSION_ENABLED", cfg.Query.Expansion.Enabled)
	cfg.Query.Expansion.MaxVariants = intFromEnv("QUERY_EXPANSION_MAX_VARIANTS", cfg.Query.Expansion.MaxVariants)

	cfg.Retriever.Cluster.TopM = intFromEnv("RETRIEVER_CLUSTER_TOP_M", cfg.Retriever.Cluster.TopM)
	cfg.Retriever.Hybrid.VectorWeight = floatFromEnv("RETRIEVER_HYBRID_VECTOR_WEIGHT", cfg.Retriever.Hybrid.VectorWeight)

	cfg.Reranker.TimeoutMs = intFromEnv("RERANKER_TIMEOUT_MS", cfg.Reranker.TimeoutMs)
	cfg.Reranker.ScorerHost = firstNonEmpty(strings.TrimSpace(os.Getenv("RERANKER_SCORER_HOST")), cfg.Reranker.ScorerHost)

	cfg.Memory.TTLSeconds = intFromEnv("MEMORY_TTL_SECONDS", cfg.Memory.TTLSeconds)
	cfg.Memory.MaxEntriesPerSession = intFromEnv("MEMORY_MAX_ENTRIES_PER_SESSION", cfg.Memory.MaxEntriesPerSession)
	cfg.Memory.RedisAddr = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMORY_REDIS_ADDR")), cfg.Memory.RedisAddr)
	cfg.Memory.RedisPassword = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMORY_REDIS_PASSWORD")), cfg.Memory.RedisPassword)
	cfg.Memory.RedisDB = intFromEnv("MEMORY_REDIS_DB", cfg.Memory.RedisDB)

	cfg.Formatter.MaxChars = intFromEnv("FORMATTER_MAX_CHARS", cfg.Formatter.MaxChars)
	cfg.Formatter.HardCapChars = intFromEnv("FORMATTER_HARD_CAP_CHARS", cfg.Formatter.HardCapChars)

	cfg.Enricher.QueueCapacity = intFromEnv("ENRICHER_QUEUE_CAPACITY", cfg.Enricher.QueueCapacity)
	cfg.Enricher.Workers = intFromEnv("ENRICHER_WORKERS", cfg.Enricher.Workers)

	cfg.LLM.Backend = firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_BACKEND")), cfg.LLM.Backend)
	cfg.LLM.BaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_BASE_URL")), cfg.LLM.BaseURL)
	cfg.LLM.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_API_KEY")), cfg.LLM.APIKey)
	cfg.LLM.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_MODEL")), cfg.LLM.Model)

	cfg.Store.Backend = firstNonEmpty(strings.TrimSpace(os.Getenv("STORE_BACKEND")), cfg.Store.Backend)
	cfg.Store.DSN = firstNonEmpty(strings.TrimSpace(os.Getenv("STORE_DSN")), cfg.Store.DSN)
	cfg.Store.Host = firstNonEmpty(strings.TrimSpace(os.Getenv("STORE_HOST")), cfg.Store.Host)

	cfg.OTel.Enabled = boolFromEnv("OTEL_ENABLED", cfg.OTel.Enabled)
	cfg.OTel.Endpoint = firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_ENDPOINT")), cfg.OTel.Endpoint)
	cfg.OTel.ServiceName = firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")), cfg.OTel.ServiceName)

	applyDefaults(&cfg)
	return cfg, nil
}

// firstNonEmpty returns the first non-empty string among vals, or "".
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := parseInt(v)
	if err != nil {
		return def
	}
	return n
}

func floatFromEnv(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func boolFromEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}
