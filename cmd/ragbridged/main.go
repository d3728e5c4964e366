// Command ragbridged serves the retrieval-augmented-generation bridge
// HTTP API (§6.1): it wires every pipeline collaborator from config and
// listens for process-request/process-request-workflow/process-response
// calls from the smart-home platform's conversation layer.
package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"homerag/internal/analyzer"
	"homerag/internal/config"
	"homerag/internal/crossencoder"
	"homerag/internal/embedder"
	"homerag/internal/enrich"
	"homerag/internal/expander"
	"homerag/internal/format"
	"homerag/internal/httpapi"
	"homerag/internal/llmclient"
	"homerag/internal/memory"
	"homerag/internal/observability"
	"homerag/internal/orchestrator"
	"homerag/internal/ragtypes"
	"homerag/internal/rerank"
	"homerag/internal/retrieve"
	"homerag/internal/rewriter"
	"homerag/internal/scope"
	"homerag/internal/store"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}
	observability.InitLogger("", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()

	shutdown, err := observability.InitOTel(ctx, cfg.OTel)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		observability.EnableOTelBridge(cfg.OTel.ServiceName)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	emb := buildEmbedder(cfg.Embedding)
	llm := buildLLMClient(cfg.LLM)
	scorer := buildScorer(cfg.Reranker)
	docStore, storeReady := buildStore(ctx, cfg.Store, cfg.Embedding.Dimension)

	mem := buildMemory(ctx, cfg.Memory)
	enricher := enrich.New(ctx, llm, mem, cfg.Enricher.QueueCapacity, cfg.Enricher.Workers)
	defer enricher.Close()

	orch := buildOrchestrator(&cfg, emb, llm, scorer, docStore, mem, enricher)

	srv := httpapi.NewServer(orch, storeReady)

	addr := cfg.Host
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := cfg.Port
	if port <= 0 {
		port = 8085
	}
	listenAddr := addr + ":" + strconv.Itoa(port)
	log.Info().Str("addr", listenAddr).Msg("ragbridged listening")
	if err := http.ListenAndServe(listenAddr, srv); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func buildEmbedder(cfg config.EmbeddingConfig) embedder.Embedder {
	switch cfg.Backend {
	case "remote_a", "remote_b":
		return embedder.NewHTTP(embedder.HTTPConfig{
			BaseURL:    cfg.Host,
			Model:      "",
			APIKey:     cfg.APIKey,
			Dimension:  cfg.Dimension,
			Timeout:    30 * time.Second,
			BackendTag: cfg.Backend,
		}, nil)
	default:
		return embedder.NewDeterministic(cfg.Dimension, true, 1)
	}
}

func buildLLMClient(cfg config.LLMConfig) llmclient.Client {
	switch cfg.Backend {
	case "openai":
		return llmclient.NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return &llmclient.Deterministic{}
	}
}

func buildScorer(cfg config.RerankerConfig) crossencoder.Scorer {
	if cfg.ScorerHost == "" {
		return nil
	}
	return crossencoder.NewHTTP(cfg.ScorerHost, time.Duration(cfg.TimeoutMs)*time.Millisecond)
}

// buildStore wires the configured document store backend and returns a
// readiness probe the /readyz handler can poll cheaply.
func buildStore(ctx context.Context, cfg config.StoreConfig, dimension int) (store.DocumentStore, func() bool) {
	switch cfg.Backend {
	case "postgres":
		pg, err := store.OpenPostgres(ctx, cfg.DSN, dimension, "cosine")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open postgres store")
		}
		return pg, func() bool { return true }
	case "qdrant":
		qd, err := store.OpenQdrantIndex(ctx, cfg.Host, 6334, "", "entities", dimension, "cosine")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open qdrant store")
		}
		return qd, func() bool { return true }
	default:
		return store.NewMemory(), func() bool { return true }
	}
}

func buildMemory(ctx context.Context, cfg config.MemoryConfig) *memory.Store {
	var mirror memory.Mirror
	if cfg.RedisAddr != "" {
		rm, err := memory.NewRedisMirror(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "ragbridge")
		if err != nil {
			log.Warn().Err(err).Msg("redis mirror unavailable, continuing with process-local memory only")
		} else {
			mirror = rm
		}
	}
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	return memory.New(ttl, mirror, nil)
}

func buildOrchestrator(
	cfg *config.Config,
	emb embedder.Embedder,
	llm llmclient.Client,
	scorer crossencoder.Scorer,
	docStore store.DocumentStore,
	mem *memory.Store,
	enricher *enrich.Enricher,
) *orchestrator.Orchestrator {
	aliases := analyzer.NewAliasTable()
	for k, v := range cfg.Aliases.AreaAlias {
		aliases.AreaAlias[k] = v
	}
	for k, v := range cfg.Aliases.DomainAlias {
		aliases.DomainAlias[k] = v
	}
	an := analyzer.New(aliases)

	rw := rewriter.New(llm, cfg.Query.Rewrite.Enabled, time.Duration(cfg.Query.Rewrite.TimeoutMs)*time.Millisecond)

	ex := expander.New(expander.NewSynonymTable(), cfg.Query.Expansion.Enabled, cfg.Query.Expansion.MaxVariants)

	ranges := scopeRanges(cfg.Scope.KRanges)
	sc := scope.New(llm, ranges, scope.DefaultTimeout)

	rt := retrieve.New(docStore, emb, retrieve.Options{
		TopM:         cfg.Retriever.Cluster.TopM,
		VectorWeight: cfg.Retriever.Hybrid.VectorWeight,
		Thresholds: retrieve.Thresholds{
			Excellent:  cfg.Similarity.Excellent,
			Good:       cfg.Similarity.Good,
			Acceptable: cfg.Similarity.Acceptable,
			Minimum:    cfg.Similarity.Minimum,
		},
		VariantFanIn: 4,
	})

	rr := rerank.New(scorer, rerank.Weights{
		Semantic: cfg.Reranker.Weights.Semantic,
		Lexical:  cfg.Reranker.Weights.Lexical,
		Area:     cfg.Reranker.Weights.Area,
		Domain:   cfg.Reranker.Weights.Domain,
		Intent:   cfg.Reranker.Weights.Intent,
		Memory:   cfg.Reranker.Weights.Memory,
		Recency:  cfg.Reranker.Weights.Recency,
	}, time.Duration(cfg.Reranker.TimeoutMs)*time.Millisecond, nil)

	fm := format.New(format.Options{MaxChars: cfg.Formatter.MaxChars, HardCapChars: cfg.Formatter.HardCapChars})

	return orchestrator.New(an, rw, ex, sc, rt, rr, fm, mem,
		orchestrator.WithEnricher(enricher),
	)
}

func scopeRanges(cfgRanges map[string]config.KRangeConfig) map[ragtypes.Scope]scope.KRange {
	if len(cfgRanges) == 0 {
		return scope.DefaultKRanges()
	}
	out := make(map[ragtypes.Scope]scope.KRange, len(cfgRanges))
	for name, r := range cfgRanges {
		out[ragtypes.Scope(name)] = scope.KRange{Min: r.Min, Base: r.Base, Max: r.Max}
	}
	return out
}
