package orchestrator

import (
	"context"
	"testing"
	"time"

	"homerag/internal/analyzer"
	"homerag/internal/crossencoder"
	"homerag/internal/embedder"
	"homerag/internal/enrich"
	"homerag/internal/expander"
	"homerag/internal/format"
	"homerag/internal/llmclient"
	"homerag/internal/memory"
	"homerag/internal/ragtypes"
	"homerag/internal/rerank"
	"homerag/internal/retrieve"
	"homerag/internal/rewriter"
	"homerag/internal/scope"
	"homerag/internal/store"
)

func seedStore() *store.Memory {
	m := store.NewMemory()
	m.PutEntity(ragtypes.Entity{ID: "sensor.outdoor_temp", Domain: "sensor", DisplayText: "outdoor temperature", SystemText: "outdoor temperature", Embedding: []float32{1, 0, 0}})
	m.PutEntity(ragtypes.Entity{ID: "light.kitchen", Domain: "light", AreaID: "area.kitchen", DisplayText: "kitchen light", SystemText: "kitchen light", Embedding: []float32{0, 1, 0}})
	return m
}

func buildOrchestrator() *Orchestrator {
	llm := &llmclient.Deterministic{}
	emb := embedder.NewDeterministic(3, false, 1)
	an := analyzer.New(analyzer.NewAliasTable())
	rw := rewriter.New(llm, true, rewriter.DefaultTimeout)
	ex := expander.New(expander.NewSynonymTable(), true, expander.DefaultMaxVariants)
	sc := scope.New(llm, scope.DefaultKRanges(), scope.DefaultTimeout)
	rt := retrieve.New(seedStore(), emb, retrieve.DefaultOptions())
	rr := rerank.New(crossencoder.Lexical{}, rerank.DefaultWeights(), rerank.DefaultTimeout, time.Now)
	fm := format.New(format.DefaultOptions())
	mem := memory.New(memory.DefaultTTL, nil, time.Now)
	return New(an, rw, ex, sc, rt, rr, fm, mem)
}

func TestOrchestrator_ProcessSingleTurnReturnsFormattedContext(t *testing.T) {
	o := buildOrchestrator()
	req := Request{Turns: []ragtypes.ConversationTurn{{Role: ragtypes.RoleUser, Content: "what is the outdoor temperature", Position: 0}}}
	resp := o.Process(context.Background(), req)
	if resp.Diagnostics.StageTimings == nil {
		t.Fatalf("expected stage timings to be recorded")
	}
	for _, stage := range []string{"analyzer", "scope", "retrieve", "format"} {
		if _, ok := resp.Diagnostics.StageTimings[stage]; !ok {
			t.Fatalf("expected timing recorded for stage %q, got %+v", stage, resp.Diagnostics.StageTimings)
		}
	}
}

func TestOrchestrator_EmptyCandidatesStillFormatsAndRecordsFallback(t *testing.T) {
	o := buildOrchestrator()
	o.retriever = retrieve.New(store.NewMemory(), embedder.NewDeterministic(3, false, 1), retrieve.DefaultOptions())
	req := Request{Turns: []ragtypes.ConversationTurn{{Role: ragtypes.RoleUser, Content: "turn off everything", Position: 0}}}
	resp := o.Process(context.Background(), req)
	if len(resp.RelevantEntities) != 0 {
		t.Fatalf("expected no entities, got %+v", resp.RelevantEntities)
	}
	found := false
	for _, f := range resp.Diagnostics.Fallbacks {
		if f == "empty_candidates_routed_to_formatter" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected empty_candidates fallback recorded, got %v", resp.Diagnostics.Fallbacks)
	}
}

func TestOrchestrator_RecordsMemoryAndEnqueuesEnrichment(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(memory.DefaultTTL, nil, time.Now)
	enricher := enrich.New(ctx, &llmclient.Deterministic{}, mem, enrich.DefaultQueueCapacity, enrich.DefaultWorkers)
	defer enricher.Close()

	o := buildOrchestrator()
	o.memory = mem
	o.enricher = enricher

	req := Request{SessionID: "session-1", Turns: []ragtypes.ConversationTurn{{Role: ragtypes.RoleUser, Content: "what is the outdoor temperature", Position: 0}}}
	o.Process(ctx, req)

	deadline := time.After(time.Second)
	for {
		if _, ok := mem.Get(ctx, "session-1"); ok {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected enrichment to eventually record session memory")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestOrchestrator_LowTopScoreTriggersReexpandRetry(t *testing.T) {
	o := buildOrchestrator()
	o.acceptableThreshold = 2 // unreachable, forces the retry path every time
	req := Request{Turns: []ragtypes.ConversationTurn{{Role: ragtypes.RoleUser, Content: "what is the outdoor temperature", Position: 0}}}
	resp := o.Process(context.Background(), req)

	found := false
	for _, f := range resp.Diagnostics.Fallbacks {
		if f == "low_top_score_reexpand_retry" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected low_top_score_reexpand_retry fallback recorded, got %v", resp.Diagnostics.Fallbacks)
	}
	if _, ok := resp.Diagnostics.StageTimings["expander_retry"]; !ok {
		t.Fatalf("expected expander_retry stage timing, got %+v", resp.Diagnostics.StageTimings)
	}
}

func TestOrchestrator_RequestTimeoutIsBounded(t *testing.T) {
	o := buildOrchestrator()
	o.timeouts = DefaultStageTimeouts()
	o.timeouts.Request = 10 * time.Second
	req := Request{Turns: []ragtypes.ConversationTurn{{Role: ragtypes.RoleUser, Content: "dim the lights", Position: 0}}}

	done := make(chan struct{})
	go func() {
		o.Process(context.Background(), req)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected orchestrator to complete well within the request timeout")
	}
}
