// Package orchestrator implements the top-level Orchestrator (§4.1):
// driving the eight pipeline stages in declared order, applying the
// routing/fallback table (§4.9), and enforcing per-stage and per-request
// timeouts.
package orchestrator

import (
	"context"
	"time"

	"homerag/internal/analyzer"
	"homerag/internal/enrich"
	"homerag/internal/expander"
	"homerag/internal/format"
	"homerag/internal/memory"
	"homerag/internal/ragtypes"
	"homerag/internal/rerank"
	"homerag/internal/retrieve"
	"homerag/internal/rewriter"
	"homerag/internal/scope"
)

// StageTimeouts are the §5 per-stage defaults, all independently
// configurable.
type StageTimeouts struct {
	Analyzer, Rewriter, Scope, Expander, ClusterSearch, HybridSearch, Reranker, Formatter, Request time.Duration
}

// DefaultStageTimeouts returns the §5 defaults.
func DefaultStageTimeouts() StageTimeouts {
	return StageTimeouts{
		Analyzer:      100 * time.Millisecond,
		Rewriter:      1500 * time.Millisecond,
		Scope:         1500 * time.Millisecond,
		Expander:      500 * time.Millisecond,
		ClusterSearch: 2000 * time.Millisecond,
		HybridSearch:  3000 * time.Millisecond,
		Reranker:      1500 * time.Millisecond,
		Formatter:     100 * time.Millisecond,
		Request:       30 * time.Second,
	}
}

// Orchestrator wires every stage collaborator and drives a request.
type Orchestrator struct {
	analyzer  *analyzer.Analyzer
	rewriter  *rewriter.Rewriter
	expander  *expander.Expander
	scope     *scope.Detector
	retriever *retrieve.Retriever
	reranker  *rerank.Reranker
	formatter *format.Formatter
	memory    *memory.Store
	enricher  *enrich.Enricher

	timeouts            StageTimeouts
	now                 func() time.Time
	acceptableThreshold float64
}

// Option configures an Orchestrator during construction.
type Option func(*Orchestrator)

// WithTimeouts overrides the per-stage/request timeout defaults.
func WithTimeouts(t StageTimeouts) Option { return func(o *Orchestrator) { o.timeouts = t } }

// WithEnricher wires the fire-and-forget AsyncEnricher.
func WithEnricher(e *enrich.Enricher) Option { return func(o *Orchestrator) { o.enricher = e } }

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// New builds an Orchestrator from its stage collaborators.
func New(
	an *analyzer.Analyzer,
	rw *rewriter.Rewriter,
	ex *expander.Expander,
	sc *scope.Detector,
	rt *retrieve.Retriever,
	rr *rerank.Reranker,
	fm *format.Formatter,
	mem *memory.Store,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		analyzer:            an,
		rewriter:            rw,
		expander:            ex,
		scope:               sc,
		retriever:           rt,
		reranker:            rr,
		formatter:           fm,
		memory:              mem,
		timeouts:            DefaultStageTimeouts(),
		now:                 time.Now,
		acceptableThreshold: rt.Thresholds().Acceptable,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Request is the Orchestrator's input: a conversation and a session id
// (empty for stateless single-turn requests).
type Request struct {
	Turns     []ragtypes.ConversationTurn
	SessionID string
}

// Response is the Orchestrator's output, matching the §6.1 response shape.
type Response struct {
	RelevantEntities []ragtypes.RankedEntity
	FormattedContext string
	Diagnostics      ragtypes.Diagnostics
	Scope            ragtypes.Scope
	OptimalK         int
}

// Process drives the full 8-stage pipeline and always returns a response,
// degraded where a stage failed. Retriever failures are recorded in
// diagnostics as fallback reason codes; the rewriter, scope detector and
// reranker fall back internally and record no reason code for it.
func (o *Orchestrator) Process(ctx context.Context, req Request) Response {
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.Request)
	defer cancel()

	state := &ragtypes.RAGState{Turns: req.Turns, SessionID: req.SessionID, StageTimings: map[string]time.Duration{}}
	defer o.enqueueEnrichment(state)

	o.runAnalyzer(ctx, state)
	o.runRewriter(ctx, state)
	o.runScope(ctx, state)
	o.runExpander(ctx, state)
	o.runRetriever(ctx, state)
	o.runReranker(ctx, state)
	o.maybeRetryLowScore(ctx, state)
	o.runFormatter(ctx, state)

	state.Diagnostics = ragtypes.Diagnostics{
		Scope:           state.Scope.Scope,
		OptimalK:        state.Scope.OptimalK,
		StageTimings:    state.StageTimings,
		Fallbacks:       state.Diagnostics.Fallbacks,
		ClusterSkipped:  state.Diagnostics.ClusterSkipped,
		Errors:          state.Errors,
		FactorBreakdown: state.Diagnostics.FactorBreakdown,
	}

	return Response{
		RelevantEntities: state.Reranked,
		FormattedContext: state.FormattedContext,
		Diagnostics:      state.Diagnostics,
		Scope:            state.Scope.Scope,
		OptimalK:         state.Scope.OptimalK,
	}
}

func (o *Orchestrator) timed(state *ragtypes.RAGState, stage string, fn func()) {
	start := o.now()
	fn()
	state.RecordTiming(stage, o.now().Sub(start))
}

func (o *Orchestrator) runAnalyzer(ctx context.Context, state *ragtypes.RAGState) {
	_, cancel := context.WithTimeout(ctx, o.timeouts.Analyzer)
	defer cancel()
	o.timed(state, "analyzer", func() {
		state.Context = o.analyzer.Analyze(state.Turns)
	})
}

// runRewriter implements the §4.9 routing rule: skip when confidence is
// low and this is the first turn.
func (o *Orchestrator) runRewriter(ctx context.Context, state *ragtypes.RAGState) {
	if state.Context.Confidence < 0.3 && len(state.Turns) == 1 {
		state.RecordFallback("skip_rewriter_low_confidence_first_turn")
		state.RewrittenQuery = latestUserContent(state.Turns)
		return
	}
	rctx, cancel := context.WithTimeout(ctx, o.timeouts.Rewriter)
	defer cancel()
	o.timed(state, "rewriter", func() {
		state.RewrittenQuery = o.rewriter.Rewrite(rctx, state.Turns, state.Context)
	})
}

// runExpander implements the §4.9 rule: skip when no rewrite happened and
// this isn't a follow-up.
func (o *Orchestrator) runExpander(ctx context.Context, state *ragtypes.RAGState) {
	latest := latestUserContent(state.Turns)
	if state.RewrittenQuery == latest && !state.Context.IsFollowUp {
		state.RecordFallback("skip_expander_no_rewrite")
		state.QueryVariants = []string{state.RewrittenQuery}
		return
	}
	_, cancel := context.WithTimeout(ctx, o.timeouts.Expander)
	defer cancel()
	o.timed(state, "expander", func() {
		state.QueryVariants = o.expander.Expand(state.RewrittenQuery, state.Context.Domains)
	})
}

// runScope implements the §4.9 rule: a low-confidence LLM classification
// is re-run with the rule-based classifier and the higher-confidence
// result wins (handled inside scope.Detector.Detect itself).
func (o *Orchestrator) runScope(ctx context.Context, state *ragtypes.RAGState) {
	sctx, cancel := context.WithTimeout(ctx, o.timeouts.Scope)
	defer cancel()
	o.timed(state, "scope", func() {
		state.Scope = o.scope.Detect(sctx, state.RewrittenQuery, state.Context)
	})
}

// runRetriever implements the §4.9 empty-result routing: the retry itself
// runs inside Retrieve, and if the candidate set is still empty,
// ContextFormatter is reached with an empty list rather than treating it
// as an error.
func (o *Orchestrator) runRetriever(ctx context.Context, state *ragtypes.RAGState) {
	cctx, cancel := context.WithTimeout(ctx, o.timeouts.ClusterSearch+o.timeouts.HybridSearch)
	defer cancel()
	o.timed(state, "retrieve", func() {
		candidates, fallbacks := o.retriever.Retrieve(cctx, state.QueryVariants, state.RewrittenQuery, state.Scope)
		state.Candidates = candidates
		for _, f := range fallbacks {
			state.RecordFallback(f)
		}
		if len(candidates) == 0 {
			state.RecordFallback("empty_candidates_routed_to_formatter")
		}
	})
}

func (o *Orchestrator) runReranker(ctx context.Context, state *ragtypes.RAGState) {
	if len(state.Candidates) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, o.timeouts.Reranker)
	defer cancel()
	var mementos map[string]memory.EntityMemory
	if o.memory != nil && state.SessionID != "" {
		if entry, ok := o.memory.Get(rctx, state.SessionID); ok {
			mementos = entry.Entities
		}
	}
	o.timed(state, "rerank", func() {
		ranked, breakdown := o.reranker.Rerank(rctx, state.RewrittenQuery, state.Candidates, state.Context, mementos, state.Scope.OptimalK)
		state.Reranked = ranked
		state.Diagnostics.FactorBreakdown = breakdown
	})
}

// maybeRetryLowScore implements the §4.9 fifth routing rule: after
// reranking, a top score below the acceptable similarity threshold forces
// one paraphrase-only re-expansion and a single retrieve+rerank retry.
func (o *Orchestrator) maybeRetryLowScore(ctx context.Context, state *ragtypes.RAGState) {
	if state.LowScoreRetried || len(state.Reranked) == 0 {
		return
	}
	if state.Reranked[0].Score >= o.acceptableThreshold {
		return
	}
	state.LowScoreRetried = true
	state.RecordFallback("low_top_score_reexpand_retry")

	query := state.RewrittenQuery
	if query == "" {
		query = latestUserContent(state.Turns)
	}
	o.timed(state, "expander_retry", func() {
		state.QueryVariants = o.expander.ExpandParaphrase(query)
	})

	o.runRetriever(ctx, state)
	o.runReranker(ctx, state)
}

func (o *Orchestrator) runFormatter(ctx context.Context, state *ragtypes.RAGState) {
	_, cancel := context.WithTimeout(ctx, o.timeouts.Formatter)
	defer cancel()
	o.timed(state, "format", func() {
		formatted, _ := o.formatter.Format(state.Scope, state.Reranked)
		state.FormattedContext = formatted
	})
}

// enqueueEnrichment fires the AsyncEnricher at end-of-request; the request
// path never waits on it (§5).
func (o *Orchestrator) enqueueEnrichment(state *ragtypes.RAGState) {
	if o.enricher == nil || state.SessionID == "" {
		return
	}
	ids := make([]string, 0, len(state.Reranked))
	for _, r := range state.Reranked {
		ids = append(ids, r.Entity.ID)
	}
	o.enricher.Enqueue(enrich.Job{SessionID: state.SessionID, Turns: state.Turns, EntityIDs: ids})
}

func latestUserContent(turns []ragtypes.ConversationTurn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == ragtypes.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}
