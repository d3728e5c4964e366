// Package rerank implements the Reranker (§4.7): a seven-factor weighted
// scoring model over candidate entities, with a deterministic fallback
// when the cross-encoder is unavailable or too slow.
package rerank

import (
	"context"
	"math"
	"sort"
	"time"

	"homerag/internal/crossencoder"
	"homerag/internal/memory"
	"homerag/internal/ragtypes"
)

// DefaultTimeout is the §4.7/§5 hard timeout for the cross-encoder batch call.
const DefaultTimeout = 1500 * time.Millisecond

// Weights are the seven factor weights; normalized to sum to 1.0 if the
// caller's config doesn't (§6.3).
type Weights struct {
	Semantic, Lexical, Area, Domain, Intent, Memory, Recency float64
}

// DefaultWeights are the §4.7 defaults.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.40, Lexical: 0.20, Area: 0.10, Domain: 0.10, Intent: 0.05, Memory: 0.10, Recency: 0.05}
}

// Normalize scales weights to sum to 1.0; a zero-sum input returns the
// defaults.
func (w Weights) Normalize() Weights {
	sum := w.Semantic + w.Lexical + w.Area + w.Domain + w.Intent + w.Memory + w.Recency
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Semantic: w.Semantic / sum,
		Lexical:  w.Lexical / sum,
		Area:     w.Area / sum,
		Domain:   w.Domain / sum,
		Intent:   w.Intent / sum,
		Memory:   w.Memory / sum,
		Recency:  w.Recency / sum,
	}
}

// MemoryBoost is the ceiling of the f6 memory boost (§4.7 f6).
const MemoryBoost = 1.0

// RecencyHalfLife controls how quickly f7 decays with entity staleness.
const RecencyHalfLife = 24 * time.Hour

// Reranker scores and sorts candidates.
type Reranker struct {
	scorer  crossencoder.Scorer
	weights Weights
	timeout time.Duration
	now     func() time.Time
}

// New builds a Reranker.
func New(scorer crossencoder.Scorer, weights Weights, timeout time.Duration, nowFn func() time.Time) *Reranker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Reranker{scorer: scorer, weights: weights.Normalize(), timeout: timeout, now: nowFn}
}

// Rerank scores every candidate and returns exactly optimalK entries
// (fewer if the candidate set is smaller), plus the per-entity factor
// breakdown for diagnostics.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []ragtypes.CandidateEntity, convCtx ragtypes.ConversationContext, mementos map[string]memory.EntityMemory, optimalK int) ([]ragtypes.RankedEntity, []ragtypes.FactorBreakdown) {
	semantic := r.semanticScores(ctx, query, candidates)

	breakdowns := make([]ragtypes.FactorBreakdown, 0, len(candidates))
	ranked := make([]ragtypes.RankedEntity, 0, len(candidates))

	for i, c := range candidates {
		f1 := semantic[i]
		f2 := c.LexicalScore()
		f3 := boolScore(contains(convCtx.Areas, c.Entity.AreaID))
		f4 := boolScore(contains(convCtx.Domains, c.Entity.Domain))
		f5 := intentFit(convCtx.Intent, c.Entity.Domain)
		f6 := memoryBoost(mementos, c.Entity.ID)
		f7 := recency(c.Entity.LastUpdated, r.now())

		total := r.weights.Semantic*f1 + r.weights.Lexical*f2 + r.weights.Area*f3 +
			r.weights.Domain*f4 + r.weights.Intent*f5 + r.weights.Memory*f6 + r.weights.Recency*f7

		breakdowns = append(breakdowns, ragtypes.FactorBreakdown{
			EntityID: c.Entity.ID, F1Semantic: f1, F2Lexical: f2, F3Area: f3,
			F4Domain: f4, F5Intent: f5, F6Memory: f6, F7Recency: f7, Total: total,
		})
		ranked = append(ranked, ragtypes.RankedEntity{Entity: c.Entity, Score: total})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Entity.ID < ranked[j].Entity.ID
	})
	sort.SliceStable(breakdowns, func(i, j int) bool {
		if breakdowns[i].Total != breakdowns[j].Total {
			return breakdowns[i].Total > breakdowns[j].Total
		}
		return breakdowns[i].EntityID < breakdowns[j].EntityID
	})

	if optimalK > 0 && len(ranked) > optimalK {
		ranked = ranked[:optimalK]
	}
	return ranked, breakdowns
}

// semanticScores calls the cross-encoder once for the whole batch; on
// timeout or error every f1 falls back to 0, relying on f2 (lexical) to
// carry the ranking (§4.7: "graceful fallback to f2-only ranking").
func (r *Reranker) semanticScores(ctx context.Context, query string, candidates []ragtypes.CandidateEntity) []float64 {
	fallback := make([]float64, len(candidates))
	if r.scorer == nil || len(candidates) == 0 {
		return fallback
	}
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Entity.SystemText
	}
	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	scores, err := r.scorer.Score(sctx, query, docs)
	if err != nil || len(scores) != len(candidates) {
		return fallback
	}
	return scores
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func contains(values []string, target string) bool {
	if target == "" {
		return false
	}
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// intentFit reports whether a domain is actionable under the detected
// intent (§4.7 f5).
func intentFit(intent ragtypes.Intent, domain string) float64 {
	actionable := map[string]bool{"light": true, "switch": true, "lock": true, "climate": true, "cover": true, "fan": true}
	switch intent {
	case ragtypes.IntentControl:
		return boolScore(actionable[domain])
	case ragtypes.IntentRead:
		return boolScore(!actionable[domain] || domain == "sensor" || domain == "climate")
	default:
		return 0.5
	}
}

// memoryBoost implements f6: MemoryBoost scaled by n/(n+1), where n is the
// entry's BoostCounter, so the boost grows with how often the entity was
// recorded for the session. It does not decay with turns since last seen.
func memoryBoost(mementos map[string]memory.EntityMemory, entityID string) float64 {
	if mementos == nil {
		return 0
	}
	em, ok := mementos[entityID]
	if !ok {
		return 0
	}
	decay := 1.0 / float64(em.BoostCounter+1)
	boost := MemoryBoost * (1 - decay)
	if boost > 1 {
		return 1
	}
	return boost
}

// recency implements f7: a normalized decay of entity staleness.
func recency(lastUpdated, now time.Time) float64 {
	if lastUpdated.IsZero() {
		return 0
	}
	age := now.Sub(lastUpdated)
	if age <= 0 {
		return 1
	}
	halfLives := float64(age) / float64(RecencyHalfLife)
	return math.Pow(0.5, halfLives)
}
