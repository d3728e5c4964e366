// Package scope implements ScopeDetector (§4.5): classifying a query into
// micro/macro/overview scope and computing the target result count K.
package scope

import (
	"context"
	"fmt"
	"strings"
	"time"

	"homerag/internal/llmclient"
	"homerag/internal/ragtypes"
)

// DefaultTimeout is the §5 per-stage default for ScopeDetector.
const DefaultTimeout = 1500 * time.Millisecond

// KRange is the {min, base, max} triplet for one scope, §6.3
// `scope.k_ranges`.
type KRange struct {
	Min, Base, Max int
}

// DefaultKRanges are the §4.5 / §9 resolved K ranges.
func DefaultKRanges() map[ragtypes.Scope]KRange {
	return map[ragtypes.Scope]KRange{
		ragtypes.ScopeMicro:    {Min: 5, Base: 8, Max: 20},
		ragtypes.ScopeMacro:    {Min: 15, Base: 18, Max: 30},
		ragtypes.ScopeOverview: {Min: 30, Base: 35, Max: 50},
	}
}

var houseWideKeywords = []string{"house", "home", "everywhere", "all rooms", "whole place"}

// Detector classifies scope via an LLM primary classifier with a
// rule-based fallback/tie-break.
type Detector struct {
	llm     llmclient.Client
	ranges  map[ragtypes.Scope]KRange
	timeout time.Duration
}

// New builds a Detector. llm may be nil, in which case only the
// rule-based classifier runs.
func New(llm llmclient.Client, ranges map[ragtypes.Scope]KRange, timeout time.Duration) *Detector {
	if ranges == nil {
		ranges = DefaultKRanges()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Detector{llm: llm, ranges: ranges, timeout: timeout}
}

// Detect classifies query scope and computes optimal_k.
func (d *Detector) Detect(ctx context.Context, query string, convCtx ragtypes.ConversationContext) ragtypes.ScopeResult {
	primary, primaryConf, primaryReason := d.classifyLLM(ctx, query, convCtx)
	ruleScope, ruleConf, ruleReason := d.classifyRule(query, convCtx)

	scope, confidence, reasoning := primary, primaryConf, primaryReason
	if primaryConf < 0.5 || primary == "" {
		scope, confidence, reasoning = ruleScope, ruleConf, ruleReason
	}
	if scope == "" {
		scope = ragtypes.ScopeMacro
	}

	k := d.computeK(scope, len(convCtx.Areas), len(convCtx.Domains))
	return ragtypes.ScopeResult{Scope: scope, Confidence: confidence, OptimalK: k, Reasoning: reasoning}
}

func (d *Detector) computeK(scope ragtypes.Scope, areaCount, domainCount int) int {
	r, ok := d.ranges[scope]
	if !ok {
		r = DefaultKRanges()[ragtypes.ScopeMacro]
	}
	k := r.Base + 3*areaCount + 2*domainCount
	if k < r.Min {
		k = r.Min
	}
	if k > r.Max {
		k = r.Max
	}
	return k
}

func (d *Detector) classifyLLM(ctx context.Context, query string, convCtx ragtypes.ConversationContext) (ragtypes.Scope, float64, string) {
	if d.llm == nil {
		return "", 0, ""
	}
	lctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	out, err := d.llm.Complete(lctx, llmclient.CompleteRequest{
		Prompt:    scopePrompt(query, convCtx),
		MaxTokens: 10,
	})
	if err != nil {
		return "", 0, ""
	}
	scope := parseScope(out)
	if scope == "" {
		return "", 0, ""
	}
	return scope, 0.8, "llm classifier: " + string(scope)
}

func scopePrompt(query string, convCtx ragtypes.ConversationContext) string {
	return fmt.Sprintf("Classify this smart-home query as exactly one of: micro, macro, overview.\nQuery: %q\nAreas mentioned: %d\nDomains mentioned: %d\nReply with only the scope word.", query, len(convCtx.Areas), len(convCtx.Domains))
}

func parseScope(out string) ragtypes.Scope {
	s := strings.ToLower(strings.TrimSpace(out))
	switch {
	case strings.Contains(s, "overview"):
		return ragtypes.ScopeOverview
	case strings.Contains(s, "macro"):
		return ragtypes.ScopeMacro
	case strings.Contains(s, "micro"):
		return ragtypes.ScopeMicro
	default:
		return ""
	}
}

// classifyRule implements the §4.5 rule-based fallback/tie-break: area
// count, domain count and house-wide keywords. Control verbs are not
// considered.
func (d *Detector) classifyRule(query string, convCtx ragtypes.ConversationContext) (ragtypes.Scope, float64, string) {
	q := strings.ToLower(query)
	for _, kw := range houseWideKeywords {
		if strings.Contains(q, kw) {
			return ragtypes.ScopeOverview, 0.7, "rule: house-wide keyword"
		}
	}
	areaCount := len(convCtx.Areas)
	domainCount := len(convCtx.Domains)
	switch {
	case areaCount == 0 && domainCount <= 1:
		return ragtypes.ScopeMicro, 0.6, "rule: no area, single/no domain"
	case areaCount <= 1 && domainCount <= 2:
		return ragtypes.ScopeMacro, 0.6, "rule: single area or few domains"
	default:
		return ragtypes.ScopeOverview, 0.6, "rule: multiple areas/domains"
	}
}
