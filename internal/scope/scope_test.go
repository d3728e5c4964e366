package scope

import (
	"context"
	"testing"
	"time"

	"homerag/internal/llmclient"
	"homerag/internal/ragtypes"
)

func TestDetector_RuleFallback_MicroForEmptyContext(t *testing.T) {
	d := New(nil, nil, time.Second)
	result := d.Detect(context.Background(), "what is the temperature in the kitchen", ragtypes.ConversationContext{})
	if result.Scope != ragtypes.ScopeMicro {
		t.Fatalf("expected micro scope, got %s", result.Scope)
	}
	if result.OptimalK < 5 || result.OptimalK > 20 {
		t.Fatalf("expected K within micro range, got %d", result.OptimalK)
	}
}

func TestDetector_HouseWideKeywordForcesOverview(t *testing.T) {
	d := New(nil, nil, time.Second)
	result := d.Detect(context.Background(), "is everything ok in the whole house", ragtypes.ConversationContext{})
	if result.Scope != ragtypes.ScopeOverview {
		t.Fatalf("expected overview scope, got %s", result.Scope)
	}
}

func TestDetector_LLMClassificationWins(t *testing.T) {
	d := New(&llmclient.Deterministic{Reply: "overview"}, nil, time.Second)
	result := d.Detect(context.Background(), "status", ragtypes.ConversationContext{})
	if result.Scope != ragtypes.ScopeOverview {
		t.Fatalf("expected LLM-classified overview scope, got %s", result.Scope)
	}
}

func TestDetector_KIsClampedToRange(t *testing.T) {
	d := New(nil, nil, time.Second)
	convCtx := ragtypes.ConversationContext{Areas: []string{"a", "b", "c", "d", "e", "f"}, Domains: []string{"x", "y", "z"}}
	result := d.Detect(context.Background(), "status of the whole house", convCtx)
	if result.OptimalK != 50 {
		t.Fatalf("expected K clamped to overview max 50, got %d", result.OptimalK)
	}
}
