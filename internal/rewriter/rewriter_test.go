package rewriter

import (
	"context"
	"errors"
	"testing"
	"time"

	"homerag/internal/llmclient"
	"homerag/internal/ragtypes"
)

func turns() []ragtypes.ConversationTurn {
	return []ragtypes.ConversationTurn{
		{Role: ragtypes.RoleUser, Content: "how many degrees in the living room?", Position: 0},
		{Role: ragtypes.RoleAssistant, Content: "23 degrees", Position: 1},
		{Role: ragtypes.RoleUser, Content: "and outside?", Position: 2},
	}
}

func TestRewriter_NonFollowUpReturnsLatestVerbatim(t *testing.T) {
	r := New(&llmclient.Deterministic{Reply: "should not be used"}, true, time.Second)
	out := r.Rewrite(context.Background(), turns(), ragtypes.ConversationContext{IsFollowUp: false})
	if out != "and outside?" {
		t.Fatalf("expected verbatim latest turn, got %q", out)
	}
}

func TestRewriter_DisabledFallsThroughToLatest(t *testing.T) {
	r := New(&llmclient.Deterministic{Reply: "should not be used"}, false, time.Second)
	out := r.Rewrite(context.Background(), turns(), ragtypes.ConversationContext{IsFollowUp: true})
	if out != "and outside?" {
		t.Fatalf("expected verbatim latest turn when disabled, got %q", out)
	}
}

func TestRewriter_FollowUpUsesLLM(t *testing.T) {
	r := New(&llmclient.Deterministic{Reply: "how many degrees outside?"}, true, time.Second)
	out := r.Rewrite(context.Background(), turns(), ragtypes.ConversationContext{IsFollowUp: true})
	if out != "how many degrees outside?" {
		t.Fatalf("expected LLM rewrite, got %q", out)
	}
}

type failingClient struct{}

func (failingClient) Complete(ctx context.Context, req llmclient.CompleteRequest) (string, error) {
	return "", errors.New("boom")
}
func (failingClient) Name() string { return "failing" }

func TestRewriter_FallsBackOnLLMError(t *testing.T) {
	r := New(failingClient{}, true, time.Second)
	out := r.Rewrite(context.Background(), turns(), ragtypes.ConversationContext{IsFollowUp: true})
	if out == "" {
		t.Fatalf("expected non-empty fallback output")
	}
	if out == "and outside?" {
		t.Fatalf("expected topic-salvage fallback to extend the latest turn")
	}
}

func TestRewriter_NeverReturnsEmpty(t *testing.T) {
	r := New(nil, true, time.Second)
	out := r.Rewrite(context.Background(), []ragtypes.ConversationTurn{{Role: ragtypes.RoleUser, Content: "test", Position: 0}}, ragtypes.ConversationContext{IsFollowUp: true})
	if out == "" {
		t.Fatalf("expected non-empty output even with nil llm")
	}
}
