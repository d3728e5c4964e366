package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDeterministic_EchoesPromptByDefault(t *testing.T) {
	c := &Deterministic{}
	out, err := c.Complete(context.Background(), CompleteRequest{Prompt: "and outside?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "and outside?" {
		t.Fatalf("expected echo, got %q", out)
	}
}

func TestDeterministic_FixedReply(t *testing.T) {
	c := &Deterministic{Reply: "outdoor temperature is 12C"}
	out, _ := c.Complete(context.Background(), CompleteRequest{Prompt: "whatever"})
	if out != "outdoor temperature is 12C" {
		t.Fatalf("expected fixed reply, got %q", out)
	}
}

func TestDeterministic_RespectsContextCancellation(t *testing.T) {
	c := &Deterministic{Delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Complete(ctx, CompleteRequest{Prompt: "x"})
	if err == nil {
		t.Fatalf("expected deadline error")
	}
}

func TestUnavailable_AlwaysFails(t *testing.T) {
	c := Unavailable{}
	_, err := c.Complete(context.Background(), CompleteRequest{Prompt: "x"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
