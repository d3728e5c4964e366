package crossencoder

import (
	"context"
	"testing"
)

func TestLexical_PerfectOverlapScoresOne(t *testing.T) {
	l := Lexical{}
	scores, err := l.Score(context.Background(), "outdoor temperature", []string{"outdoor temperature sensor"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores[0] != 1 {
		t.Fatalf("expected score 1, got %v", scores[0])
	}
}

func TestLexical_NoOverlapScoresZero(t *testing.T) {
	l := Lexical{}
	scores, _ := l.Score(context.Background(), "outdoor temperature", []string{"living room light switch"})
	if scores[0] != 0 {
		t.Fatalf("expected score 0, got %v", scores[0])
	}
}

func TestLexical_EmptyQueryReturnsZeroes(t *testing.T) {
	l := Lexical{}
	scores, _ := l.Score(context.Background(), "", []string{"a", "b"})
	for _, s := range scores {
		if s != 0 {
			t.Fatalf("expected zero scores for empty query, got %v", scores)
		}
	}
}
