package embedder

import (
	"context"
	"testing"
)

func TestDeterministic_Repeatable(t *testing.T) {
	e := NewDeterministic(64, true, 7)
	v1, err := e.EmbedBatch(context.Background(), []string{"living room temperature"}, KindDocument)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	v2, err := e.EmbedBatch(context.Background(), []string{"living room temperature"}, KindDocument)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(v1[0]) != 64 || len(v2[0]) != 64 {
		t.Fatalf("expected dimension 64, got %d and %d", len(v1[0]), len(v2[0]))
	}
	for i := range v1[0] {
		if v1[0][i] != v2[0][i] {
			t.Fatalf("embedding not deterministic at index %d: %v != %v", i, v1[0][i], v2[0][i])
		}
	}
}

func TestDeterministic_DistinctTextsDiffer(t *testing.T) {
	e := NewDeterministic(32, true, 1)
	a, _ := e.EmbedBatch(context.Background(), []string{"outdoor temperature"}, KindQuery)
	b, _ := e.EmbedBatch(context.Background(), []string{"living room light"}, KindQuery)
	same := true
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected distinct embeddings for distinct texts")
	}
}

func TestDeterministic_EmptyTextIsZeroVector(t *testing.T) {
	e := NewDeterministic(16, true, 0)
	v, _ := e.EmbedBatch(context.Background(), []string{""}, KindQuery)
	for _, x := range v[0] {
		if x != 0 {
			t.Fatalf("expected zero vector for empty text, got %v", v[0])
		}
	}
}
