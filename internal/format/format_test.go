package format

import (
	"strings"
	"testing"

	"homerag/internal/ragtypes"
)

func rankedEntities(n int, area string) []ragtypes.RankedEntity {
	out := make([]ragtypes.RankedEntity, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ragtypes.RankedEntity{
			Entity: ragtypes.Entity{ID: "sensor.e" + string(rune('a'+i)), DisplayName: "Entity", AreaID: area, StateValue: "21", StateUnit: "C"},
			Score:  1.0 - float64(i)*0.01,
		})
	}
	return out
}

func TestFormatter_MicroSmallSetUsesDetailedShape(t *testing.T) {
	f := New(DefaultOptions())
	out, shape := f.Format(ragtypes.ScopeResult{Scope: ragtypes.ScopeMicro, OptimalK: 5}, rankedEntities(2, "area.kitchen"))
	if shape != ShapeDetailed {
		t.Fatalf("expected detailed shape, got %s", shape)
	}
	if out == "" {
		t.Fatalf("expected non-empty output")
	}
}

func TestFormatter_OverviewLargeSetUsesTLDRShape(t *testing.T) {
	f := New(DefaultOptions())
	_, shape := f.Format(ragtypes.ScopeResult{Scope: ragtypes.ScopeOverview, OptimalK: 35}, rankedEntities(30, "area.kitchen"))
	if shape != ShapeTLDR {
		t.Fatalf("expected tldr shape, got %s", shape)
	}
}

func TestFormatter_MacroMultiAreaUsesGroupedShape(t *testing.T) {
	f := New(DefaultOptions())
	entities := append(rankedEntities(2, "area.kitchen"), rankedEntities(2, "area.bedroom")...)
	_, shape := f.Format(ragtypes.ScopeResult{Scope: ragtypes.ScopeMacro, OptimalK: 18}, entities)
	if shape != ShapeGroupedByArea {
		t.Fatalf("expected grouped_by_area shape, got %s", shape)
	}
}

func TestFormatter_DefaultFallsBackToCompact(t *testing.T) {
	f := New(DefaultOptions())
	_, shape := f.Format(ragtypes.ScopeResult{Scope: ragtypes.ScopeMacro, OptimalK: 18}, rankedEntities(10, "area.kitchen"))
	if shape != ShapeCompact {
		t.Fatalf("expected compact shape, got %s", shape)
	}
}

func TestFormatter_TruncatesAtBlockBoundary(t *testing.T) {
	f := New(Options{MaxChars: 10, HardCapChars: 20})
	out, _ := f.Format(ragtypes.ScopeResult{Scope: ragtypes.ScopeMacro, OptimalK: 18}, rankedEntities(10, "area.kitchen"))
	if strings.Contains(out, "\x00") {
		t.Fatalf("unexpected control byte in output")
	}
	if len(out) > 20 {
		t.Fatalf("expected output to respect hard cap, got length %d", len(out))
	}
}

func TestFormatter_EmptyEntitiesProducesEmptyOutput(t *testing.T) {
	f := New(DefaultOptions())
	out, _ := f.Format(ragtypes.ScopeResult{Scope: ragtypes.ScopeMicro, OptimalK: 5}, nil)
	if out != "" {
		t.Fatalf("expected empty output for empty entity list, got %q", out)
	}
}
