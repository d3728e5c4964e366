package expander

import "testing"

func TestExpander_OriginalIsAlwaysVariantOne(t *testing.T) {
	table := NewSynonymTable()
	e := New(table, true, 3)
	variants := e.Expand("how hot is the living room", nil)
	if len(variants) == 0 || variants[0] != "how hot is the living room" {
		t.Fatalf("expected original query first, got %+v", variants)
	}
}

func TestExpander_DisabledReturnsOnlyOriginal(t *testing.T) {
	table := NewSynonymTable()
	table.Entries[CategoryTemperature] = map[string][]string{"hot": {"warm"}}
	e := New(table, false, 3)
	variants := e.Expand("how hot is it", []string{"sensor"})
	if len(variants) != 1 {
		t.Fatalf("expected only the original variant, got %+v", variants)
	}
}

func TestExpander_GeneratesSynonymVariant(t *testing.T) {
	table := NewSynonymTable()
	table.Entries[CategoryTemperature] = map[string][]string{"hot": {"warm"}}
	e := New(table, true, 3)
	variants := e.Expand("how hot is it", []string{"sensor"})
	found := false
	for _, v := range variants[1:] {
		if v == "how warm is it" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a synonym variant, got %+v", variants)
	}
}

func TestExpander_DropsDuplicateNormalizedVariants(t *testing.T) {
	table := NewSynonymTable()
	table.Entries[CategoryTemperature] = map[string][]string{"hot": {"hot"}}
	e := New(table, true, 3)
	variants := e.Expand("how hot is it", []string{"sensor"})
	if len(variants) != 1 {
		t.Fatalf("expected duplicate variant to be dropped, got %+v", variants)
	}
}

func TestExpander_RespectsMaxVariants(t *testing.T) {
	table := NewSynonymTable()
	table.Entries[CategoryTemperature] = map[string][]string{"hot": {"warm", "toasty", "balmy", "sweltering"}}
	e := New(table, true, 2)
	variants := e.Expand("how hot is it", []string{"sensor"})
	if len(variants) > 2 {
		t.Fatalf("expected at most 2 variants, got %d", len(variants))
	}
}
