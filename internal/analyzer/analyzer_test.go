package analyzer

import (
	"testing"

	"homerag/internal/ragtypes"
)

func testAliases() *AliasTable {
	return &AliasTable{
		AreaAlias:   map[string]string{"living room": "area.living_room", "outside": "area.outdoor"},
		DomainAlias: map[string]string{"temperature": "sensor", "light": "light", "lights": "light"},
	}
}

func TestAnalyzer_DetectsControlIntent(t *testing.T) {
	a := New(testAliases())
	ctx := a.Analyze([]ragtypes.ConversationTurn{
		{Role: ragtypes.RoleUser, Content: "turn on the lights in the living room", Position: 0},
	})
	if ctx.Intent != ragtypes.IntentControl {
		t.Fatalf("expected control intent, got %s", ctx.Intent)
	}
	if len(ctx.Areas) != 1 || ctx.Areas[0] != "area.living_room" {
		t.Fatalf("expected living room area, got %+v", ctx.Areas)
	}
}

func TestAnalyzer_DetectsReadIntent(t *testing.T) {
	a := New(testAliases())
	ctx := a.Analyze([]ragtypes.ConversationTurn{
		{Role: ragtypes.RoleUser, Content: "how much is the temperature in the living room?", Position: 0},
	})
	if ctx.Intent != ragtypes.IntentRead {
		t.Fatalf("expected read intent, got %s", ctx.Intent)
	}
}

func TestAnalyzer_FollowUpRequiresPriorTurn(t *testing.T) {
	a := New(testAliases())
	ctx := a.Analyze([]ragtypes.ConversationTurn{
		{Role: ragtypes.RoleUser, Content: "and outside?", Position: 0},
	})
	if ctx.IsFollowUp {
		t.Fatalf("expected no follow-up without a prior turn")
	}
}

func TestAnalyzer_FollowUpWithPriorTurn(t *testing.T) {
	a := New(testAliases())
	ctx := a.Analyze([]ragtypes.ConversationTurn{
		{Role: ragtypes.RoleUser, Content: "how many degrees in the living room?", Position: 0},
		{Role: ragtypes.RoleAssistant, Content: "23 degrees", Position: 1},
		{Role: ragtypes.RoleUser, Content: "and outside?", Position: 2},
	})
	if !ctx.IsFollowUp {
		t.Fatalf("expected follow-up to be detected")
	}
}

func TestAnalyzer_NoTurnsYieldsUnknownIntent(t *testing.T) {
	a := New(testAliases())
	ctx := a.Analyze(nil)
	if ctx.Intent != ragtypes.IntentUnknown {
		t.Fatalf("expected unknown intent, got %s", ctx.Intent)
	}
	if ctx.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %f", ctx.Confidence)
	}
}
