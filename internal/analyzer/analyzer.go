// Package analyzer implements ConversationAnalyzer (§4.2): fast,
// pure-local detection of mentioned areas/domains, intent, and follow-up
// status over the recent conversation turns.
package analyzer

import (
	"strings"

	"homerag/internal/ragtypes"
)

// AliasTable is the §6.2 "language/area/domain alias table" collaborator,
// loaded at startup from YAML. Lookups are case-insensitive; callers
// normalize to lower case before indexing.
type AliasTable struct {
	AreaAlias   map[string]string // alias -> canonical area id
	DomainAlias map[string]string // alias -> canonical domain
}

// NewAliasTable builds an empty table; callers populate it from config.
func NewAliasTable() *AliasTable {
	return &AliasTable{AreaAlias: make(map[string]string), DomainAlias: make(map[string]string)}
}

var readCues = []string{"how much", "how many", "is it", "what is", "what's", "what are", "status of"}
var controlCues = []string{"turn on", "turn off", "set ", "open ", "close ", "dim ", "lock ", "unlock "}
var followUpMarkers = []string{"and ", "what about", "how about", "there too", "there as well"}

// Analyzer runs the pattern-based detection described in §4.2.
type Analyzer struct {
	aliases *AliasTable
}

// New builds an Analyzer bound to the given alias table.
func New(aliases *AliasTable) *Analyzer {
	if aliases == nil {
		aliases = NewAliasTable()
	}
	return &Analyzer{aliases: aliases}
}

// Analyze inspects the most recent user turn, biased by prior turns, and
// produces a ConversationContext.
func (a *Analyzer) Analyze(turns []ragtypes.ConversationTurn) ragtypes.ConversationContext {
	latest, hasLatest := lastUserTurn(turns)
	if !hasLatest {
		return ragtypes.ConversationContext{Intent: ragtypes.IntentUnknown, Confidence: 0}
	}
	text := strings.ToLower(latest.Content)

	areas, areaConf := a.detectAreas(text)
	domains, domainConf := a.detectDomains(text)
	intent, intentConf := detectIntent(text)
	isFollowUp, followConf := a.detectFollowUp(text, turns, latest.Position)

	confidence := minOf(areaConf, domainConf, intentConf, followConf)
	return ragtypes.ConversationContext{
		Areas:      areas,
		Domains:    domains,
		Intent:     intent,
		IsFollowUp: isFollowUp,
		Confidence: confidence,
	}
}

func lastUserTurn(turns []ragtypes.ConversationTurn) (ragtypes.ConversationTurn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == ragtypes.RoleUser {
			return turns[i], true
		}
	}
	return ragtypes.ConversationTurn{}, false
}

func (a *Analyzer) detectAreas(text string) ([]string, float64) {
	found := map[string]bool{}
	for alias, areaID := range a.aliases.AreaAlias {
		if alias == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(alias)) {
			found[areaID] = true
		}
	}
	if len(found) == 0 {
		return nil, 0.5
	}
	out := make([]string, 0, len(found))
	for id := range found {
		out = append(out, id)
	}
	return out, 1.0
}

func (a *Analyzer) detectDomains(text string) ([]string, float64) {
	found := map[string]bool{}
	for alias, domain := range a.aliases.DomainAlias {
		if alias == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(alias)) {
			found[domain] = true
		}
	}
	if len(found) == 0 {
		return nil, 0.5
	}
	out := make([]string, 0, len(found))
	for d := range found {
		out = append(out, d)
	}
	return out, 1.0
}

func detectIntent(text string) (ragtypes.Intent, float64) {
	for _, cue := range controlCues {
		if strings.Contains(text, cue) {
			return ragtypes.IntentControl, 1.0
		}
	}
	for _, cue := range readCues {
		if strings.Contains(text, cue) {
			return ragtypes.IntentRead, 1.0
		}
	}
	return ragtypes.IntentUnknown, 0.3
}

// detectFollowUp implements §4.2's two-part rule: a resolvable
// pronoun/ellipsis marker in the latest turn AND a prior turn in the same
// session.
func (a *Analyzer) detectFollowUp(text string, turns []ragtypes.ConversationTurn, latestPos int) (bool, float64) {
	hasPrior := false
	for _, t := range turns {
		if t.Position < latestPos {
			hasPrior = true
			break
		}
	}
	if !hasPrior {
		return false, 1.0
	}
	for _, marker := range followUpMarkers {
		if strings.Contains(text, marker) {
			return true, 1.0
		}
	}
	return false, 0.8
}

func minOf(vals ...float64) float64 {
	m := 1.0
	for _, v := range vals {
		if v < m {
			m = v
		}
	}
	return m
}
