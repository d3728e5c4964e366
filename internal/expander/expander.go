// Package expander implements QueryExpander (§4.4): generating ordered
// query variants from synonym expansion, bilingual pairs, and light
// paraphrase templates.
package expander

import "strings"

// DefaultMaxVariants is the §6.3 configuration default.
const DefaultMaxVariants = 3

// Category is one of the six fixed semantic categories the synonym table
// is keyed by.
type Category string

const (
	CategoryTemperature Category = "temperature"
	CategoryHumidity    Category = "humidity"
	CategoryLight       Category = "light"
	CategoryEnergy      Category = "energy"
	CategorySecurity    Category = "security"
	CategoryClimate     Category = "climate"
)

// SynonymTable is the §6.2 multilingual synonym table, keyed by category,
// mapping a term to its synonym/bilingual/paraphrase variants.
type SynonymTable struct {
	Entries map[Category]map[string][]string
}

// NewSynonymTable builds an empty table; callers populate it from config.
func NewSynonymTable() *SynonymTable {
	return &SynonymTable{Entries: make(map[Category]map[string][]string)}
}

// Expander generates query variants.
type Expander struct {
	table       *SynonymTable
	enabled     bool
	maxVariants int
}

// New builds an Expander. When enabled is false, Expand returns just the
// original query as variant #1.
func New(table *SynonymTable, enabled bool, maxVariants int) *Expander {
	if table == nil {
		table = NewSynonymTable()
	}
	if maxVariants <= 0 {
		maxVariants = DefaultMaxVariants
	}
	if maxVariants > 8 {
		maxVariants = 8
	}
	return &Expander{table: table, enabled: enabled, maxVariants: maxVariants}
}

// Expand returns query variants with the original query always first.
func (e *Expander) Expand(query string, domains []string) []string {
	variants := []string{query}
	if !e.enabled || query == "" {
		return variants
	}
	seen := map[string]bool{normalize(query): true}

	for _, cat := range relevantCategories(domains) {
		terms := e.table.Entries[cat]
		for term, synonyms := range terms {
			if !strings.Contains(strings.ToLower(query), strings.ToLower(term)) {
				continue
			}
			for _, syn := range synonyms {
				candidate := strings.ReplaceAll(strings.ToLower(query), strings.ToLower(term), syn)
				key := normalize(candidate)
				if seen[key] {
					continue
				}
				seen[key] = true
				variants = append(variants, candidate)
				if len(variants) >= e.maxVariants {
					return variants
				}
			}
		}
	}
	return variants
}

// paraphraseTemplates are fixed reword patterns, independent of the
// synonym table and domain detection. Used by ExpandParaphrase.
var paraphraseTemplates = []func(string) string{
	func(q string) string { return "tell me about " + q },
	func(q string) string { return "what about " + q },
	func(q string) string { return "show me " + q },
}

// ExpandParaphrase returns paraphrase-only variants of query, ignoring the
// synonym table and the enabled flag. It backs the §4.9 low-top-score
// retry rule, where the orchestrator forces a reworded retrieval pass
// regardless of whether expansion is otherwise configured on.
func (e *Expander) ExpandParaphrase(query string) []string {
	variants := []string{query}
	if query == "" {
		return variants
	}
	seen := map[string]bool{normalize(query): true}
	for _, tmpl := range paraphraseTemplates {
		candidate := tmpl(query)
		key := normalize(candidate)
		if seen[key] {
			continue
		}
		seen[key] = true
		variants = append(variants, candidate)
		if len(variants) >= e.maxVariants {
			break
		}
	}
	return variants
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// relevantCategories maps detected domains to synonym-table categories;
// when no domains are detected, all categories are tried.
func relevantCategories(domains []string) []Category {
	if len(domains) == 0 {
		return []Category{CategoryTemperature, CategoryHumidity, CategoryLight, CategoryEnergy, CategorySecurity, CategoryClimate}
	}
	out := make([]Category, 0, len(domains))
	for _, d := range domains {
		switch d {
		case "sensor", "climate":
			out = append(out, CategoryTemperature, CategoryHumidity, CategoryClimate)
		case "light":
			out = append(out, CategoryLight)
		case "lock", "alarm_control_panel", "binary_sensor":
			out = append(out, CategorySecurity)
		case "switch":
			out = append(out, CategoryEnergy)
		}
	}
	return out
}
