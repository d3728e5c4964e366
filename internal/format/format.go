// Package format implements ContextFormatter (§4.8): rendering a ranked
// entity list into one of four LLM-facing text shapes.
package format

import (
	"fmt"
	"sort"
	"strings"

	"homerag/internal/ragtypes"
)

// Shape identifies one of the four output layouts.
type Shape string

const (
	ShapeTLDR           Shape = "tldr"
	ShapeGroupedByArea  Shape = "grouped_by_area"
	ShapeDetailed       Shape = "detailed"
	ShapeCompact        Shape = "compact"
)

// DefaultMaxChars and DefaultHardCapChars are the §4.8/§6.3 length bounds.
const (
	DefaultMaxChars     = 4096
	DefaultHardCapChars = 8192
)

// Options configures formatting bounds.
type Options struct {
	MaxChars     int
	HardCapChars int
}

// DefaultOptions returns the §6.3 defaults.
func DefaultOptions() Options {
	return Options{MaxChars: DefaultMaxChars, HardCapChars: DefaultHardCapChars}
}

// Formatter renders ranked entities into a bounded text block.
type Formatter struct {
	opts Options
}

// New builds a Formatter.
func New(opts Options) *Formatter {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.HardCapChars <= 0 || opts.HardCapChars < opts.MaxChars {
		opts.HardCapChars = DefaultHardCapChars
	}
	return &Formatter{opts: opts}
}

// Format chooses a shape per §4.8's selection table and renders it.
func (f *Formatter) Format(scope ragtypes.ScopeResult, entities []ragtypes.RankedEntity) (string, Shape) {
	primaryCount := min(4, scope.OptimalK)
	primary := entities
	if len(primary) > primaryCount {
		primary = primary[:primaryCount]
	}
	related := []ragtypes.RankedEntity{}
	if len(entities) > primaryCount {
		end := primaryCount + 6
		if end > len(entities) {
			end = len(entities)
		}
		related = entities[primaryCount:end]
	}

	areaCount := countAreas(primary)
	shape := selectShape(scope.Scope, areaCount, len(entities))

	var blocks []string
	switch shape {
	case ShapeTLDR:
		blocks = tldrBlocks(entities)
	case ShapeGroupedByArea:
		blocks = groupedByAreaBlocks(primary, related)
	case ShapeDetailed:
		blocks = detailedBlocks(primary, related)
	default:
		blocks = compactBlocks(primary, related)
	}

	return f.capBlocks(blocks), shape
}

func selectShape(scope ragtypes.Scope, areaCount, candidateCount int) Shape {
	switch {
	case scope == ragtypes.ScopeOverview && candidateCount >= 30:
		return ShapeTLDR
	case scope == ragtypes.ScopeMacro && areaCount >= 2:
		return ShapeGroupedByArea
	case scope == ragtypes.ScopeMicro && candidateCount <= 5:
		return ShapeDetailed
	default:
		return ShapeCompact
	}
}

func countAreas(entities []ragtypes.RankedEntity) int {
	seen := map[string]bool{}
	for _, e := range entities {
		if e.Entity.AreaID != "" {
			seen[e.Entity.AreaID] = true
		}
	}
	return len(seen)
}

func tldrBlocks(entities []ragtypes.RankedEntity) []string {
	byArea := map[string][]ragtypes.RankedEntity{}
	order := []string{}
	for _, e := range entities {
		area := displayArea(e.Entity)
		if _, ok := byArea[area]; !ok {
			order = append(order, area)
		}
		byArea[area] = append(byArea[area], e)
	}
	sort.Strings(order)
	blocks := make([]string, 0, len(order))
	for _, area := range order {
		names := make([]string, 0, len(byArea[area]))
		for _, e := range byArea[area] {
			names = append(names, displayName(e.Entity))
		}
		blocks = append(blocks, fmt.Sprintf("%s: %s", area, strings.Join(names, ", ")))
	}
	return blocks
}

func groupedByAreaBlocks(primary, related []ragtypes.RankedEntity) []string {
	all := append(append([]ragtypes.RankedEntity{}, primary...), related...)
	byArea := map[string][]ragtypes.RankedEntity{}
	order := []string{}
	for _, e := range all {
		area := displayArea(e.Entity)
		if _, ok := byArea[area]; !ok {
			order = append(order, area)
		}
		byArea[area] = append(byArea[area], e)
	}
	sort.Strings(order)
	blocks := make([]string, 0, len(order))
	for _, area := range order {
		var b strings.Builder
		fmt.Fprintf(&b, "## %s\n", area)
		for _, e := range byArea[area] {
			b.WriteString(compactLine(e.Entity))
			b.WriteString("\n")
		}
		blocks = append(blocks, strings.TrimRight(b.String(), "\n"))
	}
	return blocks
}

func detailedBlocks(primary, related []ragtypes.RankedEntity) []string {
	blocks := make([]string, 0, len(primary)+len(related))
	for _, e := range primary {
		blocks = append(blocks, detailedBlock(e.Entity))
	}
	for _, e := range related {
		blocks = append(blocks, compactLine(e.Entity))
	}
	return blocks
}

func compactBlocks(primary, related []ragtypes.RankedEntity) []string {
	all := append(append([]ragtypes.RankedEntity{}, primary...), related...)
	blocks := make([]string, 0, len(all))
	for _, e := range all {
		blocks = append(blocks, compactLine(e.Entity))
	}
	return blocks
}

func detailedBlock(e ragtypes.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", displayName(e), e.ID)
	if e.StateValue != "" {
		fmt.Fprintf(&b, "  state: %s%s\n", e.StateValue, unitSuffix(e.StateUnit))
	}
	for k, v := range e.Attributes {
		fmt.Fprintf(&b, "  %s: %s\n", k, v)
	}
	return strings.TrimRight(b.String(), "\n")
}

func compactLine(e ragtypes.Entity) string {
	if e.StateValue == "" {
		return fmt.Sprintf("%s (%s)", displayName(e), e.ID)
	}
	return fmt.Sprintf("%s (%s): %s%s", displayName(e), e.ID, e.StateValue, unitSuffix(e.StateUnit))
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}

func displayName(e ragtypes.Entity) string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.ID
}

func displayArea(e ragtypes.Entity) string {
	if e.AreaName != "" {
		return e.AreaName
	}
	if e.AreaID != "" {
		return e.AreaID
	}
	return "unassigned"
}

// capBlocks joins blocks with blank lines, truncating at block boundaries
// so truncation never splits a block (§4.8).
func (f *Formatter) capBlocks(blocks []string) string {
	var b strings.Builder
	for _, block := range blocks {
		candidate := block
		if b.Len() > 0 {
			candidate = "\n\n" + block
		}
		if b.Len()+len(candidate) > f.opts.HardCapChars {
			break
		}
		if b.Len()+len(candidate) > f.opts.MaxChars && b.Len() > 0 {
			break
		}
		b.WriteString(candidate)
	}
	return b.String()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
