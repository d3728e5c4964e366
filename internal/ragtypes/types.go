// Package ragtypes holds the shared data model passed between retrieval
// pipeline stages. Types here carry no behavior beyond small read-only
// helpers; stage logic lives in the stage packages.
package ragtypes

import "time"

// Scope classifies a query by the size of the answer it expects.
type Scope string

const (
	ScopeMicro    Scope = "micro"
	ScopeMacro    Scope = "macro"
	ScopeOverview Scope = "overview"
)

// ClusterType constrains which scopes a cluster is eligible for during
// ClusterSearch (§4.6.1).
type ClusterType string

const (
	ClusterMicro    ClusterType = "micro"
	ClusterMacro    ClusterType = "macro"
	ClusterOverview ClusterType = "overview"
)

// Intent is the coarse action class detected by the ConversationAnalyzer.
type Intent string

const (
	IntentRead    Intent = "read"
	IntentControl Intent = "control"
	IntentUnknown Intent = "unknown"
)

// Role identifies the speaker of a ConversationTurn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// EmbeddingVector is a fixed-length embedding. All vectors within a
// deployment share Dimension(); callers must validate this at startup.
type EmbeddingVector []float32

// Entity is an addressable device or sensor in the smart-home controller.
type Entity struct {
	ID              string // stable id, "domain.name"
	Domain          string
	AreaID          string
	AreaName        string
	DeviceID        string
	DeviceName      string
	DisplayName     string
	TechnicalClass  string
	StateValue      string
	StateUnit       string
	LastUpdated     time.Time
	DisplayText     string // localized text used for text search
	SystemText      string // normalized English text, source of Embedding
	Embedding       EmbeddingVector
	InputHash       string
	Attributes      map[string]string // unknown/passthrough fields, preserved verbatim
}

// Cluster is a pre-computed named grouping of semantically related entities.
type Cluster struct {
	ID          string
	Name        string
	Type        ClusterType
	ScopeLabel  string
	Tags        []string
	Description string
	Embedding   EmbeddingVector
}

// ClusterMembership is a directed cluster->entity edge with a relevance weight.
type ClusterMembership struct {
	ClusterID string
	EntityID  string
	Weight    float64 // [0,1]
}

// ConversationTurn is one message in the conversation supplied by the caller.
type ConversationTurn struct {
	Role     Role
	Content  string
	Position int
}

// ConversationContext is the ConversationAnalyzer's output (§4.2).
type ConversationContext struct {
	Areas      []string
	Domains    []string
	Intent     Intent
	IsFollowUp bool
	Confidence float64
}

// ScopeResult is the ScopeDetector's output (§4.5).
type ScopeResult struct {
	Scope      Scope
	Confidence float64
	OptimalK   int
	Reasoning  string
}

// CandidateEntity is one unranked candidate produced by CandidateRetriever,
// carrying the per-source scores §4.6/§4.7 need.
type CandidateEntity struct {
	Entity      Entity
	ClusterHit  bool
	VectorScore float64
	TextScore   float64
	ClusterScore float64
}

// LexicalScore returns the best of the vector, text and cluster scores,
// used as factor f2 (§4.7).
func (c CandidateEntity) LexicalScore() float64 {
	best := c.VectorScore
	if c.TextScore > best {
		best = c.TextScore
	}
	if c.ClusterScore > best {
		best = c.ClusterScore
	}
	return best
}

// FactorBreakdown is the per-entity reranker diagnostic (§4.7).
type FactorBreakdown struct {
	EntityID string
	F1Semantic float64
	F2Lexical  float64
	F3Area     float64
	F4Domain   float64
	F5Intent   float64
	F6Memory   float64
	F7Recency  float64
	Total      float64
}

// RankedEntity is one output of the Reranker.
type RankedEntity struct {
	Entity Entity
	Score  float64
}

// StageError records a single recovered stage failure for diagnostics (§4.9/§7).
type StageError struct {
	Stage   string
	Reason  string
	Err     string
}

// Diagnostics is the request-scoped record surfaced to the caller (§7/§8).
type Diagnostics struct {
	Scope         Scope
	OptimalK      int
	StageTimings  map[string]time.Duration
	Fallbacks     []string // reason codes, e.g. "skip_expander_no_rewrite"
	ClusterSkipped bool
	Errors        []StageError
	FactorBreakdown []FactorBreakdown
}

// RAGState is the mutable carrier threaded through every pipeline stage;
// no stage may mutate a field owned by a later stage.
type RAGState struct {
	Turns     []ConversationTurn
	SessionID string

	RewrittenQuery string
	QueryVariants  []string

	Context ConversationContext
	Scope   ScopeResult

	Candidates []CandidateEntity
	Reranked   []RankedEntity

	// LowScoreRetried marks that the §4.9 low-top-score re-expand-and-retry
	// rule already ran once for this request; it never runs twice.
	LowScoreRetried bool

	FormattedContext string

	Diagnostics Diagnostics
	StageTimings map[string]time.Duration
	Errors       []StageError
}

// RecordError appends a recovered stage failure without raising.
func (s *RAGState) RecordError(stage, reason string, err error) {
	e := StageError{Stage: stage, Reason: reason}
	if err != nil {
		e.Err = err.Error()
	}
	s.Errors = append(s.Errors, e)
}

// RecordTiming stores how long a stage took for diagnostics.
func (s *RAGState) RecordTiming(stage string, d time.Duration) {
	if s.StageTimings == nil {
		s.StageTimings = make(map[string]time.Duration)
	}
	s.StageTimings[stage] = d
}

// RecordFallback appends a routing fallback reason code (§4.9).
func (s *RAGState) RecordFallback(reason string) {
	s.Diagnostics.Fallbacks = append(s.Diagnostics.Fallbacks, reason)
}
