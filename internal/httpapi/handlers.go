package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"homerag/internal/observability"
	"homerag/internal/orchestrator"
	"homerag/internal/ragtypes"
)

// errKind is the §7 surface-level error taxonomy.
type errKind string

const (
	errInvalidRequest    errKind = "InvalidRequest"
	errBackendUnavailable errKind = "BackendUnavailable"
	errDeadlineExceeded  errKind = "DeadlineExceeded"
	errInternal          errKind = "Internal"
)

func (k errKind) status() int {
	switch k {
	case errInvalidRequest:
		return http.StatusBadRequest
	case errBackendUnavailable:
		return http.StatusServiceUnavailable
	case errDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (k errKind) retriable() bool {
	return k == errBackendUnavailable || k == errDeadlineExceeded
}

type turnPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type processRequestBody struct {
	UserMessage string `json:"user_message"`
	SessionID   string `json:"session_id"`
}

type processRequestWorkflowBody struct {
	UserMessage string        `json:"user_message"`
	Messages    []turnPayload `json:"messages"`
	SessionID   string        `json:"session_id"`
}

// entityView is the §6.1 wire shape for a ranked entity.
type entityView struct {
	ID          string  `json:"id"`
	Domain      string  `json:"domain"`
	AreaID      string  `json:"area_id"`
	AreaName    string  `json:"area_name"`
	DisplayName string  `json:"display_name"`
	StateValue  string  `json:"state_value"`
	StateUnit   string  `json:"state_unit"`
	Score       float64 `json:"score"`
}

type diagnosticsView struct {
	Scope          ragtypes.Scope `json:"scope"`
	OptimalK       int            `json:"optimal_k"`
	StageTimingsMs map[string]int64 `json:"stage_timings_ms"`
	Fallbacks      []string       `json:"fallbacks"`
	ClusterSkipped bool           `json:"cluster_skipped"`
	Errors         []string       `json:"errors,omitempty"`
}

func (s *Server) handleProcessRequest(w http.ResponseWriter, r *http.Request) {
	var body processRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondTaxonomyError(w, errInvalidRequest, "malformed request body")
		return
	}
	if body.UserMessage == "" {
		respondTaxonomyError(w, errInvalidRequest, "user_message is required")
		return
	}
	req := orchestrator.Request{
		SessionID: body.SessionID,
		Turns:     []ragtypes.ConversationTurn{{Role: ragtypes.RoleUser, Content: body.UserMessage, Position: 0}},
	}
	s.runAndRespond(w, r, req, false)
}

func (s *Server) handleProcessRequestWorkflow(w http.ResponseWriter, r *http.Request) {
	var body processRequestWorkflowBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondTaxonomyError(w, errInvalidRequest, "malformed request body")
		return
	}
	turns := make([]ragtypes.ConversationTurn, 0, len(body.Messages)+1)
	for i, m := range body.Messages {
		turns = append(turns, ragtypes.ConversationTurn{Role: ragtypes.Role(m.Role), Content: m.Content, Position: i})
	}
	if body.UserMessage != "" {
		turns = append(turns, ragtypes.ConversationTurn{Role: ragtypes.RoleUser, Content: body.UserMessage, Position: len(turns)})
	}
	if len(turns) == 0 {
		respondTaxonomyError(w, errInvalidRequest, "messages or user_message is required")
		return
	}
	req := orchestrator.Request{SessionID: body.SessionID, Turns: turns}
	s.runAndRespond(w, r, req, true)
}

func (s *Server) runAndRespond(w http.ResponseWriter, r *http.Request, req orchestrator.Request, workflow bool) {
	ctx := r.Context()
	requestID := uuid.NewString()
	logger := observability.RequestLogger(ctx, requestID, req.SessionID)

	start := time.Now()
	resp := s.orch.Process(ctx, req)
	logger.Info().
		Str("scope", string(resp.Scope)).
		Int("optimal_k", resp.OptimalK).
		Int("entities", len(resp.RelevantEntities)).
		Dur("elapsed", time.Since(start)).
		Strs("fallbacks", resp.Diagnostics.Fallbacks).
		Msg("processed rag request")

	if err := ctx.Err(); err != nil {
		// Cancellation produces no response body (§7); a deadline that the
		// client is still waiting on is reported as DeadlineExceeded.
		if errors.Is(err, context.Canceled) {
			return
		}
		respondTaxonomyError(w, errDeadlineExceeded, "request deadline exceeded")
		return
	}

	entities := make([]entityView, 0, len(resp.RelevantEntities))
	for _, e := range resp.RelevantEntities {
		entities = append(entities, entityView{
			ID:          e.Entity.ID,
			Domain:      e.Entity.Domain,
			AreaID:      e.Entity.AreaID,
			AreaName:    e.Entity.AreaName,
			DisplayName: e.Entity.DisplayName,
			StateValue:  e.Entity.StateValue,
			StateUnit:   e.Entity.StateUnit,
			Score:       e.Score,
		})
	}

	diag := diagnosticsView{
		Scope:          resp.Diagnostics.Scope,
		OptimalK:       resp.Diagnostics.OptimalK,
		StageTimingsMs: stageTimingsMs(resp.Diagnostics.StageTimings),
		Fallbacks:      resp.Diagnostics.Fallbacks,
		ClusterSkipped: resp.Diagnostics.ClusterSkipped,
	}
	for _, e := range resp.Diagnostics.Errors {
		diag.Errors = append(diag.Errors, e.Stage+": "+e.Reason)
	}

	payload := map[string]any{
		"relevant_entities": entities,
		"formatted_content": resp.FormattedContext,
		"diagnostics":       diag,
	}
	if workflow {
		payload["scope"] = resp.Scope
		payload["optimal_k"] = resp.OptimalK
		payload["stage_timings"] = diag.StageTimingsMs
		payload["workflow_quality"] = workflowQuality(resp)
	}
	respondJSON(w, http.StatusOK, payload)
}

// workflowQuality is a coarse signal for the LLM-proxy hook: whether the
// pipeline degraded to a fallback path anywhere in this request.
func workflowQuality(resp orchestrator.Response) string {
	if len(resp.Diagnostics.Fallbacks) == 0 && len(resp.Diagnostics.Errors) == 0 {
		return "nominal"
	}
	return "degraded"
}

func stageTimingsMs(timings map[string]time.Duration) map[string]int64 {
	out := make(map[string]int64, len(timings))
	for k, v := range timings {
		out[k] = v.Milliseconds()
	}
	return out
}

// handleProcessResponse is a thin, isolated handler (§6.1): it validates
// the body and acknowledges, never touching RAGState, ConversationMemory,
// or the document store.
func (s *Server) handleProcessResponse(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondTaxonomyError(w, errInvalidRequest, "malformed request body")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"acknowledged": true})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		respondTaxonomyError(w, errBackendUnavailable, "not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondTaxonomyError(w http.ResponseWriter, kind errKind, message string) {
	respondJSON(w, kind.status(), map[string]any{
		"error": map[string]any{
			"kind":      kind,
			"message":   message,
			"retriable": kind.retriable(),
		},
	})
}
