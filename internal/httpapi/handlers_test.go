package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"homerag/internal/analyzer"
	"homerag/internal/crossencoder"
	"homerag/internal/embedder"
	"homerag/internal/expander"
	"homerag/internal/format"
	"homerag/internal/llmclient"
	"homerag/internal/memory"
	"homerag/internal/orchestrator"
	"homerag/internal/ragtypes"
	"homerag/internal/rerank"
	"homerag/internal/retrieve"
	"homerag/internal/rewriter"
	"homerag/internal/scope"
	"homerag/internal/store"
)

func testOrchestrator() *orchestrator.Orchestrator {
	llm := &llmclient.Deterministic{}
	s := store.NewMemory()
	s.PutEntity(ragtypes.Entity{ID: "sensor.outdoor_temp", Domain: "sensor", DisplayText: "outdoor temperature", SystemText: "outdoor temperature", Embedding: []float32{1, 0, 0}})
	emb := embedder.NewDeterministic(3, false, 1)

	return orchestrator.New(
		analyzer.New(analyzer.NewAliasTable()),
		rewriter.New(llm, true, rewriter.DefaultTimeout),
		expander.New(expander.NewSynonymTable(), true, expander.DefaultMaxVariants),
		scope.New(llm, scope.DefaultKRanges(), scope.DefaultTimeout),
		retrieve.New(s, emb, retrieve.DefaultOptions()),
		rerank.New(crossencoder.Lexical{}, rerank.DefaultWeights(), rerank.DefaultTimeout, time.Now),
		format.New(format.DefaultOptions()),
		memory.New(memory.DefaultTTL, nil, time.Now),
	)
}

func TestHandleProcessRequest_Success(t *testing.T) {
	srv := NewServer(testOrchestrator(), nil)

	body := []byte(`{"user_message": "what is the outdoor temperature"}`)
	req := httptest.NewRequest(http.MethodPost, "/process-request", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "formatted_content")
}

func TestHandleProcessRequest_MissingUserMessageIsInvalidRequest(t *testing.T) {
	srv := NewServer(testOrchestrator(), nil)

	req := httptest.NewRequest(http.MethodPost, "/process-request", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "InvalidRequest")
}

func TestHandleProcessRequestWorkflow_AcceptsMessagesArray(t *testing.T) {
	srv := NewServer(testOrchestrator(), nil)

	body := []byte(`{"messages": [{"role": "user", "content": "what is the outdoor temperature"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/process-request-workflow", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "workflow_quality")
	require.Contains(t, rec.Body.String(), "optimal_k")
}

func TestHandleProcessResponse_NeverTouchesPipelineState(t *testing.T) {
	srv := NewServer(testOrchestrator(), nil)

	body := []byte(`{"tool_calls": []}`)
	req := httptest.NewRequest(http.MethodPost, "/process-response", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleHealthz(t *testing.T) {
	srv := NewServer(testOrchestrator(), nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadyz_NotReadyReportsBackendUnavailable(t *testing.T) {
	srv := NewServer(testOrchestrator(), func() bool { return false })

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "BackendUnavailable"))
}
