// Package crossencoder implements the cross-encoder collaborator (§6.2):
// score(query, [doc]) -> [float in 0..1], batched. Used by the Reranker's
// f1 semantic factor (§4.7) with a hard 1500ms timeout and graceful
// fallback to f2-only ranking on failure.
package crossencoder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"homerag/internal/observability"
)

// ErrUnavailable is returned on transport failure or non-2xx status.
var ErrUnavailable = errors.New("crossencoder: backend unavailable")

// Scorer is the pluggable cross-encoder contract. Score must return one
// value per doc, in the same order, each clamped to [0,1].
type Scorer interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// HTTPScorer calls a remote cross-encoder scoring endpoint in one batched
// request, mirroring this codebase's hand-rolled remote-model clients
// (no generated SDK exists for this kind of model server in the wild).
type HTTPScorer struct {
	baseURL string
	client  *http.Client
}

// NewHTTP builds an HTTPScorer pointed at baseURL + "/score".
func NewHTTP(baseURL string, timeout time.Duration) *HTTPScorer {
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	client := observability.NewHTTPClient(&http.Client{Timeout: timeout})
	return &HTTPScorer{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type scoreRequest struct {
	Query string   `json:"query"`
	Docs  []string `json:"docs"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

func (h *HTTPScorer) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(scoreRequest{Query: query, Docs: docs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/score", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		log.Error().Int("status", resp.StatusCode).RawJSON("body", observability.RedactJSON(errBody)).Msg("crossencoder_bad_status")
		return nil, ErrUnavailable
	}
	var parsed scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Scores) != len(docs) {
		return nil, errors.New("crossencoder: score count mismatch")
	}
	for i, s := range parsed.Scores {
		if s < 0 {
			parsed.Scores[i] = 0
		} else if s > 1 {
			parsed.Scores[i] = 1
		}
	}
	return parsed.Scores, nil
}

// Lexical is a deterministic token-overlap scorer used for tests and
// air-gapped installs: score = |query terms ∩ doc terms| / |query terms|.
type Lexical struct{}

func (Lexical) Score(_ context.Context, query string, docs []string) ([]float64, error) {
	qTerms := terms(query)
	out := make([]float64, len(docs))
	if len(qTerms) == 0 {
		return out, nil
	}
	qSet := make(map[string]struct{}, len(qTerms))
	for _, t := range qTerms {
		qSet[t] = struct{}{}
	}
	for i, d := range docs {
		dTerms := terms(d)
		hits := 0
		seen := make(map[string]struct{})
		for _, t := range dTerms {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			if _, ok := qSet[t]; ok {
				hits++
			}
		}
		out[i] = float64(hits) / float64(len(qSet))
		if out[i] > 1 {
			out[i] = 1
		}
	}
	return out, nil
}

func terms(s string) []string {
	return strings.Fields(strings.ToLower(s))
}
