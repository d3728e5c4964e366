// Package embedder implements the embedding-backend collaborator (§6.2):
// embed(texts, kind) -> [vector]. Implementations must produce vectors of a
// fixed configured dimension. The HTTP backend checks each returned vector
// against that dimension; nothing compares Dimension() with the store's
// index at startup.
package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"homerag/internal/observability"
)

// Kind distinguishes a query embedding request from a document one; some
// remote backends use asymmetric encoders and need this to pick a model.
type Kind string

const (
	KindQuery    Kind = "query"
	KindDocument Kind = "document"
)

// Embedder is the pluggable embedding backend contract.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, kind Kind) ([][]float32, error)
	Name() string
	Dimension() int
	Ping(ctx context.Context) error
}

// Deterministic is a hash-based embedder used for tests and air-gapped
// installs where no model server is configured. It hashes character
// 3-grams into a fixed-size vector and L2-normalizes the result, so
// repeated runs over the same text are bit-identical.
type Deterministic struct {
	dim       int
	normalize bool
	seed      uint32
}

// NewDeterministic builds a Deterministic embedder of the given dimension.
func NewDeterministic(dim int, normalize bool, seed uint32) *Deterministic {
	if dim <= 0 {
		dim = 384
	}
	return &Deterministic{dim: dim, normalize: normalize, seed: seed}
}

func (d *Deterministic) Name() string    { return "local" }
func (d *Deterministic) Dimension() int  { return d.dim }
func (d *Deterministic) Ping(context.Context) error { return nil }

func (d *Deterministic) EmbedBatch(_ context.Context, texts []string, _ Kind) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *Deterministic) embedOne(text string) []float32 {
	v := make([]float32, d.dim)
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return v
	}
	runes := []rune(norm)
	const gram = 3
	if len(runes) < gram {
		d.add(v, norm)
	} else {
		for i := 0; i+gram <= len(runes); i++ {
			d.add(v, string(runes[i:i+gram]))
		}
	}
	if d.normalize {
		l2Normalize(v)
	}
	return v
}

func (d *Deterministic) add(v []float32, gram string) {
	h := fnv.New32a()
	_, _ = h.Write([]byte{byte(d.seed), byte(d.seed >> 8)})
	_, _ = h.Write([]byte(gram))
	sum := h.Sum32()
	idx := int(sum % uint32(len(v)))
	sign := float32(1)
	if sum&1 == 1 {
		sign = -1
	}
	v[idx] += sign
}

func l2Normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= inv
	}
}

// HTTPConfig configures the remote embedding backend.
type HTTPConfig struct {
	BaseURL    string
	Path       string
	Model      string
	APIKey     string
	APIHeader  string // e.g. "Authorization"; defaults to bearer auth when empty
	Dimension  int
	Timeout    time.Duration
	BackendTag string // "remote_a" or "remote_b", selects request/response shape
}

// HTTPEmbedder calls a remote HTTP embedding endpoint. Some local model
// servers crash under batched requests, so it degrades to one request per
// input text; callers needing throughput should run several in parallel.
type HTTPEmbedder struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTP builds a remote embedder for the configured backend.
func NewHTTP(cfg HTTPConfig, client *http.Client) *HTTPEmbedder {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = observability.NewHTTPClient(&http.Client{Timeout: timeout})
		if cfg.APIKey != "" && cfg.APIHeader != "" {
			client = observability.WithHeaders(client, map[string]string{cfg.APIHeader: cfg.APIKey})
		}
	}
	return &HTTPEmbedder{cfg: cfg, client: client}
}

func (e *HTTPEmbedder) Name() string   { return e.cfg.BackendTag }
func (e *HTTPEmbedder) Dimension() int { return e.cfg.Dimension }

func (e *HTTPEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedder ping: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

type embedRequestA struct {
	Input []string `json:"input"`
	Model string   `json:"model,omitempty"`
}

type embedRequestB struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
	Kind  string   `json:"kind,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string, kind Kind) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.embedOne(ctx, t, kind)
		if err != nil {
			return nil, err
		}
		if len(v) != e.cfg.Dimension {
			return nil, fmt.Errorf("embedder %s: expected dimension %d, got %d", e.cfg.BackendTag, e.cfg.Dimension, len(v))
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *HTTPEmbedder) embedOne(ctx context.Context, text string, kind Kind) ([]float32, error) {
	var body []byte
	var err error
	switch e.cfg.BackendTag {
	case "remote_b":
		body, err = json.Marshal(embedRequestB{Texts: []string{text}, Model: e.cfg.Model, Kind: string(kind)})
	default:
		body, err = json.Marshal(embedRequestA{Input: []string{text}, Model: e.cfg.Model})
	}
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(e.cfg.BaseURL, "/") + e.cfg.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		header := e.cfg.APIHeader
		if header == "" {
			req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
		} else {
			req.Header.Set(header, e.cfg.APIKey)
		}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		log.Error().Int("status", resp.StatusCode).RawJSON("body", observability.RedactJSON(errBody)).Msg("embedder_bad_status")
		return nil, fmt.Errorf("embedder %s returned status %d", e.cfg.BackendTag, resp.StatusCode)
	}
	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedder decode: %w", err)
	}
	if len(parsed.Embeddings) > 0 {
		return parsed.Embeddings[0], nil
	}
	if len(parsed.Data) > 0 {
		return parsed.Data[0].Embedding, nil
	}
	return nil, fmt.Errorf("embedder %s: empty response", e.cfg.BackendTag)
}
