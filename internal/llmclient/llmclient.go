// Package llmclient implements the LLM client collaborator (§6.2):
// complete(prompt, max_tokens, stop?, deadline) -> string. It is used by
// QueryRewriter, ScopeDetector's primary classifier, and AsyncEnricher.
// Every call is deadline-bounded; callers fall back deterministically on
// error, so this package never itself implements a fallback chain.
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"homerag/internal/observability"
)

// ErrUnavailable is returned when the backend could not be reached or
// returned a non-success status. Callers classify this as BackendUnavailable.
var ErrUnavailable = errors.New("llmclient: backend unavailable")

// CompleteRequest bundles the parameters of a single completion call.
type CompleteRequest struct {
	Prompt    string
	MaxTokens int
	Stop      []string
}

// Client is the pluggable LLM completion contract.
type Client interface {
	Complete(ctx context.Context, req CompleteRequest) (string, error)
	Name() string
}

// OpenAIClient calls an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds a Client backed by the OpenAI-compatible API. baseURL may
// point at a self-hosted, OpenAI-protocol-compatible server.
func NewOpenAI(apiKey, baseURL, model string) *OpenAIClient {
	httpClient := observability.NewHTTPClient(nil)
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(opts...)
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{client: &c, model: model}
}

func (o *OpenAIClient) Name() string { return "openai" }

func (o *OpenAIClient) Complete(ctx context.Context, req CompleteRequest) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 256
	}
	params := openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		MaxTokens: openai.Int(maxTokens),
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if b, merr := json.Marshal(params); merr == nil {
			log.Error().Err(err).RawJSON("request", observability.RedactJSON(b)).Msg("llmclient_completion_failed")
		}
		return "", errors.Join(ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrUnavailable
	}
	return resp.Choices[0].Message.Content, nil
}

// Deterministic is a rule-based stand-in used for tests and air-gapped
// installs where no LLM is configured. With Delay unset it never errors and
// never blocks; with Delay set it waits that long first and returns the
// context's error if ctx ends before the wait is over.
type Deterministic struct {
	// Reply, when set, is returned verbatim; otherwise the whole prompt is
	// echoed back so callers exercising "does my fallback run" tests can
	// assert on deterministic output.
	Reply string
	Delay time.Duration
}

func (d *Deterministic) Name() string { return "deterministic" }

func (d *Deterministic) Complete(ctx context.Context, req CompleteRequest) (string, error) {
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if d.Reply != "" {
		return d.Reply, nil
	}
	return req.Prompt, nil
}

// Unavailable always fails; used to test degraded-mode routing (§4.9/§8
// scenario 5: "backend degraded").
type Unavailable struct{}

func (Unavailable) Name() string { return "unavailable" }
func (Unavailable) Complete(context.Context, CompleteRequest) (string, error) {
	return "", ErrUnavailable
}
