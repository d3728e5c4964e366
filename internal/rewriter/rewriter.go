// Package rewriter implements QueryRewriter (§4.3): resolving coreference
// and ellipsis in follow-up turns so downstream stages can treat the query
// as standalone.
package rewriter

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"homerag/internal/llmclient"
	"homerag/internal/ragtypes"
)

// DefaultTimeout is the §4.3 hard timeout for the LLM rewrite call.
const DefaultTimeout = 1500 * time.Millisecond

// Rewriter produces a self-contained rewritten query.
type Rewriter struct {
	llm     llmclient.Client
	enabled bool
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]string
}

// New builds a Rewriter. When enabled is false, every call falls straight
// through to the deterministic rule.
func New(llm llmclient.Client, enabled bool, timeout time.Duration) *Rewriter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Rewriter{llm: llm, enabled: enabled, timeout: timeout, cache: make(map[string]string)}
}

// Rewrite returns a rewritten query; it is empty only when turns hold no
// non-empty user turn. It only consults the LLM when convCtx.IsFollowUp is
// true and the rewriter is enabled; otherwise it returns the latest user
// turn verbatim.
func (r *Rewriter) Rewrite(ctx context.Context, turns []ragtypes.ConversationTurn, convCtx ragtypes.ConversationContext) string {
	latest := latestUserContent(turns)
	if latest == "" {
		return ""
	}
	if !convCtx.IsFollowUp || !r.enabled || r.llm == nil {
		return latest
	}

	key := cacheKey(turns)
	if cached, ok := r.cachedValue(key); ok {
		return cached
	}

	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	out, err := r.llm.Complete(rctx, llmclient.CompleteRequest{
		Prompt:    rewritePrompt(turns),
		MaxTokens: 60,
	})
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		return fallbackRewrite(turns, latest)
	}
	r.storeCache(key, out)
	return out
}

func (r *Rewriter) cachedValue(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.cache[key]
	return v, ok
}

func (r *Rewriter) storeCache(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = value
}

// cacheKey hashes the prompt-relevant last-3-turns window (§4.3: "prompt
// hash + last 3 turns").
func cacheKey(turns []ragtypes.ConversationTurn) string {
	window := lastN(turns, 3)
	h := sha1.New()
	for _, t := range window {
		h.Write([]byte(string(t.Role)))
		h.Write([]byte{0})
		h.Write([]byte(t.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func rewritePrompt(turns []ragtypes.ConversationTurn) string {
	var b strings.Builder
	b.WriteString("Rewrite the final user message into a self-contained question. Reply with only the rewritten question.\n")
	for _, t := range lastN(turns, 3) {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// fallbackRewrite concatenates the latest user turn with a noun-phrase
// salvaged from the immediately prior user turn.
func fallbackRewrite(turns []ragtypes.ConversationTurn, latest string) string {
	prior := priorUserContent(turns)
	if prior == "" {
		return latest
	}
	topic := salvageTopic(prior)
	if topic == "" {
		return latest
	}
	trimmed := strings.TrimRight(strings.TrimSpace(latest), "?.! ")
	return trimmed + " " + topic + "?"
}

// salvageTopic extracts a short trailing noun phrase from a prior
// question, e.g. "how many degrees in the living room?" -> "degrees in the living room".
func salvageTopic(prior string) string {
	p := strings.ToLower(strings.TrimSpace(prior))
	p = strings.TrimRight(p, "?.! ")
	for _, lead := range []string{"how many ", "how much ", "what is ", "what's ", "is ", "are "} {
		if strings.HasPrefix(p, lead) {
			return strings.TrimSpace(strings.TrimPrefix(p, lead))
		}
	}
	return ""
}

func latestUserContent(turns []ragtypes.ConversationTurn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == ragtypes.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

func priorUserContent(turns []ragtypes.ConversationTurn) string {
	seen := 0
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == ragtypes.RoleUser {
			seen++
			if seen == 2 {
				return turns[i].Content
			}
		}
	}
	return ""
}

func lastN(turns []ragtypes.ConversationTurn, n int) []ragtypes.ConversationTurn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
