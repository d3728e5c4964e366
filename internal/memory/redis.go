package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror persists ConversationMemory entries under a namespaced key so
// restarts don't lose recently-boosted entities. It is never consulted
// ahead of the process-local map, only on a local miss (§9).
type RedisMirror struct {
	client *redis.Client
	prefix string
}

// NewRedisMirror pings addr to fail fast on misconfiguration, matching the
// teacher's ping-on-construct pattern for optional cache backends.
func NewRedisMirror(ctx context.Context, addr, password string, db int, prefix string) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		return nil, fmt.Errorf("memory: redis ping: %w", err)
	}
	if prefix == "" {
		prefix = "homerag:convmem:"
	}
	return &RedisMirror{client: client, prefix: prefix}, nil
}

func (r *RedisMirror) key(sessionID string) string {
	return r.prefix + sessionID
}

// Load implements Mirror.
func (r *RedisMirror) Load(ctx context.Context, sessionID string) (*Entry, bool) {
	data, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		return nil, false
	}
	e, err := unmarshalEntry(data)
	if err != nil {
		return nil, false
	}
	return e, true
}

// Save implements Mirror. Errors are swallowed: the mirror is best-effort
// and must never fail the request path.
func (r *RedisMirror) Save(ctx context.Context, sessionID string, e *Entry, ttl time.Duration) {
	data, err := marshalEntry(e)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, r.key(sessionID), data, ttl).Err()
}

// Close releases the underlying Redis connection pool.
func (r *RedisMirror) Close() error { return r.client.Close() }
