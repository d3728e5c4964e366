package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"homerag/internal/ragtypes"
)

// Postgres is a DocumentStore backed by pgvector (vector leg), pg_trgm +
// tsvector (text leg) and plain relational tables for clusters/memberships.
// Bootstrap is best-effort CREATE IF NOT EXISTS; production deployments
// should manage migrations with an external tool (§1: out of scope).
type Postgres struct {
	pool      *pgxpool.Pool
	dimension int
	metric    string // cosine|l2|ip
	vectorOp  string
	scoreExpr string
}

// OpenPostgres connects and bootstraps schema for dimension-sized vector
// columns using the given distance metric.
func OpenPostgres(ctx context.Context, dsn string, dimension int, metric string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	p := &Postgres{pool: pool, dimension: dimension, metric: strings.ToLower(strings.TrimSpace(metric))}
	switch p.metric {
	case "l2", "euclidean":
		p.vectorOp = "<->"
		p.scoreExpr = "-(embedding <-> $1::vector)"
	case "ip", "dot":
		p.vectorOp = "<#>"
		p.scoreExpr = "-(embedding <#> $1::vector)"
	default:
		p.metric = "cosine"
		p.vectorOp = "<=>"
		p.scoreExpr = "1 - (embedding <=> $1::vector)"
	}
	if err := p.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) bootstrap(ctx context.Context) error {
	_, _ = p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	_, _ = p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`)
	vecType := fmt.Sprintf("vector(%d)", p.dimension)
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS entities (
  id TEXT PRIMARY KEY,
  domain TEXT NOT NULL,
  area_id TEXT,
  area_name TEXT,
  device_id TEXT,
  device_name TEXT,
  display_name TEXT,
  technical_class TEXT,
  state_value TEXT,
  state_unit TEXT,
  last_updated TIMESTAMPTZ,
  display_text TEXT NOT NULL DEFAULT '',
  system_text TEXT NOT NULL DEFAULT '',
  embedding %s,
  input_hash TEXT,
  attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
  display_ts tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(display_text, ''))) STORED
);
CREATE INDEX IF NOT EXISTS entities_display_ts_idx ON entities USING GIN (display_ts);

CREATE TABLE IF NOT EXISTS clusters (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  scope_label TEXT,
  tags TEXT[] NOT NULL DEFAULT '{}',
  description TEXT,
  embedding %s
);

CREATE TABLE IF NOT EXISTS cluster_entity (
  cluster_id TEXT NOT NULL REFERENCES clusters(id) ON DELETE CASCADE,
  entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
  weight DOUBLE PRECISION NOT NULL DEFAULT 1.0,
  PRIMARY KEY (cluster_id, entity_id)
);
`, vecType, vecType))
	return err
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() { p.pool.Close() }

func toVectorLiteral(v ragtypes.EmbeddingVector) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}

func (p *Postgres) VectorSearch(ctx context.Context, vector ragtypes.EmbeddingVector, k int, filter Filter) ([]VectorHit, error) {
	if k <= 0 {
		k = 10
	}
	vecLit := toVectorLiteral(vector)
	where, args := filterClause(filter, []any{vecLit, k})
	query := fmt.Sprintf(`SELECT id, %s AS score FROM entities %s ORDER BY embedding %s $1::vector LIMIT $2`, p.scoreExpr, where, p.vectorOp)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	out := make([]VectorHit, 0, k)
	for rows.Next() {
		var h VectorHit
		if err := rows.Scan(&h.EntityID, &h.Score); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (p *Postgres) HybridSearch(ctx context.Context, vector ragtypes.EmbeddingVector, text string, k int, filter Filter) ([]HybridHit, error) {
	if k <= 0 {
		k = 10
	}
	q := strings.TrimSpace(text)
	vecLit := toVectorLiteral(vector)
	args := []any{vecLit, q, k}
	where := `WHERE (display_ts @@ plainto_tsquery('simple', $2) OR $2 = '')`
	if len(filter) > 0 {
		extra, a2 := filterArgsOnly(filter, len(args)+1)
		where += " AND " + extra
		args = append(args, a2...)
	}
	query := fmt.Sprintf(`
SELECT id,
       GREATEST(%s, 0) AS vscore,
       COALESCE(ts_rank(display_ts, plainto_tsquery('simple', $2)), 0) AS tscore
FROM entities
%s
ORDER BY (0.7 * GREATEST(%s,0) + 0.3 * COALESCE(ts_rank(display_ts, plainto_tsquery('simple', $2)), 0)) DESC
LIMIT $3`, p.scoreExpr, where, p.scoreExpr)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	out := make([]HybridHit, 0, k)
	for rows.Next() {
		var h HybridHit
		if err := rows.Scan(&h.EntityID, &h.VectorScore, &h.TextScore); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (p *Postgres) GetEntities(ctx context.Context, ids []string) ([]ragtypes.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, domain, area_id, area_name, device_id, device_name, display_name, technical_class,
       state_value, state_unit, last_updated, display_text, system_text, input_hash
FROM entities WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	out := make([]ragtypes.Entity, 0, len(ids))
	for rows.Next() {
		var e ragtypes.Entity
		var lastUpdated *time.Time
		if err := rows.Scan(&e.ID, &e.Domain, &e.AreaID, &e.AreaName, &e.DeviceID, &e.DeviceName,
			&e.DisplayName, &e.TechnicalClass, &e.StateValue, &e.StateUnit, &lastUpdated,
			&e.DisplayText, &e.SystemText, &e.InputHash); err != nil {
			return nil, err
		}
		if lastUpdated != nil {
			e.LastUpdated = *lastUpdated
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) GetClusterEmbeddings(ctx context.Context) ([]ClusterEmbedding, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, type, scope_label, tags, description, embedding FROM clusters`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	out := make([]ClusterEmbedding, 0)
	for rows.Next() {
		var c ragtypes.Cluster
		var clusterType string
		var embStr *string
		if err := rows.Scan(&c.ID, &c.Name, &clusterType, &c.ScopeLabel, &c.Tags, &c.Description, &embStr); err != nil {
			return nil, err
		}
		c.Type = ragtypes.ClusterType(clusterType)
		if embStr != nil {
			c.Embedding = parseVectorLiteral(*embStr)
		}
		out = append(out, ClusterEmbedding{Cluster: c, Embedding: c.Embedding})
	}
	return out, rows.Err()
}

func (p *Postgres) GetClusterMembers(ctx context.Context, clusterID string) ([]ClusterMember, error) {
	rows, err := p.pool.Query(ctx, `SELECT entity_id, weight FROM cluster_entity WHERE cluster_id = $1`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	out := make([]ClusterMember, 0)
	for rows.Next() {
		var m ClusterMember
		if err := rows.Scan(&m.EntityID, &m.Weight); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// parseVectorLiteral parses pgvector's "[1,2,3]" text output back into an
// EmbeddingVector; used when reading cluster embeddings back for ClusterSearch.
func parseVectorLiteral(s string) ragtypes.EmbeddingVector {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make(ragtypes.EmbeddingVector, 0, len(parts))
	for _, p := range parts {
		var f float64
		_, _ = fmt.Sscanf(strings.TrimSpace(p), "%g", &f)
		out = append(out, float32(f))
	}
	return out
}

func filterClause(f Filter, baseArgs []any) (string, []any) {
	if len(f) == 0 {
		return "", baseArgs
	}
	extra, args := filterArgsOnly(f, len(baseArgs)+1)
	return "WHERE " + extra, append(baseArgs, args...)
}

// filterArgsOnly builds a "col = $n AND col2 = $n+1" clause for the known
// filter keys (area, domain), starting parameter numbering at startIdx.
func filterArgsOnly(f Filter, startIdx int) (string, []any) {
	clauses := make([]string, 0, len(f))
	args := make([]any, 0, len(f))
	idx := startIdx
	for _, key := range []string{"area", "domain"} {
		v, ok := f[key]
		if !ok {
			continue
		}
		col := "area_id"
		if key == "domain" {
			col = "domain"
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, v)
		idx++
	}
	if len(clauses) == 0 {
		return "TRUE", nil
	}
	return strings.Join(clauses, " AND "), args
}
