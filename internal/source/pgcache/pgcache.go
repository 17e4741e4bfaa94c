// Package pgcache persists rhyme source responses in PostgreSQL so that a
// restarted service does not have to re-ask the remote source for lines it
// has already seen.
//
// The cache is a single table keyed by (text, relation). Rows older than the
// configured TTL are treated as misses and removed by [Cache.Prune].
package pgcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
)

// Schema is the DDL for the rhyme_source_cache table. [Cache.Migrate] applies
// it; it is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS rhyme_source_cache (
    text        TEXT         NOT NULL,
    relation    TEXT         NOT NULL,
    candidates  JSONB        NOT NULL DEFAULT '[]',
    fetched_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (text, relation)
);
CREATE INDEX IF NOT EXISTS idx_rhyme_source_cache_fetched_at
    ON rhyme_source_cache (fetched_at);
`

// DB is the subset of *pgxpool.Pool used by [Cache].
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Cache is a PostgreSQL-backed response cache. It is safe for concurrent use.
type Cache struct {
	db   DB
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// New wraps an existing connection or pool. A ttl of zero disables expiry.
func New(db DB, ttl time.Duration) *Cache {
	return &Cache{db: db, ttl: ttl, now: time.Now}
}

// Open connects to dsn, verifies the connection and applies [Schema].
// Call [Cache.Close] when done.
func Open(ctx context.Context, dsn string, ttl time.Duration) (*Cache, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgcache: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgcache: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgcache: ping: %w", err)
	}

	c := New(pool, ttl)
	c.pool = pool
	if err := c.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the pool opened by [Open]. It is a no-op for caches built
// with [New].
func (c *Cache) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// Ping checks connectivity. Caches built with [New] always report healthy.
func (c *Cache) Ping(ctx context.Context) error {
	if c.pool == nil {
		return nil
	}
	return c.pool.Ping(ctx)
}

// Migrate executes [Schema].
func (c *Cache) Migrate(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgcache: migrate: %w", err)
	}
	return nil
}

// Get returns the stored candidates for (text, rel). The boolean is false on
// a miss or when the row is older than the TTL.
func (c *Cache) Get(ctx context.Context, text string, rel rhymesource.Relation) ([]rhymesource.Candidate, bool, error) {
	const query = `
		SELECT candidates, fetched_at
		FROM rhyme_source_cache
		WHERE text = $1 AND relation = $2`

	var (
		raw       []byte
		fetchedAt time.Time
	)
	err := c.db.QueryRow(ctx, query, text, rel.String()).Scan(&raw, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgcache: get %q/%s: %w", text, rel, err)
	}
	if c.ttl > 0 && c.now().Sub(fetchedAt) > c.ttl {
		return nil, false, nil
	}

	var cands []rhymesource.Candidate
	if err := json.Unmarshal(raw, &cands); err != nil {
		return nil, false, fmt.Errorf("pgcache: decode %q/%s: %w", text, rel, err)
	}
	return cands, true, nil
}

// Put stores cands for (text, rel), replacing any previous row.
func (c *Cache) Put(ctx context.Context, text string, rel rhymesource.Relation, cands []rhymesource.Candidate) error {
	if cands == nil {
		cands = []rhymesource.Candidate{}
	}
	raw, err := json.Marshal(cands)
	if err != nil {
		return fmt.Errorf("pgcache: encode %q/%s: %w", text, rel, err)
	}

	const query = `
		INSERT INTO rhyme_source_cache (text, relation, candidates, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (text, relation)
		DO UPDATE SET candidates = EXCLUDED.candidates, fetched_at = EXCLUDED.fetched_at`

	if _, err := c.db.Exec(ctx, query, text, rel.String(), raw, c.now().UTC()); err != nil {
		return fmt.Errorf("pgcache: put %q/%s: %w", text, rel, err)
	}
	return nil
}

// Prune deletes rows older than the TTL and returns how many were removed.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	tag, err := c.db.Exec(ctx,
		`DELETE FROM rhyme_source_cache WHERE fetched_at < $1`,
		c.now().Add(-c.ttl).UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("pgcache: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
