// Package postgres commits harvested records to a Postgres table.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-harvester/internal/clock/system"
	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// DefaultTable receives records when no table is configured.
const DefaultTable = "products"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for product rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ProductStore writes one row per record. Rows are keyed by the record
// fingerprint, so a chunk harvested twice does not duplicate rows.
type ProductStore struct {
	pool   execCloser
	table  string
	runID  string
	hasher harvest.Hasher
	clock  harvest.Clock
}

// Option customizes a ProductStore.
type Option func(*ProductStore)

// WithRunID tags every row with runID.
func WithRunID(runID string) Option {
	return func(s *ProductStore) { s.runID = runID }
}

// WithClock overrides the collected_at time source.
func WithClock(clock harvest.Clock) Option {
	return func(s *ProductStore) { s.clock = clock }
}

// NewProductStore connects a pool using cfg.
func NewProductStore(ctx context.Context, cfg Config, hasher harvest.Hasher, opts ...Option) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStore(pool, table, hasher, opts), nil
}

// NewProductStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProductStoreWithPool(pool execCloser, table string, hasher harvest.Hasher, opts ...Option) (*ProductStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return newStore(pool, table, hasher, opts), nil
}

func newStore(pool execCloser, table string, hasher harvest.Hasher, opts []Option) *ProductStore {
	s := &ProductStore{pool: pool, table: table, hasher: hasher, clock: system.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the product table when it does not exist.
func (s *ProductStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	fingerprint TEXT NOT NULL UNIQUE,
	run_id TEXT,
	category TEXT,
	name TEXT,
	price TEXT,
	description TEXT,
	fields JSONB NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Commit inserts record. A record already stored is ignored.
func (s *ProductStore) Commit(ctx context.Context, record harvest.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("product store is not configured")
	}
	if record == nil {
		return fmt.Errorf("record is required")
	}
	if s.hasher == nil {
		return fmt.Errorf("hasher is required")
	}
	fingerprint, err := record.Fingerprint(s.hasher)
	if err != nil {
		return err
	}
	fields, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	fingerprint,
	run_id,
	category,
	name,
	price,
	description,
	fields,
	collected_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (fingerprint) DO NOTHING`, s.table)

	args := []any{
		fingerprint,
		s.runID,
		record.Category().String(),
		record.DisplayName(),
		record.Price(),
		record.String(harvest.FieldDescription),
		fields,
		s.clock.Now().UTC(),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}
