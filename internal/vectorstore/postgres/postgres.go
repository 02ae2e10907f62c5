// Package postgres stores the vector index in a pgvector table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/campus-rag-chatbot/internal/document"
	"github.com/JakeFAU/campus-rag-chatbot/internal/vectorstore"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Provider creates and opens the index table.
type Provider struct {
	pool  pool
	table string
}

var _ vectorstore.Provider = (*Provider)(nil)

// NewProvider connects to Postgres using cfg.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("vectorstore.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	provider, err := NewProviderWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return provider, nil
}

// NewProviderWithPool constructs a Provider from an existing pool (primarily for testing).
func NewProviderWithPool(p pool, table string) (*Provider, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "chunks"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Provider{pool: p, table: table}, nil
}

// Close releases the pool.
func (p *Provider) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

func (p *Provider) infoTable() string { return p.table + "_info" }

// Create drops and recreates the chunk and info tables in one transaction.
func (p *Provider) Create(ctx context.Context, info vectorstore.Info) (vectorstore.Index, error) {
	if info.Dimension <= 0 {
		return nil, fmt.Errorf("create index: dimension must be positive, got %d", info.Dimension)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create index: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf("DROP TABLE IF EXISTS %s, %s", p.table, p.infoTable()),
		fmt.Sprintf(`CREATE TABLE %s (
	id BIGSERIAL PRIMARY KEY,
	content TEXT NOT NULL,
	source TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	page INTEGER NOT NULL DEFAULT 0,
	start_offset INTEGER NOT NULL,
	end_offset INTEGER NOT NULL,
	hash TEXT NOT NULL,
	embedding vector(%d) NOT NULL
)`, p.table, info.Dimension),
		fmt.Sprintf("CREATE TABLE %s (embedder TEXT NOT NULL, dimension INTEGER NOT NULL)", p.infoTable()),
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (embedder, dimension) VALUES ($1, $2)", p.infoTable()),
		info.Embedder, info.Dimension,
	); err != nil {
		return nil, fmt.Errorf("record index info: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create index: %w", err)
	}
	return &Index{pool: p.pool, table: p.table, info: info}, nil
}

// Open reads the index info, returning vectorstore.ErrNotFound when the tables are absent.
func (p *Provider) Open(ctx context.Context) (vectorstore.Index, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", p.infoTable()).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check index table: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("open table %s: %w", p.table, vectorstore.ErrNotFound)
	}
	var info vectorstore.Info
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT embedder, dimension FROM %s LIMIT 1", p.infoTable()),
	).Scan(&info.Embedder, &info.Dimension)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("open table %s: %w", p.table, vectorstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read index info: %w", err)
	}
	return &Index{pool: p.pool, table: p.table, info: info}, nil
}

// Index is a pgvector-backed vectorstore.Index. Writes are durable once Add returns.
type Index struct {
	pool  pool
	table string
	info  vectorstore.Info
}

var _ vectorstore.Index = (*Index)(nil)

// Info returns the build metadata.
func (x *Index) Info() vectorstore.Info { return x.info }

// Add inserts entries in a single transaction.
func (x *Index) Add(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := vectorstore.CheckVectors(entries, x.info.Dimension); err != nil {
		return err
	}
	tx, err := x.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin add: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`INSERT INTO %s (content, source, title, page, start_offset, end_offset, hash, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector)`, x.table)
	for _, e := range entries {
		c := e.Chunk
		if _, err := tx.Exec(ctx, query,
			c.Content,
			c.Metadata.Source,
			c.Metadata.Title,
			c.Metadata.Page,
			c.Start,
			c.End,
			c.Hash,
			FormatVector(e.Vector),
		); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit add: %w", err)
	}
	return nil
}

// Search orders by cosine distance; the score is 1 - distance.
func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.Result, error) {
	if len(vector) != x.info.Dimension {
		return nil, fmt.Errorf("%w: query has %d, index expects %d", vectorstore.ErrDimensionMismatch, len(vector), x.info.Dimension)
	}
	if k <= 0 {
		return nil, nil
	}
	rows, err := x.pool.Query(ctx, fmt.Sprintf(`SELECT content, source, title, page, start_offset, end_offset, hash,
	1 - (embedding <=> $1::vector) AS score
FROM %s
ORDER BY embedding <=> $1::vector, id
LIMIT $2`, x.table), FormatVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	defer rows.Close()

	var results []vectorstore.Result
	for rows.Next() {
		var c document.Chunk
		var score float64
		if err := rows.Scan(
			&c.Content, &c.Metadata.Source, &c.Metadata.Title, &c.Metadata.Page,
			&c.Start, &c.End, &c.Hash, &score,
		); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, vectorstore.Result{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows: %w", err)
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", x.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Hashes returns the distinct chunk fingerprints.
func (x *Index) Hashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := x.pool.Query(ctx, fmt.Sprintf("SELECT DISTINCT hash FROM %s", x.table))
	if err != nil {
		return nil, fmt.Errorf("list hashes: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		out[h] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hash rows: %w", err)
	}
	return out, nil
}

// Save is a no-op; Add commits its own transaction.
func (x *Index) Save(context.Context) error { return nil }

// FormatVector renders v as a pgvector text literal.
func FormatVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
