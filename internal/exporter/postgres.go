package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yehzhang/dmscrape/internal/types"
)

// Postgres writes one row per CID into a `comment_flows` table, with the
// joined comment stream stored as a JSONB column — queryable without a
// fixed per-comment schema, matching how loosely the wire format itself is
// typed.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS comment_flows (
	cid BIGINT PRIMARY KEY,
	has_history BOOLEAN NOT NULL,
	max_limit INTEGER NOT NULL,
	roll_dates BIGINT[],
	comments JSONB NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgres connects to dsn and ensures the destination table exists.
func NewPostgres(ctx context.Context, dsn string, log *slog.Logger) (*Postgres, error) {
	if log == nil {
		log = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("exporter: postgres connect: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("exporter: postgres create table: %w", err)
	}
	return &Postgres{pool: pool, log: log.With("component", "postgres_exporter")}, nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Connect(ctx context.Context) error { return nil }

func (p *Postgres) Disconnect(ctx context.Context) error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Dump(ctx context.Context, cid int64, flow *types.CommentFlow) error {
	payload, err := json.Marshal(toMongoComments(flow.Document()))
	if err != nil {
		return fmt.Errorf("exporter: marshal comments for cid %d: %w", cid, err)
	}

	var rollDates []int64
	if flow.HasHistory() {
		rollDates = []int64(flow.RollDates)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO comment_flows (cid, has_history, max_limit, roll_dates, comments)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cid) DO UPDATE SET
			has_history = EXCLUDED.has_history,
			max_limit = EXCLUDED.max_limit,
			roll_dates = EXCLUDED.roll_dates,
			comments = EXCLUDED.comments,
			scraped_at = now()
	`, cid, flow.HasHistory(), flow.MaxLimit, rollDates, payload)
	if err != nil {
		return fmt.Errorf("exporter: postgres upsert for cid %d: %w", cid, err)
	}
	return nil
}
