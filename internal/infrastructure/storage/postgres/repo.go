package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/jackc/pgx/v5/stdlib"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

// Repo is a write-behind archive of the trading history. The engine reads
// only from sqlite; postgres keeps a durable copy for external analysis.
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS trades (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  strategy TEXT NOT NULL,
  market_id TEXT NOT NULL,
  token_id TEXT NOT NULL,
  side TEXT NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  size DOUBLE PRECISION NOT NULL,
  reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts_ms);

CREATE TABLE IF NOT EXISTS signals (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  strategy TEXT NOT NULL,
  status TEXT NOT NULL,
  note TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts_ms);

CREATE TABLE IF NOT EXISTS snapshots (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  balance DOUBLE PRECISION NOT NULL,
  total_value DOUBLE PRECISION NOT NULL,
  positions TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts_ms);
`)
	return err
}

func (r *Repo) RecordTrade(ctx context.Context, t model.Trade) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trades(ts_ms, strategy, market_id, token_id, side, price, size, reason)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.Timestamp.UnixMilli(), t.Strategy, t.MarketID, t.TokenID, string(t.Side), t.Price, t.Size, t.Reason)
	return err
}

func (r *Repo) RecordSignal(ctx context.Context, rec model.SignalRecord) error {
	payload, err := json.Marshal(rec.Signal)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO signals(ts_ms, strategy, status, note, payload)
		VALUES($1, $2, $3, $4, $5)
	`, rec.TsMs, rec.Signal.Strategy, rec.Status, rec.Note, string(payload))
	return err
}

func (r *Repo) InsertSnapshot(ctx context.Context, snap model.PortfolioSnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots(ts_ms, balance, total_value, positions)
		VALUES($1, $2, $3, $4)
	`, snap.TsMs, snap.Balance, snap.TotalValue, snap.PositionsJSON)
	return err
}

var _ port.Archiver = (*Repo)(nil)
