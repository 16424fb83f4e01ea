package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

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
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  strategy TEXT NOT NULL,
  market_id TEXT NOT NULL,
  token_id TEXT NOT NULL,
  side TEXT NOT NULL,
  price REAL NOT NULL,
  size REAL NOT NULL,
  reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts_ms);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy);
CREATE INDEX IF NOT EXISTS idx_trades_token ON trades(token_id);

CREATE TABLE IF NOT EXISTS signals (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  strategy TEXT NOT NULL,
  status TEXT NOT NULL,
  note TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts_ms);
CREATE INDEX IF NOT EXISTS idx_signals_strategy ON signals(strategy);

CREATE TABLE IF NOT EXISTS snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  balance REAL NOT NULL,
  total_value REAL NOT NULL,
  positions TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts_ms);

CREATE TABLE IF NOT EXISTS conditional_orders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  token_id TEXT NOT NULL,
  market_id TEXT NOT NULL,
  order_type TEXT NOT NULL,
  status TEXT NOT NULL,
  trigger_price REAL NOT NULL,
  size REAL NOT NULL,
  high_watermark REAL NOT NULL DEFAULT 0,
  trail_percent REAL NOT NULL DEFAULT 0,
  parent_strategy TEXT NOT NULL DEFAULT '',
  reason TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  triggered_at INTEGER,
  triggered_price REAL
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON conditional_orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_token ON conditional_orders(token_id);

CREATE TABLE IF NOT EXISTS config_changes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  diff TEXT NOT NULL
);
`)
	return err
}

func (r *Repo) RecordTrade(ctx context.Context, t model.Trade) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trades(ts_ms, strategy, market_id, token_id, side, price, size, reason)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
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
		VALUES(?, ?, ?, ?, ?)
	`, rec.TsMs, rec.Signal.Strategy, rec.Status, rec.Note, string(payload))
	return err
}

func (r *Repo) InsertSnapshot(ctx context.Context, snap model.PortfolioSnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots(ts_ms, balance, total_value, positions)
		VALUES(?, ?, ?, ?)
	`, snap.TsMs, snap.Balance, snap.TotalValue, snap.PositionsJSON)
	return err
}

func (r *Repo) Trades(ctx context.Context, strategy string, limit int) ([]model.Trade, error) {
	query := `SELECT id, ts_ms, strategy, market_id, token_id, side, price, size, reason FROM trades`
	args := []interface{}{}
	if strategy != "" {
		query += ` WHERE strategy=?`
		args = append(args, strategy)
	}
	query += ` ORDER BY ts_ms ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (r *Repo) TradesSince(ctx context.Context, since time.Time) ([]model.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ts_ms, strategy, market_id, token_id, side, price, size, reason
		FROM trades WHERE ts_ms >= ? ORDER BY ts_ms ASC
	`, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]model.Trade, error) {
	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var ts int64
		var side string
		if err := rows.Scan(&t.ID, &ts, &t.Strategy, &t.MarketID, &t.TokenID, &side, &t.Price, &t.Size, &t.Reason); err != nil {
			return nil, err
		}
		t.Timestamp = time.UnixMilli(ts)
		t.Side = model.Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) LatestSnapshot(ctx context.Context) (*model.PortfolioSnapshot, error) {
	var snap model.PortfolioSnapshot
	err := r.db.QueryRowContext(ctx, `
		SELECT ts_ms, balance, total_value, positions FROM snapshots ORDER BY ts_ms DESC LIMIT 1
	`).Scan(&snap.TsMs, &snap.Balance, &snap.TotalValue, &snap.PositionsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *Repo) Snapshots(ctx context.Context, limit int) ([]model.PortfolioSnapshot, error) {
	query := `SELECT ts_ms, balance, total_value, positions FROM snapshots ORDER BY ts_ms DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PortfolioSnapshot
	for rows.Next() {
		var s model.PortfolioSnapshot
		if err := rows.Scan(&s.TsMs, &s.Balance, &s.TotalValue, &s.PositionsJSON); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) Signals(ctx context.Context, strategy string, limit int) ([]model.SignalRecord, error) {
	query := `SELECT ts_ms, status, note, payload FROM signals`
	args := []interface{}{}
	if strategy != "" {
		query += ` WHERE strategy=?`
		args = append(args, strategy)
	}
	query += ` ORDER BY ts_ms DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SignalRecord
	for rows.Next() {
		var rec model.SignalRecord
		var payload string
		if err := rows.Scan(&rec.TsMs, &rec.Status, &rec.Note, &payload); err != nil {
			return nil, err
		}
		// Malformed payloads keep their log row, just with an empty signal.
		_ = json.Unmarshal([]byte(payload), &rec.Signal)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repo) CreateConditionalOrder(ctx context.Context, o *model.ConditionalOrder) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conditional_orders(
			token_id, market_id, order_type, status, trigger_price, size,
			high_watermark, trail_percent, parent_strategy, reason, created_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.TokenID, o.MarketID, string(o.Type), string(o.Status), o.TriggerPrice, o.Size,
		o.HighWatermark, o.TrailPercent, o.ParentStrategy, o.Reason, o.CreatedAt.UnixMilli())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	o.ID = id
	return id, nil
}

func (r *Repo) ActiveConditionalOrders(ctx context.Context) ([]model.ConditionalOrder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, token_id, market_id, order_type, status, trigger_price, size,
		       high_watermark, trail_percent, parent_strategy, reason, created_at
		FROM conditional_orders WHERE status=? ORDER BY id ASC
	`, string(model.OrderActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ConditionalOrder
	for rows.Next() {
		var o model.ConditionalOrder
		var typ, status string
		var created int64
		if err := rows.Scan(&o.ID, &o.TokenID, &o.MarketID, &typ, &status, &o.TriggerPrice, &o.Size,
			&o.HighWatermark, &o.TrailPercent, &o.ParentStrategy, &o.Reason, &created); err != nil {
			return nil, err
		}
		o.Type = model.OrderType(typ)
		o.Status = model.OrderStatus(status)
		o.CreatedAt = time.UnixMilli(created)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) MarkOrderTriggered(ctx context.Context, id int64, price float64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conditional_orders SET status=?, triggered_at=?, triggered_price=? WHERE id=? AND status=?
	`, string(model.OrderTriggered), at.UnixMilli(), price, id, string(model.OrderActive))
	return err
}

func (r *Repo) MarkOrderCancelled(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conditional_orders SET status=? WHERE id=? AND status=?
	`, string(model.OrderCancelled), id, string(model.OrderActive))
	return err
}

func (r *Repo) UpdateHighWatermark(ctx context.Context, id int64, watermark float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conditional_orders SET high_watermark=? WHERE id=?
	`, watermark, id)
	return err
}

func (r *Repo) RecordConfigChange(ctx context.Context, at time.Time, diff string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO config_changes(ts_ms, diff) VALUES(?, ?)`, at.UnixMilli(), diff)
	return err
}

var _ port.Repository = (*Repo)(nil)
