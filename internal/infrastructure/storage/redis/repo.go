package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

// Repo mirrors the hot state into Redis for dashboards and downstream
// consumers: last trade per token, a signal stream plus pubsub channel,
// and the latest portfolio snapshot.
type Repo struct {
	rdb          *redis.Client
	prefix       string
	ttl          time.Duration
	keyTrades    string // prefix + ":trades:last"
	keySnapshot  string // prefix + ":snapshot"
	signalStream string
	signalChan   string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, signalStream, signalChan string) *Repo {
	if strings.TrimSpace(signalStream) == "" {
		signalStream = prefix + ":signals"
	}
	if strings.TrimSpace(signalChan) == "" {
		signalChan = prefix + ":signals:pub"
	}
	return &Repo{
		rdb:          rdb,
		prefix:       prefix,
		ttl:          ttl,
		keyTrades:    prefix + ":trades:last",
		keySnapshot:  prefix + ":snapshot",
		signalStream: signalStream,
		signalChan:   signalChan,
	}
}

func (r *Repo) RecordTrade(ctx context.Context, t model.Trade) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}

	// Hash: field = token id -> last trade json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyTrades, t.TokenID, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyTrades, r.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repo) RecordSignal(ctx context.Context, rec model.SignalRecord) error {
	payload, err := json.Marshal(rec.Signal)
	if err != nil {
		return err
	}

	// 1) Stream: XADD <stream> * ts strategy status note payload
	_, err = r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.signalStream,
		Values: map[string]any{
			"ts_ms":    rec.TsMs,
			"strategy": rec.Signal.Strategy,
			"status":   rec.Status,
			"note":     rec.Note,
			"payload":  string(payload),
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	msg, err := json.Marshal(map[string]any{
		"ts_ms":   rec.TsMs,
		"status":  rec.Status,
		"note":    rec.Note,
		"payload": json.RawMessage(payload),
	})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.signalChan, string(msg)).Err()
}

func (r *Repo) InsertSnapshot(ctx context.Context, snap model.PortfolioSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.keySnapshot, string(b), r.ttl).Err()
}

var _ port.Archiver = (*Repo)(nil)
