package clobws

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

// Feed streams best bid/ask quotes from the CLOB market websocket channel.
// The connection is owned by a background goroutine that reconnects with
// exponential backoff until the context is cancelled.
type Feed struct {
	wsURL string
}

var _ port.PriceFeed = (*Feed)(nil)

func NewFeed(wsURL string) *Feed {
	return &Feed{wsURL: wsURL}
}

func (f *Feed) Name() string { return "clob" }

func (f *Feed) Subscribe(ctx context.Context, tokenIDs []string) (<-chan model.PriceQuote, error) {
	if f.wsURL == "" {
		return nil, errors.New("websocket url empty")
	}
	if len(tokenIDs) == 0 {
		return nil, errors.New("no token ids to subscribe")
	}

	out := make(chan model.PriceQuote, 1024)
	go f.run(ctx, tokenIDs, out)
	return out, nil
}

// subscribeMsg is the market-channel subscription frame.
type subscribeMsg struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

// bookEvent covers the two event shapes the market channel pushes: full
// "book" snapshots and incremental "price_change" updates carrying the
// current best prices.
type bookEvent struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
	BestBid   string      `json:"best_bid"`
	BestAsk   string      `json:"best_ask"`
}

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func (f *Feed) run(ctx context.Context, tokenIDs []string, out chan<- model.PriceQuote) {
	defer close(out)

	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 10 * time.Second, Jitter: true}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(dctx, f.wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws dial failed")
			sleep(ctx, b.Duration())
			continue
		}

		if err := conn.WriteJSON(subscribeMsg{AssetIDs: tokenIDs, Type: "market"}); err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws subscribe failed")
			_ = conn.Close()
			sleep(ctx, b.Duration())
			continue
		}

		b.Reset()
		log.Info().Str("feed", f.Name()).Int("tokens", len(tokenIDs)).Msg("ws connected")

		err = readLoop(ctx, conn, func(raw []byte) {
			for _, ev := range decodeEvents(raw) {
				if quote, ok := toQuote(ev); ok {
					select {
					case out <- quote:
					default:
						log.Warn().Str("feed", f.Name()).Msg("quote channel full, dropping update")
					}
				}
			}
		})

		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("feed", f.Name()).Err(err).Msg("ws disconnected, reconnecting")
		sleep(ctx, b.Duration())
	}
}

// decodeEvents tolerates both a single event object and a batched array.
func decodeEvents(raw []byte) []bookEvent {
	var events []bookEvent
	if err := json.Unmarshal(raw, &events); err == nil {
		return events
	}
	var single bookEvent
	if err := json.Unmarshal(raw, &single); err == nil && single.EventType != "" {
		return []bookEvent{single}
	}
	return nil
}

func toQuote(ev bookEvent) (model.PriceQuote, bool) {
	if ev.AssetID == "" {
		return model.PriceQuote{}, false
	}

	var bid, ask float64
	switch ev.EventType {
	case "book":
		for _, l := range ev.Bids {
			if p := parsePrice(l.Price); p > bid {
				bid = p
			}
		}
		for _, l := range ev.Asks {
			if p := parsePrice(l.Price); p > 0 && (ask == 0 || p < ask) {
				ask = p
			}
		}
	case "price_change":
		bid = parsePrice(ev.BestBid)
		ask = parsePrice(ev.BestAsk)
	default:
		return model.PriceQuote{}, false
	}

	if bid == 0 && ask == 0 {
		return model.PriceQuote{}, false
	}
	return model.PriceQuote{
		TokenID: ev.AssetID,
		Bid:     bid,
		Ask:     ask,
		TsMs:    time.Now().UnixMilli(),
	}, true
}

func parsePrice(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			onMsg(raw)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
