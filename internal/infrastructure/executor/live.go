package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

// Live submits real orders to the CLOB REST API. Without credentials it is
// constructed in an unavailable state: every call returns
// port.ErrUnavailable instead of silently paper-trading.
type Live struct {
	baseURL string
	apiKey  string
	secret  string
	client  *http.Client
}

var _ port.Executor = (*Live)(nil)

// NewLive reads POLYMARKET_API_KEY and POLYMARKET_API_SECRET from the
// environment. Missing credentials are not an error at construction time;
// the absence surfaces as ErrUnavailable on use.
func NewLive(baseURL string, timeout time.Duration) *Live {
	return &Live{
		baseURL: baseURL,
		apiKey:  os.Getenv("POLYMARKET_API_KEY"),
		secret:  os.Getenv("POLYMARKET_API_SECRET"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Available reports whether credentials are configured.
func (l *Live) Available() bool { return l.apiKey != "" && l.secret != "" }

func (l *Live) PlaceOrder(ctx context.Context, sig model.Signal) (*model.Fill, error) {
	if !l.Available() {
		return nil, fmt.Errorf("live executor: %w", port.ErrUnavailable)
	}

	body, err := json.Marshal(map[string]any{
		"order_id": uuid.NewString(),
		"token_id": sig.TokenID,
		"side":     string(sig.Side),
		"price":    sig.TargetPrice,
		"size":     sig.Size,
		"type":     "market",
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Price  float64 `json:"price"`
		Size   float64 `json:"size"`
		Shares float64 `json:"shares"`
	}
	if err := l.do(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return nil, err
	}
	return &model.Fill{
		ID:       uuid.NewString(),
		MarketID: sig.MarketID,
		TokenID:  sig.TokenID,
		Side:     sig.Side,
		Price:    resp.Price,
		Size:     resp.Size,
		Shares:   resp.Shares,
	}, nil
}

func (l *Live) Portfolio(ctx context.Context) (model.Portfolio, error) {
	if !l.Available() {
		return model.Portfolio{}, fmt.Errorf("live executor: %w", port.ErrUnavailable)
	}

	var resp struct {
		Balance   float64                   `json:"balance"`
		Positions map[string]model.Position `json:"positions"`
	}
	if err := l.do(ctx, http.MethodGet, "/positions", nil, &resp); err != nil {
		return model.Portfolio{}, err
	}
	if resp.Positions == nil {
		resp.Positions = map[string]model.Position{}
	}
	return model.Portfolio{Balance: resp.Balance, Positions: resp.Positions}, nil
}

func (l *Live) OpenOrderCount(ctx context.Context) (int, error) {
	if !l.Available() {
		return 0, fmt.Errorf("live executor: %w", port.ErrUnavailable)
	}

	var resp []struct {
		ID string `json:"id"`
	}
	if err := l.do(ctx, http.MethodGet, "/orders", nil, &resp); err != nil {
		return 0, err
	}
	return len(resp), nil
}

func (l *Live) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY-API-KEY", l.apiKey)
	req.Header.Set("POLY-API-SECRET", l.secret)

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("clob %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
