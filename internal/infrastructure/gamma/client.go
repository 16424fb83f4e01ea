package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

const maxAttempts = 3

// Client serves market data from the Gamma REST API (market listings) and
// the CLOB REST API (order books, price history). Raw responses are cached
// with a TTL so a single tick does not hammer the same endpoint.
type Client struct {
	gammaURL string
	clobURL  string
	client   *http.Client
	cache    *ttlCache
}

var _ port.DataProvider = (*Client)(nil)

func NewClient(gammaURL, clobURL string, cacheTTL, timeout time.Duration) *Client {
	return &Client{
		gammaURL: gammaURL,
		clobURL:  clobURL,
		client:   &http.Client{Timeout: timeout},
		cache:    newTTLCache(cacheTTL),
	}
}

// GetActiveMarkets lists open markets ordered by 24h volume.
func (c *Client) GetActiveMarkets(ctx context.Context, limit int) ([]model.Market, error) {
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")

	raw, err := c.fetch(ctx, fmt.Sprintf("markets:%d", limit), c.gammaURL+"/markets?"+q.Encode())
	if err != nil {
		return nil, err
	}

	js, err := simplejson.NewJson(raw)
	if err != nil {
		return nil, fmt.Errorf("parse markets response: %w", err)
	}
	arr, err := js.Array()
	if err != nil {
		return nil, fmt.Errorf("markets response is not an array: %w", err)
	}

	markets := make([]model.Market, 0, len(arr))
	for i := range arr {
		m, err := parseMarket(js.GetIndex(i))
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("skipping unparseable market")
			continue
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// GetOrderbook fetches the resting book for one CLOB token.
func (c *Client) GetOrderbook(ctx context.Context, tokenID string) (model.OrderBook, error) {
	raw, err := c.fetch(ctx, "book:"+tokenID, c.clobURL+"/book?token_id="+url.QueryEscape(tokenID))
	if err != nil {
		return model.OrderBook{}, err
	}

	js, err := simplejson.NewJson(raw)
	if err != nil {
		return model.OrderBook{}, fmt.Errorf("parse book response: %w", err)
	}
	return model.OrderBook{
		Bids: parseLevels(js.Get("bids")),
		Asks: parseLevels(js.Get("asks")),
	}, nil
}

// GetPrice derives the current bid/ask quote from the order book.
func (c *Client) GetPrice(ctx context.Context, tokenID string) (model.PriceQuote, error) {
	book, err := c.GetOrderbook(ctx, tokenID)
	if err != nil {
		return model.PriceQuote{}, err
	}
	return model.PriceQuote{
		TokenID: tokenID,
		Bid:     book.BestBid(),
		Ask:     book.BestAsk(),
		TsMs:    time.Now().UnixMilli(),
	}, nil
}

// GetPriceHistory returns timestamped prices for a token. Fidelity is the
// resolution in minutes.
func (c *Client) GetPriceHistory(ctx context.Context, tokenID, interval string, fidelity int) ([]model.PricePoint, error) {
	if interval == "" {
		interval = "1d"
	}
	if fidelity <= 0 {
		fidelity = 60
	}
	q := url.Values{}
	q.Set("market", tokenID)
	q.Set("interval", interval)
	q.Set("fidelity", strconv.Itoa(fidelity))

	key := fmt.Sprintf("history:%s:%s:%d", tokenID, interval, fidelity)
	raw, err := c.fetch(ctx, key, c.clobURL+"/prices-history?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp struct {
		History []struct {
			T int64   `json:"t"`
			P float64 `json:"p"`
		} `json:"history"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse price history: %w", err)
	}
	points := make([]model.PricePoint, 0, len(resp.History))
	for _, h := range resp.History {
		points = append(points, model.PricePoint{Timestamp: time.Unix(h.T, 0).UTC(), Price: h.P})
	}
	return points, nil
}

// fetch returns the cached body for key, or GETs the URL with retries and
// caches the result.
func (c *Client) fetch(ctx context.Context, key, rawURL string) ([]byte, error) {
	if body, ok := c.cache.get(key); ok {
		return body, nil
	}

	b := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 2 * time.Second, Jitter: true}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, err := c.get(ctx, rawURL)
		if err == nil {
			c.cache.set(key, body)
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < maxAttempts {
			delay := b.Duration()
			log.Debug().Err(err).Str("url", rawURL).Dur("retry_in", delay).Msg("request failed, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("get %s: %w", rawURL, lastErr)
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return io.ReadAll(resp.Body)
}

// parseMarket reads one Gamma market object. The API returns outcomes,
// outcomePrices and clobTokenIds as JSON-encoded strings inside the JSON
// document; both the stringified and plain-array forms are accepted.
func parseMarket(js *simplejson.Json) (model.Market, error) {
	id, err := js.Get("id").String()
	if err != nil || id == "" {
		return model.Market{}, fmt.Errorf("market missing id")
	}

	outcomes, err := stringSlice(js.Get("outcomes"))
	if err != nil {
		return model.Market{}, fmt.Errorf("market %s: outcomes: %w", id, err)
	}
	tokenIDs, err := stringSlice(js.Get("clobTokenIds"))
	if err != nil {
		return model.Market{}, fmt.Errorf("market %s: clobTokenIds: %w", id, err)
	}
	prices, err := floatSlice(js.Get("outcomePrices"))
	if err != nil {
		return model.Market{}, fmt.Errorf("market %s: outcomePrices: %w", id, err)
	}

	return model.Market{
		ID:            id,
		Question:      js.Get("question").MustString(),
		Outcomes:      outcomes,
		OutcomePrices: prices,
		ClobTokenIDs:  tokenIDs,
		Volume:        looseFloat(js.Get("volume")),
		Volume24h:     looseFloat(js.Get("volume24hr")),
		Liquidity:     looseFloat(js.Get("liquidity")),
		Active:        js.Get("active").MustBool(),
		Closed:        js.Get("closed").MustBool(),
		ConditionID:   js.Get("conditionId").MustString(),
		Slug:          js.Get("slug").MustString(),
		EndDate:       js.Get("endDate").MustString(),
	}, nil
}

func parseLevels(js *simplejson.Json) []model.OrderBookLevel {
	arr, err := js.Array()
	if err != nil {
		return nil
	}
	levels := make([]model.OrderBookLevel, 0, len(arr))
	for i := range arr {
		level := js.GetIndex(i)
		price := looseFloat(level.Get("price"))
		size := looseFloat(level.Get("size"))
		if price <= 0 {
			continue
		}
		levels = append(levels, model.OrderBookLevel{Price: price, Size: size})
	}
	return levels
}

// stringSlice accepts either a JSON array of strings or a string containing
// an encoded JSON array.
func stringSlice(js *simplejson.Json) ([]string, error) {
	if s, err := js.String(); err == nil {
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return js.StringArray()
}

// floatSlice is stringSlice for numbers; element values may themselves be
// numeric strings.
func floatSlice(js *simplejson.Json) ([]float64, error) {
	raw, err := stringSlice(js)
	if err == nil {
		out := make([]float64, 0, len(raw))
		for _, s := range raw {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	}

	arr, err := js.Array()
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(arr))
	for i := range arr {
		out = append(out, looseFloat(js.GetIndex(i)))
	}
	return out, nil
}

// looseFloat reads a number that may arrive as a float, an int or a string.
func looseFloat(js *simplejson.Json) float64 {
	if f, err := js.Float64(); err == nil {
		return f
	}
	if s, err := js.String(); err == nil {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	return 0
}
