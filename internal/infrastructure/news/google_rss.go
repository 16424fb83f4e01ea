package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

const rssURL = "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en"

// GoogleRSS fetches headlines from the Google News RSS feed. No API key,
// no cost; the tradeoff is RSS's loose date formats, which are parsed
// best-effort.
type GoogleRSS struct {
	client *http.Client
}

var _ port.NewsProvider = (*GoogleRSS)(nil)

func NewGoogleRSS(timeout time.Duration) *GoogleRSS {
	return &GoogleRSS{client: &http.Client{Timeout: timeout}}
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

func (g *GoogleRSS) Search(ctx context.Context, query string, maxResults int) ([]model.NewsItem, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(rssURL, url.QueryEscape(query)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google news rss: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseFeed(body, maxResults)
}

func parseFeed(body []byte, maxResults int) ([]model.NewsItem, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse rss: %w", err)
	}

	items := make([]model.NewsItem, 0, maxResults)
	for _, it := range feed.Channel.Items {
		if len(items) >= maxResults {
			break
		}
		items = append(items, model.NewsItem{
			Title:     it.Title,
			URL:       it.Link,
			Published: parsePubDate(it.PubDate),
		})
	}
	return items, nil
}

// parsePubDate tries the date layouts RSS feeds actually emit. A zero time
// means the date was absent or unrecognized.
func parsePubDate(s string) time.Time {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Disabled is the NewsProvider used when news is switched off in config.
// Callers distinguish "off" from "empty result" through ErrUnavailable.
type Disabled struct{}

var _ port.NewsProvider = Disabled{}

func (Disabled) Search(context.Context, string, int) ([]model.NewsItem, error) {
	return nil, port.ErrUnavailable
}
