package news

import (
	"context"
	"errors"
	"testing"
	"time"

	"polyagent/internal/application/port"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>"election" - Google News</title>
    <item>
      <title>Polls tighten ahead of vote</title>
      <link>https://example.org/a</link>
      <pubDate>Mon, 17 Aug 2026 09:30:00 GMT</pubDate>
    </item>
    <item>
      <title>Turnout projected at record high</title>
      <link>https://example.org/b</link>
      <pubDate>not a date</pubDate>
    </item>
    <item>
      <title>Third story beyond the limit</title>
      <link>https://example.org/c</link>
      <pubDate>Mon, 17 Aug 2026 07:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func TestParseFeed(t *testing.T) {
	items, err := parseFeed([]byte(sampleFeed), 2)
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want max_results=2", len(items))
	}
	if items[0].Title != "Polls tighten ahead of vote" {
		t.Errorf("title = %q", items[0].Title)
	}
	if items[0].URL != "https://example.org/a" {
		t.Errorf("url = %q", items[0].URL)
	}
	want := time.Date(2026, 8, 17, 9, 30, 0, 0, time.UTC)
	if !items[0].Published.Equal(want) {
		t.Errorf("published = %v, want %v", items[0].Published, want)
	}
	if !items[1].Published.IsZero() {
		t.Errorf("unparseable pubDate should yield zero time, got %v", items[1].Published)
	}
}

func TestParseFeedRejectsGarbage(t *testing.T) {
	if _, err := parseFeed([]byte("<<not xml"), 5); err == nil {
		t.Error("expected parse error")
	}
}

func TestDisabledReturnsUnavailable(t *testing.T) {
	_, err := Disabled{}.Search(context.Background(), "anything", 5)
	if !errors.Is(err, port.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
