// ABOUTME: Test suite for RSS/Atom feed parsing and the fetching source
// ABOUTME: Validates optional-field extraction using inline XML test data

package parse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harper/nexifeed/internal/fetch"
)

const podcastXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"
  xmlns:content="http://purl.org/rss/1.0/modules/content/"
  xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Test Podcast</title>
    <link>https://example.com</link>
    <description>A test podcast</description>
    <itunes:image href="https://example.com/cover.jpg"/>
    <item>
      <guid>ep-1</guid>
      <title>Episode 1</title>
      <link>https://example.com/ep/1</link>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
      <description>Plain description</description>
      <content:encoded><![CDATA[<p>Full <b>show notes</b></p>]]></content:encoded>
      <enclosure url="https://example.com/ep1.mp3" length="12345" type="audio/mpeg"/>
    </item>
    <item>
      <title>Episode 2</title>
      <link>https://example.com/ep/2</link>
      <pubDate>not a date</pubDate>
      <description>Second</description>
    </item>
  </channel>
</rss>`

const youtubeXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"
  xmlns:media="http://search.yahoo.com/mrss/"
  xmlns:yt="http://www.youtube.com/xml/schemas/2015">
  <title>Test Channel</title>
  <link rel="alternate" href="https://www.youtube.com/channel/abc"/>
  <entry>
    <id>yt:video:123</id>
    <title>A Video</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=123"/>
    <published>2024-05-01T10:00:00+00:00</published>
    <media:group>
      <media:title>A Video</media:title>
      <media:thumbnail url="https://i.ytimg.com/vi/123/hqdefault.jpg" width="480" height="360"/>
      <media:description>Video description text</media:description>
    </media:group>
  </entry>
</feed>`

const atomXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Test Atom Feed</title>
  <subtitle>Atom subtitle</subtitle>
  <updated>2006-01-02T15:04:05Z</updated>
  <entry>
    <id>urn:1</id>
    <title>Atom Entry</title>
    <link href="https://example.com/atom/1"/>
    <updated>2006-01-02T15:04:05Z</updated>
    <summary>Atom summary</summary>
    <content type="html">&lt;p&gt;Atom body&lt;/p&gt;</content>
  </entry>
</feed>`

func TestParse_Podcast(t *testing.T) {
	feed, err := Parse([]byte(podcastXML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if feed.Title != "Test Podcast" {
		t.Errorf("expected title 'Test Podcast', got %q", feed.Title)
	}
	if feed.Description != "A test podcast" {
		t.Errorf("expected description, got %q", feed.Description)
	}
	if feed.Image != "https://example.com/cover.jpg" {
		t.Errorf("expected itunes image fallback, got %q", feed.Image)
	}
	if feed.FeedType != "rss" {
		t.Errorf("expected feed type rss, got %q", feed.FeedType)
	}
	if len(feed.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(feed.Items))
	}

	first := feed.Items[0]
	if first.Link != "https://example.com/ep/1" {
		t.Errorf("unexpected link %q", first.Link)
	}
	if first.ContentEncoded != "<p>Full <b>show notes</b></p>" {
		t.Errorf("expected content:encoded, got %q", first.ContentEncoded)
	}
	if first.Content != "" {
		t.Errorf("expected empty Content for RSS, got %q", first.Content)
	}
	if first.Description != "Plain description" {
		t.Errorf("expected description, got %q", first.Description)
	}
	if first.ContentSnippet != "Full show notes" {
		t.Errorf("expected snippet 'Full show notes', got %q", first.ContentSnippet)
	}
	if first.Enclosure == nil {
		t.Fatal("expected enclosure")
	}
	if first.Enclosure.URL != "https://example.com/ep1.mp3" || first.Enclosure.Length != "12345" || first.Enclosure.Type != "audio/mpeg" {
		t.Errorf("unexpected enclosure %+v", first.Enclosure)
	}
	if first.PubDateParsed == nil {
		t.Fatal("expected parsed pub date")
	}
	want := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)
	if !first.PubDateParsed.Equal(want) {
		t.Errorf("expected %v, got %v", want, first.PubDateParsed)
	}

	second := feed.Items[1]
	if second.Enclosure != nil {
		t.Errorf("expected no enclosure, got %+v", second.Enclosure)
	}
	if second.PubDate != "not a date" {
		t.Errorf("expected raw pub date preserved, got %q", second.PubDate)
	}
	if second.PubDateParsed != nil {
		t.Errorf("expected unparsable date to stay nil, got %v", second.PubDateParsed)
	}
}

func TestParse_YouTubeMediaGroup(t *testing.T) {
	feed, err := Parse([]byte(youtubeXML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if feed.FeedType != "atom" {
		t.Errorf("expected atom, got %q", feed.FeedType)
	}
	if len(feed.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(feed.Items))
	}

	item := feed.Items[0]
	if item.MediaGroup == nil {
		t.Fatal("expected media group")
	}
	if len(item.MediaGroup.Thumbnails) != 1 || item.MediaGroup.Thumbnails[0] != "https://i.ytimg.com/vi/123/hqdefault.jpg" {
		t.Errorf("unexpected thumbnails %v", item.MediaGroup.Thumbnails)
	}
	if len(item.MediaGroup.Descriptions) != 1 || item.MediaGroup.Descriptions[0] != "Video description text" {
		t.Errorf("unexpected descriptions %v", item.MediaGroup.Descriptions)
	}
	if item.Content != "" || item.Description != "" || item.ContentEncoded != "" {
		t.Errorf("expected no body fields, got %+v", item)
	}
}

func TestParse_Atom(t *testing.T) {
	feed, err := Parse([]byte(atomXML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if feed.Description != "Atom subtitle" {
		t.Errorf("expected subtitle as description, got %q", feed.Description)
	}

	item := feed.Items[0]
	if item.Content != "<p>Atom body</p>" {
		t.Errorf("expected atom content, got %q", item.Content)
	}
	if item.ContentEncoded != "" {
		t.Errorf("expected no content:encoded for atom, got %q", item.ContentEncoded)
	}
	if item.Description != "Atom summary" {
		t.Errorf("expected summary as description, got %q", item.Description)
	}
	if item.PubDateParsed == nil {
		t.Error("expected updated date as pub date fallback")
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("this is not xml")); err == nil {
		t.Error("expected error for non-feed data")
	}
}

func TestSource_Parse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed.xml":
			w.Write([]byte(podcastXML))
		case "/html":
			w.Write([]byte("<html><body>not a feed</body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	source := NewSource(fetch.New(5 * time.Second))

	feed, err := source.Parse(context.Background(), server.URL+"/feed.xml")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(feed.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(feed.Items))
	}

	for _, path := range []string{"/html", "/missing"} {
		_, err := source.Parse(context.Background(), server.URL+path)
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("%s: expected FetchError, got %v", path, err)
		}
		if fetchErr.URL != server.URL+path {
			t.Errorf("%s: expected URL in error, got %q", path, fetchErr.URL)
		}
	}
}
