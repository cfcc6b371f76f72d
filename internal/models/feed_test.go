// ABOUTME: Test suite for Feed and Item models and the category enum
// ABOUTME: Ensures constructors assign IDs and timestamps and categories parse strictly

package models

import (
	"errors"
	"testing"
	"time"
)

func TestNewFeed(t *testing.T) {
	url := "https://example.com/feed.xml"
	feed := NewFeed(url)

	if feed.URL != url {
		t.Errorf("expected URL to be %q, got %q", url, feed.URL)
	}
	if feed.ID == "" {
		t.Error("expected feed ID to be generated, got empty string")
	}

	now := time.Now()
	if feed.CreatedAt.After(now) || feed.CreatedAt.Before(now.Add(-time.Second)) {
		t.Errorf("expected CreatedAt to be recent, got %v", feed.CreatedAt)
	}
	if !feed.UpdatedAt.Equal(feed.CreatedAt) {
		t.Errorf("expected UpdatedAt %v to equal CreatedAt %v", feed.UpdatedAt, feed.CreatedAt)
	}
}

func TestNewFeed_UniqueIDs(t *testing.T) {
	a := NewFeed("https://example.com/a.xml")
	b := NewFeed("https://example.com/a.xml")
	if a.ID == b.ID {
		t.Errorf("expected distinct IDs, both were %q", a.ID)
	}
}

func TestFeed_DisplayTitle(t *testing.T) {
	feed := NewFeed("https://example.com/feed.xml")
	if got := feed.DisplayTitle(); got != feed.URL {
		t.Errorf("got %q, want URL %q", got, feed.URL)
	}
	feed.Title = "Example"
	if got := feed.DisplayTitle(); got != "Example" {
		t.Errorf("got %q, want %q", got, "Example")
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input   string
		want    Category
		wantErr bool
	}{
		{"", "", false},
		{"  ", "", false},
		{"podcast", CategoryPodcast, false},
		{"YouTube", CategoryYouTube, false},
		{"BLOG", CategoryBlog, false},
		{"unknown", CategoryUnknown, false},
		{"newsletter", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCategory(tt.input)
			if tt.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if verr.Field != "category" {
					t.Errorf("expected field 'category', got %q", verr.Field)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewItem(t *testing.T) {
	item := NewItem("feed-1", "Hello", "https://example.com/hello")
	if item.ID == "" {
		t.Error("expected item ID to be generated")
	}
	if item.FeedID != "feed-1" || item.Title != "Hello" || item.Link != "https://example.com/hello" {
		t.Errorf("unexpected item fields: %+v", item)
	}
	if item.AudioInfo != nil {
		t.Error("expected AudioInfo to be nil for a new item")
	}
	if item.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}
