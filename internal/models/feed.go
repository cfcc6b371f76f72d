// ABOUTME: Feed model representing a subscribed RSS/Atom/YouTube/podcast source
// ABOUTME: Carries the content category enum and the identity anchor for stored items

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category classifies the kind of content a feed publishes.
type Category string

const (
	CategoryYouTube Category = "YOUTUBE"
	CategoryPodcast Category = "PODCAST"
	CategoryVideo   Category = "VIDEO"
	CategoryBlog    Category = "BLOG"
	CategoryUnknown Category = "UNKNOWN"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryYouTube,
	CategoryPodcast,
	CategoryVideo,
	CategoryBlog,
	CategoryUnknown,
}

// ParseCategory converts user input into a Category.
// Empty input returns the empty category, meaning "not supplied".
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	c := Category(strings.ToUpper(s))
	if !c.Valid() {
		return "", &ValidationError{Field: "category", Reason: "unknown category " + s}
	}
	return c, nil
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Feed represents an external content source identified by its URL
type Feed struct {
	ID          string    `json:"_id" bson:"_id"`
	URL         string    `json:"url" bson:"url"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Image       string    `json:"image,omitempty" bson:"image,omitempty"`
	Category    Category  `json:"category,omitempty" bson:"category,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updated_at"`
}

// NewFeed creates a new Feed instance with a generated ID and timestamps
func NewFeed(url string) *Feed {
	now := time.Now().UTC()
	return &Feed{
		ID:        uuid.New().String(),
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DisplayTitle returns the feed title, or its URL when the title is empty.
func (f *Feed) DisplayTitle() string {
	if f.Title != "" {
		return f.Title
	}
	return f.URL
}
