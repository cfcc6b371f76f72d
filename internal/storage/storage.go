// ABOUTME: Storage interfaces, filters, and sentinel errors for feeds, items, and subscriptions
// ABOUTME: Every backend enforces unique feed URLs and item links and reports violations as ErrConflict

package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/harper/nexifeed/internal/models"
)

var (
	// ErrNotFound is returned when a referenced feed, item, or subscription does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a unique index: a feed
	// URL or item link that is already stored. Ingestion treats it as
	// "already exists", which is what makes concurrent polling of the same
	// feed safe.
	ErrConflict = errors.New("conflict")
)

// FeedFilter specifies criteria for listing feeds.
type FeedFilter struct {
	Search string // case-insensitive match on title or URL
	Limit  int    // zero means no limit
	Offset int
}

// ItemFilter specifies criteria for listing items.
type ItemFilter struct {
	FeedIDs  []string
	Category models.Category
	Search   string // full-text match on title and content
	Limit    int    // zero means no limit
	Offset   int
}

// SubscriberFilter selects which subscriptions of a feed to return.
type SubscriberFilter struct {
	NotificationsOnly bool
	AITriggerOnly     bool
}

// FeedStore owns Feed records.
type FeedStore interface {
	// CreateFeed stores a new feed. Returns ErrConflict if the URL exists.
	CreateFeed(ctx context.Context, feed *models.Feed) error

	// GetFeed retrieves a feed by ID.
	GetFeed(ctx context.Context, id string) (*models.Feed, error)

	// GetFeedByURL finds a feed by its URL.
	GetFeedByURL(ctx context.Context, url string) (*models.Feed, error)

	// ListFeeds returns feeds sorted by creation date (oldest first).
	ListFeeds(ctx context.Context, filter *FeedFilter) ([]*models.Feed, error)

	// UpdateFeed updates title, description, image, and category.
	UpdateFeed(ctx context.Context, feed *models.Feed) error

	// DeleteFeed removes a feed with its items and subscriptions.
	DeleteFeed(ctx context.Context, id string) error
}

// ItemStore owns Item records.
type ItemStore interface {
	// CreateItem stores a new item. Returns ErrConflict if the link exists.
	CreateItem(ctx context.Context, item *models.Item) error

	// ItemExists reports whether an item with this exact link is stored.
	ItemExists(ctx context.Context, link string) (bool, error)

	// GetItem retrieves an item by ID.
	GetItem(ctx context.Context, id string) (*models.Item, error)

	// ListItems returns items matching filter, newest publication first.
	ListItems(ctx context.Context, filter *ItemFilter) ([]*models.Item, error)

	// SearchItems runs a full-text query ordered by relevance.
	SearchItems(ctx context.Context, query string, filter *ItemFilter) ([]*models.Item, error)
}

// SubscriptionStore owns user-to-feed subscriptions.
type SubscriptionStore interface {
	// UpsertSubscription creates or updates a user's subscription to a feed.
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error

	// ListUserSubscriptions returns all subscriptions of a user.
	ListUserSubscriptions(ctx context.Context, userID string) ([]*models.Subscription, error)

	// ListFeedSubscribers returns the subscriptions of a feed matching filter.
	ListFeedSubscribers(ctx context.Context, feedID string, filter SubscriberFilter) ([]*models.Subscription, error)
}

// Store is the complete persistence contract.
type Store interface {
	FeedStore
	ItemStore
	SubscriptionStore

	// Close releases the backend's resources.
	Close() error
}

// searchTerms splits a user query into non-empty terms.
func searchTerms(query string) []string {
	return strings.Fields(query)
}
