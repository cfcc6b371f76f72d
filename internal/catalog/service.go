// ABOUTME: Read and maintenance operations over stored feeds, items, and subscriptions
// ABOUTME: Applies paging defaults and validation shared by the HTTP API, MCP tools, and CLI

package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/harper/nexifeed/internal/config"
	"github.com/harper/nexifeed/internal/events"
	"github.com/harper/nexifeed/internal/models"
	"github.com/harper/nexifeed/internal/storage"
)

// FeedQuery pages through feeds. Page is 1-based.
type FeedQuery struct {
	Search string
	Page   int
	Limit  int
}

// ItemQuery pages through items, newest first. Page is 1-based.
type ItemQuery struct {
	FeedIDs  []string
	Category models.Category
	Search   string
	Page     int
	Limit    int
}

// SearchQuery is a relevance-ordered full-text search.
type SearchQuery struct {
	Query    string
	Category models.Category
	FeedIDs  []string
	Limit    int
}

// Service exposes the catalog over a store.
type Service struct {
	store     storage.Store
	publisher events.Publisher
	logger    logrus.FieldLogger
}

// NewService creates a catalog service. publisher may be nil when event
// replay is not needed.
func NewService(store storage.Store, publisher events.Publisher, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{store: store, publisher: publisher, logger: logger}
}

// ListFeeds returns feeds oldest first.
func (s *Service) ListFeeds(ctx context.Context, q FeedQuery) ([]*models.Feed, error) {
	limit, offset := paging(q.Page, q.Limit)
	return s.store.ListFeeds(ctx, &storage.FeedFilter{Search: q.Search, Limit: limit, Offset: offset})
}

// AllFeeds returns every feed without paging.
func (s *Service) AllFeeds(ctx context.Context) ([]*models.Feed, error) {
	return s.store.ListFeeds(ctx, nil)
}

// GetFeed returns one feed.
func (s *Service) GetFeed(ctx context.Context, id string) (*models.Feed, error) {
	return s.store.GetFeed(ctx, id)
}

// ListItems returns items matching q, newest publication first.
func (s *Service) ListItems(ctx context.Context, q ItemQuery) ([]*models.Item, error) {
	if q.Category != "" && !q.Category.Valid() {
		return nil, &models.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", q.Category)}
	}
	limit, offset := paging(q.Page, q.Limit)
	return s.store.ListItems(ctx, &storage.ItemFilter{
		FeedIDs:  q.FeedIDs,
		Category: q.Category,
		Search:   q.Search,
		Limit:    limit,
		Offset:   offset,
	})
}

// GetItem returns one item.
func (s *Service) GetItem(ctx context.Context, id string) (*models.Item, error) {
	return s.store.GetItem(ctx, id)
}

// Search runs a full-text query ordered by relevance.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]*models.Item, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, &models.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if q.Category != "" && !q.Category.Valid() {
		return nil, &models.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", q.Category)}
	}
	limit, _ := paging(1, q.Limit)
	return s.store.SearchItems(ctx, q.Query, &storage.ItemFilter{
		FeedIDs:  q.FeedIDs,
		Category: q.Category,
		Limit:    limit,
	})
}

// UpdateCategory sets a feed's category.
func (s *Service) UpdateCategory(ctx context.Context, feedID, category string) (*models.Feed, error) {
	c, err := models.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	if c == "" {
		return nil, &models.ValidationError{Field: "category", Reason: "must not be empty"}
	}

	feed, err := s.store.GetFeed(ctx, feedID)
	if err != nil {
		return nil, err
	}
	feed.Category = c
	if err := s.store.UpdateFeed(ctx, feed); err != nil {
		return nil, err
	}
	return feed, nil
}

// DeleteFeed removes a feed given its ID or URL, with its items and
// subscriptions.
func (s *Service) DeleteFeed(ctx context.Context, idOrURL string) (*models.Feed, error) {
	feed, err := s.resolveFeed(ctx, idOrURL)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteFeed(ctx, feed.ID); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"feed_id": feed.ID,
		"url":     feed.URL,
	}).Info("deleted feed")
	return feed, nil
}

func (s *Service) resolveFeed(ctx context.Context, idOrURL string) (*models.Feed, error) {
	feed, err := s.store.GetFeed(ctx, idOrURL)
	if err == nil {
		return feed, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return s.store.GetFeedByURL(ctx, idOrURL)
}

// AddFeedToUser subscribes userID to feedID with notifications and AI
// analysis off. It leaves an existing subscription's flags alone.
func (s *Service) AddFeedToUser(ctx context.Context, userID, feedID string) error {
	subs, err := s.store.ListUserSubscriptions(ctx, userID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.FeedID == feedID {
			return nil
		}
	}
	_, err = s.Subscribe(ctx, userID, feedID, false, false)
	return err
}

// Subscribe creates or updates userID's subscription to feedID.
func (s *Service) Subscribe(ctx context.Context, userID, feedID string, notifications, aiTrigger bool) (*models.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &models.ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	if strings.TrimSpace(feedID) == "" {
		return nil, &models.ValidationError{Field: "feedId", Reason: "must not be empty"}
	}
	sub := &models.Subscription{
		UserID:        userID,
		FeedID:        feedID,
		Notifications: notifications,
		AITrigger:     aiTrigger,
	}
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// UserFeeds returns the feeds userID subscribes to.
func (s *Service) UserFeeds(ctx context.Context, userID string) ([]*models.Feed, error) {
	subs, err := s.store.ListUserSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	feeds := make([]*models.Feed, 0, len(subs))
	for _, sub := range subs {
		feed, err := s.store.GetFeed(ctx, sub.FeedID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	return feeds, nil
}

// UserFeedIDs returns the IDs of the feeds userID subscribes to.
func (s *Service) UserFeedIDs(ctx context.Context, userID string) ([]string, error) {
	subs, err := s.store.ListUserSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(subs))
	for i, sub := range subs {
		ids[i] = sub.FeedID
	}
	return ids, nil
}

// ReplayItemEvent publishes item.created again for a stored item.
func (s *Service) ReplayItemEvent(ctx context.Context, itemID string) (*models.Item, error) {
	if s.publisher == nil {
		return nil, errors.New("event replay is not available")
	}
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.Event{
		Topic:   events.TopicItemCreated,
		Payload: events.ItemCreated{Item: item},
	})
	s.logger.WithField("item_id", item.ID).Info("replayed item.created")
	return item, nil
}

// paging converts a 1-based page and a limit into store limit and offset,
// applying the default and maximum list sizes.
func paging(page, limit int) (int, int) {
	if limit <= 0 {
		limit = config.DefaultListLimit
	}
	if limit > config.MaxListLimit {
		limit = config.MaxListLimit
	}
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}
