// ABOUTME: Feed ingestion: resolve-or-create the feed, then dedup and persist its newest items
// ABOUTME: Unique-index conflicts count as "already exists" so concurrent polls stay idempotent

package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/harper/nexifeed/internal/config"
	"github.com/harper/nexifeed/internal/events"
	"github.com/harper/nexifeed/internal/models"
	"github.com/harper/nexifeed/internal/normalize"
	"github.com/harper/nexifeed/internal/parse"
	"github.com/harper/nexifeed/internal/storage"
)

// FeedSource fetches and parses a feed document.
type FeedSource interface {
	Parse(ctx context.Context, url string) (*parse.RawFeed, error)
}

// SubscriptionRegistrar attaches a newly created feed to the user who added it.
type SubscriptionRegistrar interface {
	AddFeedToUser(ctx context.Context, userID, feedID string) error
}

// Store is the subset of storage the ingestion path touches.
type Store interface {
	GetFeedByURL(ctx context.Context, url string) (*models.Feed, error)
	CreateFeed(ctx context.Context, feed *models.Feed) error
	UpdateFeed(ctx context.Context, feed *models.Feed) error
	ItemExists(ctx context.Context, link string) (bool, error)
	CreateItem(ctx context.Context, item *models.Item) error
}

// Options tune a single FetchAndSave call.
type Options struct {
	UserID   string          // subscribed when this call finds the feed absent
	Category models.Category // overwrites the stored category when set
	MaxItems int             // <= 0 means config.DefaultMaxItems
}

// Result reports what one ingestion pass did.
type Result struct {
	NewItems   int `json:"newItems"`
	TotalItems int `json:"totalItems"`
}

// Service ingests feeds into the store and announces new items.
type Service struct {
	source      FeedSource
	store       Store
	normalizer  *normalize.Normalizer
	publisher   events.Publisher
	registrar   SubscriptionRegistrar
	logger      logrus.FieldLogger
	concurrency int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRegistrar sets who receives new-feed subscriptions.
func WithRegistrar(r SubscriptionRegistrar) ServiceOption {
	return func(s *Service) { s.registrar = r }
}

// WithLogger sets the service logger.
func WithLogger(l logrus.FieldLogger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithNormalizer overrides the item normalizer.
func WithNormalizer(n *normalize.Normalizer) ServiceOption {
	return func(s *Service) { s.normalizer = n }
}

// WithConcurrency bounds how many feeds FetchAll ingests at once.
func WithConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates an ingestion service.
func NewService(source FeedSource, store Store, publisher events.Publisher, opts ...ServiceOption) *Service {
	s := &Service{
		source:      source,
		store:       store,
		publisher:   publisher,
		logger:      logrus.StandardLogger(),
		concurrency: config.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.normalizer == nil {
		s.normalizer = normalize.New(normalize.WithLogger(s.logger))
	}
	return s
}

// FetchAndSave resolves or creates the feed at url, then persists up to
// MaxItems of its entries (in document order) whose link is not yet stored.
// Each new item is published as an item.created event.
func (s *Service) FetchAndSave(ctx context.Context, url string, opts Options) (*Result, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, &models.ValidationError{Field: "url", Reason: "must not be empty"}
	}
	if opts.Category != "" && !opts.Category.Valid() {
		return nil, &models.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", opts.Category)}
	}
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = config.DefaultMaxItems
	}

	feed, raw, err := s.resolveFeed(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", url, err)
	}

	if raw == nil {
		raw, err = s.source.Parse(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("ingest %s: %w", url, err)
		}
	}

	bounded := raw.Items
	if len(bounded) > maxItems {
		bounded = bounded[:maxItems]
	}

	newItems, err := s.saveItems(ctx, feed, bounded)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", url, err)
	}

	if newItems > 0 {
		s.logger.WithFields(logrus.Fields{
			"feed":      feed.DisplayTitle(),
			"new_items": newItems,
		}).Info("new feed items found")
	}
	return &Result{NewItems: newItems, TotalItems: len(bounded)}, nil
}

// resolveFeed returns the stored feed for url, creating it when absent. On
// the create path the parsed document is returned so it is not fetched twice.
func (s *Service) resolveFeed(ctx context.Context, url string, opts Options) (*models.Feed, *parse.RawFeed, error) {
	feed, err := s.store.GetFeedByURL(ctx, url)
	if err == nil {
		if err := s.applyCategory(ctx, feed, opts.Category); err != nil {
			return nil, nil, err
		}
		return feed, nil, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("lookup feed: %w", err)
	}

	raw, err := s.source.Parse(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	feed = models.NewFeed(url)
	feed.Title = raw.Title
	feed.Description = raw.Description
	feed.Image = raw.Image
	feed.Category = opts.Category

	if err := s.store.CreateFeed(ctx, feed); err != nil {
		if !errors.Is(err, storage.ErrConflict) {
			return nil, nil, fmt.Errorf("create feed: %w", err)
		}
		// Another caller created it first; continue with theirs.
		existing, getErr := s.store.GetFeedByURL(ctx, url)
		if getErr != nil {
			return nil, nil, fmt.Errorf("reload feed after conflict: %w", getErr)
		}
		if err := s.applyCategory(ctx, existing, opts.Category); err != nil {
			return nil, nil, err
		}
		feed = existing
	} else {
		s.logger.WithFields(logrus.Fields{
			"feed_id": feed.ID,
			"url":     url,
		}).Info("created feed")
	}

	if opts.UserID != "" && s.registrar != nil {
		if err := s.registrar.AddFeedToUser(ctx, opts.UserID, feed.ID); err != nil {
			return nil, nil, fmt.Errorf("subscribe user %s: %w", opts.UserID, err)
		}
	}
	return feed, raw, nil
}

// applyCategory overwrites the stored category when one is requested.
func (s *Service) applyCategory(ctx context.Context, feed *models.Feed, category models.Category) error {
	if category == "" || feed.Category == category {
		return nil
	}
	feed.Category = category
	if err := s.store.UpdateFeed(ctx, feed); err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

func (s *Service) saveItems(ctx context.Context, feed *models.Feed, raws []parse.RawItem) (int, error) {
	newItems := 0
	for _, raw := range raws {
		link := strings.TrimSpace(raw.Link)
		if link == "" {
			s.logger.WithField("feed_id", feed.ID).Warn("skipping item without link")
			continue
		}

		exists, err := s.store.ItemExists(ctx, link)
		if err != nil {
			return newItems, fmt.Errorf("check item %s: %w", link, err)
		}
		if exists {
			continue
		}

		item, err := s.normalizer.Normalize(raw, feed.ID)
		if err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				s.logger.WithFields(logrus.Fields{
					"feed_id": feed.ID,
					"link":    link,
				}).WithError(err).Warn("skipping invalid item")
				continue
			}
			return newItems, err
		}

		if err := s.store.CreateItem(ctx, item); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				continue
			}
			return newItems, fmt.Errorf("save item %s: %w", link, err)
		}

		newItems++
		if s.publisher != nil {
			s.publisher.Publish(ctx, events.Event{
				Topic:   events.TopicItemCreated,
				Payload: events.ItemCreated{Item: item},
			})
		}
	}
	return newItems, nil
}
