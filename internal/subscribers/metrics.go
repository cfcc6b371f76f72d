// ABOUTME: Metrics subscriber counting created items per feed category
// ABOUTME: Falls back to an "unknown" label when the feed cannot be loaded

package subscribers

import (
	"context"

	"github.com/harper/nexifeed/internal/events"
	"github.com/harper/nexifeed/internal/metrics"
)

// MetricsSubscriber increments nexifeed_items_created_total.
type MetricsSubscriber struct {
	store   Store
	metrics *metrics.Metrics
}

// NewMetricsSubscriber creates the subscriber.
func NewMetricsSubscriber(store Store, m *metrics.Metrics) *MetricsSubscriber {
	return &MetricsSubscriber{store: store, metrics: m}
}

// Handle is an events.Handler.
func (s *MetricsSubscriber) Handle(ctx context.Context, ev events.Event) error {
	item, err := itemFrom(ev)
	if err != nil {
		return err
	}

	category := "unknown"
	if feed, err := s.store.GetFeed(ctx, item.FeedID); err == nil && feed.Category != "" {
		category = string(feed.Category)
	}
	s.metrics.ItemsCreated.WithLabelValues(category).Inc()
	return nil
}
