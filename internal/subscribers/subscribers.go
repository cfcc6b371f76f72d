// ABOUTME: Shared plumbing for item.created subscribers
// ABOUTME: Extracts the item payload and declares the store subset subscribers read

package subscribers

import (
	"context"
	"fmt"

	"github.com/harper/nexifeed/internal/events"
	"github.com/harper/nexifeed/internal/models"
	"github.com/harper/nexifeed/internal/storage"
)

// Store is what subscribers read to enrich an event.
type Store interface {
	GetFeed(ctx context.Context, id string) (*models.Feed, error)
	ListFeedSubscribers(ctx context.Context, feedID string, filter storage.SubscriberFilter) ([]*models.Subscription, error)
}

func itemFrom(ev events.Event) (*models.Item, error) {
	payload, ok := ev.Payload.(events.ItemCreated)
	if !ok || payload.Item == nil {
		return nil, fmt.Errorf("unexpected %s payload %T", ev.Topic, ev.Payload)
	}
	return payload.Item, nil
}

func userIDs(subs []*models.Subscription) []string {
	ids := make([]string, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.UserID)
	}
	return ids
}
