// ABOUTME: Notification subscriber that tells opted-in users about new items
// ABOUTME: Builds the push payload from the item and its feed and hands it to a Notifier

package subscribers

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/harper/nexifeed/internal/events"
	"github.com/harper/nexifeed/internal/storage"
)

// Notification is the push payload for one new item.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Image string `json:"image,omitempty"`
	URL   string `json:"url"`
}

// Notifier delivers notifications to users.
type Notifier interface {
	Notify(ctx context.Context, userIDs []string, n Notification) error
}

// LogNotifier writes notifications to the log. It is the default delivery
// when no push gateway is configured.
type LogNotifier struct {
	Logger logrus.FieldLogger
}

func (l LogNotifier) Notify(ctx context.Context, userIDs []string, n Notification) error {
	l.Logger.WithFields(logrus.Fields{
		"users": len(userIDs),
		"title": n.Title,
		"url":   n.URL,
	}).Info("notification")
	return nil
}

// NotificationSubscriber handles item.created for users with notifications on.
type NotificationSubscriber struct {
	store    Store
	notifier Notifier
	logger   logrus.FieldLogger
}

// NewNotificationSubscriber creates the subscriber.
func NewNotificationSubscriber(store Store, notifier Notifier, logger logrus.FieldLogger) *NotificationSubscriber {
	return &NotificationSubscriber{store: store, notifier: notifier, logger: logger}
}

// Handle is an events.Handler.
func (s *NotificationSubscriber) Handle(ctx context.Context, ev events.Event) error {
	item, err := itemFrom(ev)
	if err != nil {
		return err
	}

	subs, err := s.store.ListFeedSubscribers(ctx, item.FeedID, storage.SubscriberFilter{NotificationsOnly: true})
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	feed, err := s.store.GetFeed(ctx, item.FeedID)
	if err != nil {
		return fmt.Errorf("load feed %s: %w", item.FeedID, err)
	}

	icon := item.Image
	if icon == "" {
		icon = feed.Image
	}
	n := Notification{
		Title: fmt.Sprintf("%s - %s", feed.DisplayTitle(), strings.ToLower(string(feed.Category))),
		Body:  item.Title,
		Icon:  icon,
		Image: feed.Image,
		URL:   item.Link,
	}

	if err := s.notifier.Notify(ctx, userIDs(subs), n); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"item_id": item.ID,
		"users":   len(subs),
	}).Debug("notifications sent")
	return nil
}
