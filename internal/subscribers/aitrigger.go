// ABOUTME: AI trigger subscriber that queues new items for per-user analysis
// ABOUTME: Only users whose subscription has ai_trigger set are analyzed

package subscribers

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/harper/nexifeed/internal/events"
	"github.com/harper/nexifeed/internal/models"
	"github.com/harper/nexifeed/internal/storage"
)

// Analyzer runs downstream analysis of an item on behalf of a user.
type Analyzer interface {
	Analyze(ctx context.Context, userID string, item *models.Item) error
}

// LogAnalyzer records analysis requests in the log.
type LogAnalyzer struct {
	Logger logrus.FieldLogger
}

func (l LogAnalyzer) Analyze(ctx context.Context, userID string, item *models.Item) error {
	l.Logger.WithFields(logrus.Fields{
		"user_id": userID,
		"item_id": item.ID,
		"link":    item.Link,
	}).Info("analysis requested")
	return nil
}

// AITriggerSubscriber handles item.created for AI-enabled subscriptions.
type AITriggerSubscriber struct {
	store    Store
	analyzer Analyzer
	logger   logrus.FieldLogger
}

// NewAITriggerSubscriber creates the subscriber.
func NewAITriggerSubscriber(store Store, analyzer Analyzer, logger logrus.FieldLogger) *AITriggerSubscriber {
	return &AITriggerSubscriber{store: store, analyzer: analyzer, logger: logger}
}

// Handle is an events.Handler. Every user is attempted; failures are joined.
func (s *AITriggerSubscriber) Handle(ctx context.Context, ev events.Event) error {
	item, err := itemFrom(ev)
	if err != nil {
		return err
	}

	subs, err := s.store.ListFeedSubscribers(ctx, item.FeedID, storage.SubscriberFilter{AITriggerOnly: true})
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}

	var errs []error
	for _, userID := range userIDs(subs) {
		if err := s.analyzer.Analyze(ctx, userID, item); err != nil {
			errs = append(errs, fmt.Errorf("analyze for %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}
