// ABOUTME: Bounded-concurrency ingestion over a set of feeds
// ABOUTME: One feed's failure is recorded in its FeedUpdate and never aborts the others

package ingest

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/harper/nexifeed/internal/models"
)

// FeedUpdate is the outcome of ingesting one feed during a fetch-all.
type FeedUpdate struct {
	Update *Result      `json:"update"`
	Feed   *models.Feed `json:"feed"`
	Error  string       `json:"error,omitempty"`
}

// FetchAll ingests every feed with the service's concurrency limit and
// returns one FeedUpdate per feed, in input order.
func (s *Service) FetchAll(ctx context.Context, feeds []*models.Feed) []FeedUpdate {
	updates := make([]FeedUpdate, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, feed := range feeds {
		g.Go(func() error {
			updates[i].Feed = feed
			result, err := s.FetchAndSave(gctx, feed.URL, Options{Category: feed.Category})
			if err != nil {
				s.logger.WithFields(logrus.Fields{
					"feed_id": feed.ID,
					"url":     feed.URL,
				}).WithError(err).Error("feed update failed")
				updates[i].Error = err.Error()
				return nil
			}
			updates[i].Update = result
			return nil
		})
	}
	_ = g.Wait()
	return updates
}
