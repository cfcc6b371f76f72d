// ABOUTME: Periodic ingestion of every stored feed driven by robfig/cron
// ABOUTME: Feeds are polled one at a time with a per-feed deadline; failures are logged and counted

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/harper/nexifeed/internal/ingest"
	"github.com/harper/nexifeed/internal/metrics"
	"github.com/harper/nexifeed/internal/models"
	"github.com/harper/nexifeed/internal/storage"
)

// FeedLister enumerates the feeds to poll.
type FeedLister interface {
	ListFeeds(ctx context.Context, filter *storage.FeedFilter) ([]*models.Feed, error)
}

// Ingester performs one feed's ingestion.
type Ingester interface {
	FetchAndSave(ctx context.Context, url string, opts ingest.Options) (*ingest.Result, error)
}

// Summary describes one run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	NewItems  int
}

// Cron runs RunAllFeeds on a fixed interval without overlapping runs.
type Cron struct {
	feeds       FeedLister
	ingester    Ingester
	interval    time.Duration
	feedTimeout time.Duration
	logger      logrus.FieldLogger
	metrics     *metrics.Metrics

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// Options configures a Cron.
type Options struct {
	Interval    time.Duration
	FeedTimeout time.Duration
	Logger      logrus.FieldLogger
	Metrics     *metrics.Metrics // optional
}

// New creates a scheduler. It does nothing until Start.
func New(feeds FeedLister, ingester Ingester, opts Options) (*Cron, error) {
	if feeds == nil || ingester == nil {
		return nil, errors.New("scheduler: feed lister and ingester are required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %s", opts.Interval)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cron{
		feeds:       feeds,
		ingester:    ingester,
		interval:    opts.Interval,
		feedTimeout: opts.FeedTimeout,
		logger:      logger,
		metrics:     opts.Metrics,
		ctx:         ctx,
		cancel:      cancel,
	}

	c.cron = cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(logger)),
		cron.SkipIfStillRunning(cron.PrintfLogger(logger)),
	))
	spec := fmt.Sprintf("@every %s", opts.Interval)
	if _, err := c.cron.AddFunc(spec, func() { c.RunAllFeeds(c.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("add cron: %w", err)
	}
	return c, nil
}

// Start begins scheduled execution.
func (c *Cron) Start() {
	c.logger.WithField("interval", c.interval.String()).Info("scheduler started")
	c.cron.Start()
}

// Stop halts scheduling and cancels an in-flight run. The returned context
// is done once that run has returned.
func (c *Cron) Stop() context.Context {
	c.cancel()
	return c.cron.Stop()
}

// RunAllFeeds polls every stored feed sequentially. It never fails as a
// whole: per-feed errors are logged and counted in the summary.
func (c *Cron) RunAllFeeds(ctx context.Context) Summary {
	start := time.Now()
	var summary Summary

	feeds, err := c.feeds.ListFeeds(ctx, nil)
	if err != nil {
		c.logger.WithError(err).Error("scheduled run: list feeds failed")
		return summary
	}
	summary.Total = len(feeds)
	c.logger.WithField("feeds", summary.Total).Info("scheduled run started")

	for i, feed := range feeds {
		if ctx.Err() != nil {
			c.logger.WithField("remaining", summary.Total-i).Warn("scheduled run cancelled")
			break
		}

		result, err := c.runOne(ctx, feed)
		fields := logrus.Fields{
			"feed_id":  feed.ID,
			"url":      feed.URL,
			"progress": fmt.Sprintf("%d/%d", i+1, summary.Total),
		}
		if err != nil {
			summary.Failed++
			c.logger.WithFields(fields).WithError(err).Error("feed update failed")
			continue
		}
		summary.Succeeded++
		summary.NewItems += result.NewItems
		fields["new_items"] = result.NewItems
		c.logger.WithFields(fields).Debug("feed updated")
	}

	took := time.Since(start)
	c.logger.WithFields(logrus.Fields{
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"new_items": summary.NewItems,
		"duration":  took.String(),
	}).Info("scheduled run finished")

	if c.metrics != nil {
		c.metrics.ObserveRun(summary.Succeeded, summary.Failed, summary.NewItems, took)
	}
	return summary
}

func (c *Cron) runOne(ctx context.Context, feed *models.Feed) (result *ingest.Result, err error) {
	if c.feedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.feedTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.ingester.FetchAndSave(ctx, feed.URL, ingest.Options{Category: feed.Category})
}
