// ABOUTME: OPML import and export on top of ingestion and the feed catalog
// ABOUTME: Import is a bulk manual fetch with a larger per-feed item cap; bad OPML yields an empty list

package importer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harper/nexifeed/internal/config"
	"github.com/harper/nexifeed/internal/ingest"
	"github.com/harper/nexifeed/internal/models"
	"github.com/harper/nexifeed/internal/opml"
)

// Ingester ingests one feed.
type Ingester interface {
	FetchAndSave(ctx context.Context, url string, opts ingest.Options) (*ingest.Result, error)
}

// FeedCatalog supplies the feeds to export.
type FeedCatalog interface {
	AllFeeds(ctx context.Context) ([]*models.Feed, error)
	UserFeeds(ctx context.Context, userID string) ([]*models.Feed, error)
}

// Importer moves subscription lists in and out as OPML.
type Importer struct {
	ingester Ingester
	catalog  FeedCatalog
	maxItems int
	logger   logrus.FieldLogger
	now      func() time.Time
}

// New creates an Importer. maxItems <= 0 means config.DefaultImportMaxItems.
func New(ingester Ingester, catalog FeedCatalog, maxItems int, logger logrus.FieldLogger) *Importer {
	if maxItems <= 0 {
		maxItems = config.DefaultImportMaxItems
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Importer{
		ingester: ingester,
		catalog:  catalog,
		maxItems: maxItems,
		logger:   logger,
		now:      time.Now,
	}
}

// Import parses an OPML document and ingests every feed it lists on behalf
// of userID. It returns the parsed descriptors. A document that cannot be
// parsed is logged and yields an empty list; a feed that fails to ingest is
// logged and skipped.
func (im *Importer) Import(ctx context.Context, xml string, userID string) []opml.Feed {
	doc, err := opml.Parse(strings.NewReader(xml))
	if err != nil {
		im.logger.WithError(err).Warn("opml import: malformed document")
		return []opml.Feed{}
	}
	return im.ImportDocument(ctx, doc, userID)
}

// ImportDocument ingests every feed of an already parsed document.
func (im *Importer) ImportDocument(ctx context.Context, doc *opml.Document, userID string) []opml.Feed {
	feeds := doc.AllFeeds()
	for i := range feeds {
		if feeds[i].Category == "" {
			feeds[i].Category = folderCategory(feeds[i].Folder)
		}
	}

	imported := 0
	for i, feed := range feeds {
		if ctx.Err() != nil {
			im.logger.WithField("remaining", len(feeds)-i).Warn("opml import cancelled")
			break
		}
		fields := logrus.Fields{
			"url":      feed.URL,
			"progress": fmt.Sprintf("%d/%d", i+1, len(feeds)),
		}
		result, err := im.ingester.FetchAndSave(ctx, feed.URL, ingest.Options{
			UserID:   userID,
			MaxItems: im.maxItems,
		})
		if err != nil {
			im.logger.WithFields(fields).WithError(err).Error("opml import: feed failed")
			continue
		}
		imported++
		fields["new_items"] = result.NewItems
		im.logger.WithFields(fields).Debug("opml import: feed ingested")
	}

	im.logger.WithFields(logrus.Fields{
		"feeds":    len(feeds),
		"imported": imported,
		"user_id":  userID,
	}).Info("opml import finished")
	return feeds
}

// Export renders the feeds userID subscribes to, or every feed when userID
// is empty, as an OPML document.
func (im *Importer) Export(ctx context.Context, userID string) ([]byte, error) {
	doc, err := im.ExportDocument(ctx, userID)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportDocument builds the export as a Document.
func (im *Importer) ExportDocument(ctx context.Context, userID string) (*opml.Document, error) {
	var feeds []*models.Feed
	var err error
	if userID == "" {
		feeds, err = im.catalog.AllFeeds(ctx)
	} else {
		feeds, err = im.catalog.UserFeeds(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load feeds: %w", err)
	}

	doc := opml.NewDocument(config.OPMLExportTitle)
	doc.DateCreated = im.now()
	for _, feed := range feeds {
		if err := doc.AddFeed(opml.Feed{
			Title:    feed.DisplayTitle(),
			URL:      feed.URL,
			Type:     "rss",
			Category: string(feed.Category),
		}); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// folderCategory maps a folder named after a category ("Podcasts",
// "YouTube") onto it.
func folderCategory(folder string) string {
	name := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(folder)), "S")
	if c := models.Category(name); c.Valid() {
		return string(c)
	}
	return ""
}
