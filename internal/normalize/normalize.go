// ABOUTME: Maps raw parsed feed items onto the canonical Item model
// ABOUTME: Field resolution walks named precedence lists; the first non-empty value wins

package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"

	"github.com/harper/nexifeed/internal/models"
	"github.com/harper/nexifeed/internal/parse"
)

// Source names one raw item field that can supply a canonical value.
type Source string

const (
	SourceContentEncoded   Source = "content:encoded"
	SourceContent          Source = "content"
	SourceDescription      Source = "description"
	SourceContentSnippet   Source = "contentSnippet"
	SourceMediaDescription Source = "media:group/description"
	SourceImage            Source = "image"
	SourceMediaThumbnail   Source = "media:group/thumbnail"
)

// ContentPrecedence is the resolution order for Item.Content.
var ContentPrecedence = []Source{
	SourceContentEncoded,
	SourceContent,
	SourceDescription,
	SourceContentSnippet,
	SourceMediaDescription,
}

// ImagePrecedence is the resolution order for Item.Image.
var ImagePrecedence = []Source{
	SourceImage,
	SourceMediaThumbnail,
}

// Value returns the raw value of the field s names, or "".
func (s Source) Value(raw parse.RawItem) string {
	switch s {
	case SourceContentEncoded:
		return raw.ContentEncoded
	case SourceContent:
		return raw.Content
	case SourceDescription:
		return raw.Description
	case SourceContentSnippet:
		return raw.ContentSnippet
	case SourceMediaDescription:
		if raw.MediaGroup != nil && len(raw.MediaGroup.Descriptions) > 0 {
			return raw.MediaGroup.Descriptions[0]
		}
	case SourceImage:
		return raw.Image
	case SourceMediaThumbnail:
		if raw.MediaGroup != nil && len(raw.MediaGroup.Thumbnails) > 0 {
			return raw.MediaGroup.Thumbnails[0]
		}
	}
	return ""
}

// Resolve returns the first non-blank value along order.
func Resolve(raw parse.RawItem, order []Source) string {
	for _, s := range order {
		if v := s.Value(raw); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DatePolicy decides what happens to an item whose date cannot be parsed.
type DatePolicy int

const (
	// FallbackToIngestionTime stamps the item with the time it was normalized.
	FallbackToIngestionTime DatePolicy = iota
	// RejectUnparsableDate fails normalization with a ValidationError.
	RejectUnparsableDate
)

// Normalizer converts parse.RawItem values into models.Item.
type Normalizer struct {
	now    func() time.Time
	policy DatePolicy
	log    logrus.FieldLogger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the ingestion clock.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithDatePolicy selects the unparsable-date policy.
func WithDatePolicy(p DatePolicy) Option {
	return func(n *Normalizer) { n.policy = p }
}

// WithLogger sets the logger used for date fallback warnings.
func WithLogger(log logrus.FieldLogger) Option {
	return func(n *Normalizer) { n.log = log }
}

// New creates a Normalizer. Defaults: wall clock, FallbackToIngestionTime.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:    time.Now,
		policy: FallbackToIngestionTime,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize maps raw into a new Item owned by feedID. It performs no I/O.
func (n *Normalizer) Normalize(raw parse.RawItem, feedID string) (*models.Item, error) {
	link := strings.TrimSpace(raw.Link)
	if link == "" {
		return nil, &models.ValidationError{Field: "link", Reason: "item has no link"}
	}

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = link
	}

	item := models.NewItem(feedID, title, link)
	item.Content = Resolve(raw, ContentPrecedence)
	item.Image = Resolve(raw, ImagePrecedence)
	item.AudioInfo = audioInfo(raw.Enclosure)

	pubDate, err := n.pubDate(raw)
	if err != nil {
		return nil, err
	}
	item.PubDate = pubDate
	return item, nil
}

func (n *Normalizer) pubDate(raw parse.RawItem) (time.Time, error) {
	if raw.PubDateParsed != nil && !raw.PubDateParsed.IsZero() {
		return raw.PubDateParsed.UTC(), nil
	}

	if s := strings.TrimSpace(raw.PubDate); s != "" {
		if t, err := dateparse.ParseAny(s); err == nil {
			return t.UTC(), nil
		}
	}

	if n.policy == RejectUnparsableDate {
		return time.Time{}, &models.ValidationError{Field: "pubDate", Reason: "unparsable date " + strconv.Quote(raw.PubDate)}
	}

	n.log.WithFields(logrus.Fields{
		"link":     raw.Link,
		"pub_date": raw.PubDate,
	}).Warn("unparsable publication date, using ingestion time")
	return n.now().UTC(), nil
}

func audioInfo(enc *parse.Enclosure) *models.AudioInfo {
	if enc == nil {
		return nil
	}
	length, err := strconv.ParseInt(strings.TrimSpace(enc.Length), 10, 64)
	if err != nil {
		length = 0
	}
	return &models.AudioInfo{
		Length: length,
		Type:   enc.Type,
		URL:    enc.URL,
	}
}
