// ABOUTME: RSS/Atom/JSON feed parsing using the gofeed universal parser
// ABOUTME: Produces a RawFeed whose items keep every optional field a provider may send

package parse

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/harper/nexifeed/internal/content"
)

// RawFeed is a parsed feed document before normalization.
type RawFeed struct {
	Title       string
	Description string
	Link        string
	Image       string
	FeedType    string
	Items       []RawItem
}

// RawItem carries the heterogeneous per-item shapes of RSS, Atom,
// YouTube, and podcast feeds. Empty strings and nil pointers mean absent.
type RawItem struct {
	Title string
	Link  string
	GUID  string

	PubDate       string
	PubDateParsed *time.Time

	ContentEncoded string
	Content        string
	Description    string
	ContentSnippet string

	Image      string
	MediaGroup *MediaGroup
	Enclosure  *Enclosure
}

// MediaGroup holds the media:group children used by YouTube and some podcasts.
type MediaGroup struct {
	Thumbnails   []string
	Descriptions []string
}

// Enclosure is an attached media file as declared by the feed.
type Enclosure struct {
	URL    string
	Length string
	Type   string
}

// Parse parses RSS, Atom, or JSON feed data into a RawFeed.
func Parse(data []byte) (*RawFeed, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	raw := &RawFeed{
		Title:       strings.TrimSpace(feed.Title),
		Description: strings.TrimSpace(feed.Description),
		Link:        feed.Link,
		Image:       feedImage(feed),
		FeedType:    feed.FeedType,
		Items:       make([]RawItem, 0, len(feed.Items)),
	}

	for _, item := range feed.Items {
		raw.Items = append(raw.Items, convertItem(feed.FeedType, item))
	}
	return raw, nil
}

func feedImage(feed *gofeed.Feed) string {
	if feed.Image != nil && feed.Image.URL != "" {
		return feed.Image.URL
	}
	if feed.ITunesExt != nil && feed.ITunesExt.Image != "" {
		return feed.ITunesExt.Image
	}
	return ""
}

func convertItem(feedType string, item *gofeed.Item) RawItem {
	raw := RawItem{
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		GUID:        item.GUID,
		Description: item.Description,
	}

	// gofeed puts content:encoded into Content for RSS; for Atom and
	// JSON it is the entry body.
	if feedType == "rss" {
		raw.ContentEncoded = item.Content
	} else {
		raw.Content = item.Content
	}

	switch {
	case item.Published != "" || item.PublishedParsed != nil:
		raw.PubDate = item.Published
		raw.PubDateParsed = item.PublishedParsed
	default:
		raw.PubDate = item.Updated
		raw.PubDateParsed = item.UpdatedParsed
	}

	// Derived from the first non-empty body, so it never outranks that body
	// in normalize.ContentPrecedence. RawItems built by hand can still set it alone.
	for _, body := range []string{raw.ContentEncoded, raw.Content, raw.Description} {
		if strings.TrimSpace(body) != "" {
			raw.ContentSnippet = content.Snippet(body)
			break
		}
	}

	if item.Image != nil {
		raw.Image = item.Image.URL
	}

	raw.MediaGroup = mediaGroup(item.Extensions)

	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			raw.Enclosure = &Enclosure{URL: enc.URL, Length: enc.Length, Type: enc.Type}
			break
		}
	}

	return raw
}

func mediaGroup(extensions ext.Extensions) *MediaGroup {
	groups := extensions["media"]["group"]
	if len(groups) == 0 {
		return nil
	}

	group := &MediaGroup{}
	for _, thumb := range groups[0].Children["thumbnail"] {
		if u := thumb.Attrs["url"]; u != "" {
			group.Thumbnails = append(group.Thumbnails, u)
		}
	}
	for _, desc := range groups[0].Children["description"] {
		group.Descriptions = append(group.Descriptions, desc.Value)
	}

	if len(group.Thumbnails) == 0 && len(group.Descriptions) == 0 {
		return nil
	}
	return group
}

// String summarizes the feed for logs.
func (f *RawFeed) String() string {
	return fmt.Sprintf("%s feed %q (%d items)", f.FeedType, f.Title, len(f.Items))
}
