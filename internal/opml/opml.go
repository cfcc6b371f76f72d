// ABOUTME: OPML 2.0 reading and writing for feed subscription lists
// ABOUTME: Flattens nested folders into feed descriptors carrying type and category attributes

package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Version written into exported documents.
const Version = "2.0"

// Document represents an OPML document with a title and hierarchical outlines
type Document struct {
	Title       string
	DateCreated time.Time
	Outlines    []Outline
	feedURLs    map[string]bool
}

// Outline represents a node in the OPML tree structure.
// A folder has Children; a feed has XMLURL.
type Outline struct {
	Text     string
	Title    string
	Type     string
	XMLURL   string
	Category string
	Children []Outline
}

// Feed is one subscription flattened out of the outline tree
type Feed struct {
	Title    string `json:"title"`
	URL      string `json:"feedUrl"`
	Type     string `json:"type,omitempty"`
	Category string `json:"category,omitempty"`
	Folder   string `json:"folder,omitempty"`
}

type opmlXML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    headXML  `xml:"head"`
	Body    bodyXML  `xml:"body"`
}

type headXML struct {
	Title       string `xml:"title"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type bodyXML struct {
	Outlines []outlineXML `xml:"outline"`
}

type outlineXML struct {
	Text     string       `xml:"text,attr"`
	Title    string       `xml:"title,attr,omitempty"`
	Type     string       `xml:"type,attr,omitempty"`
	XMLURL   string       `xml:"xmlUrl,attr,omitempty"`
	Category string       `xml:"category,attr,omitempty"`
	Children []outlineXML `xml:"outline,omitempty"`
}

// NewDocument creates a new empty OPML document with the given title
func NewDocument(title string) *Document {
	return &Document{
		Title:    title,
		Outlines: []Outline{},
		feedURLs: make(map[string]bool),
	}
}

// Parse reads OPML data from an io.Reader and returns a Document
func Parse(r io.Reader) (*Document, error) {
	var opml opmlXML
	if err := xml.NewDecoder(r).Decode(&opml); err != nil {
		return nil, fmt.Errorf("failed to decode OPML: %w", err)
	}

	doc := &Document{
		Title:    opml.Head.Title,
		Outlines: make([]Outline, len(opml.Body.Outlines)),
	}
	if opml.Head.DateCreated != "" {
		if t, err := time.Parse(time.RFC1123Z, opml.Head.DateCreated); err == nil {
			doc.DateCreated = t
		}
	}
	for i, outline := range opml.Body.Outlines {
		doc.Outlines[i] = convertOutlineFromXML(outline)
	}

	doc.rebuildURLIndex()
	return doc, nil
}

// ParseFile reads OPML data from a file and returns a Document
func ParseFile(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

func (d *Document) rebuildURLIndex() {
	d.feedURLs = make(map[string]bool)
	for _, feed := range d.AllFeeds() {
		d.feedURLs[feed.URL] = true
	}
}

// AllFeeds returns every feed in document order with its folder. Outlines
// without an xmlUrl are folders and never appear as feeds.
func (d *Document) AllFeeds() []Feed {
	feeds := make([]Feed, 0, len(d.Outlines))
	for _, outline := range d.Outlines {
		feeds = append(feeds, collectFeeds(outline, "")...)
	}
	return feeds
}

// AddFeed appends a feed outline at the root. Folder is only populated by
// Parse and is not written back. Duplicate URLs are rejected.
func (d *Document) AddFeed(feed Feed) error {
	if d.feedURLs == nil {
		d.rebuildURLIndex()
	}
	if d.feedURLs[feed.URL] {
		return fmt.Errorf("feed with URL %s already exists", feed.URL)
	}

	typ := feed.Type
	if typ == "" {
		typ = "rss"
	}
	d.Outlines = append(d.Outlines, Outline{
		Text:     feed.Title,
		Title:    feed.Title,
		Type:     typ,
		XMLURL:   feed.URL,
		Category: feed.Category,
	})

	d.feedURLs[feed.URL] = true
	return nil
}

// Write writes the OPML document to an io.Writer
func (d *Document) Write(w io.Writer) error {
	opml := opmlXML{
		Version: Version,
		Head:    headXML{Title: d.Title},
		Body: bodyXML{
			Outlines: make([]outlineXML, len(d.Outlines)),
		},
	}
	if !d.DateCreated.IsZero() {
		opml.Head.DateCreated = d.DateCreated.UTC().Format(time.RFC1123Z)
	}
	for i, outline := range d.Outlines {
		opml.Body.Outlines[i] = convertOutlineToXML(outline)
	}

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(opml); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}
	return nil
}

// WriteFile writes the OPML document to a file
func (d *Document) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return d.Write(file)
}

func convertOutlineFromXML(x outlineXML) Outline {
	o := Outline{
		Text:     x.Text,
		Title:    x.Title,
		Type:     x.Type,
		XMLURL:   strings.TrimSpace(x.XMLURL),
		Category: x.Category,
		Children: make([]Outline, len(x.Children)),
	}
	for i, child := range x.Children {
		o.Children[i] = convertOutlineFromXML(child)
	}
	return o
}

func convertOutlineToXML(o Outline) outlineXML {
	x := outlineXML{
		Text:     o.Text,
		Title:    o.Title,
		Type:     o.Type,
		XMLURL:   o.XMLURL,
		Category: o.Category,
		Children: make([]outlineXML, len(o.Children)),
	}
	for i, child := range o.Children {
		x.Children[i] = convertOutlineToXML(child)
	}
	return x
}

func collectFeeds(outline Outline, folder string) []Feed {
	var feeds []Feed

	if outline.XMLURL != "" {
		feeds = append(feeds, Feed{
			Title:    outlineTitle(outline),
			URL:      outline.XMLURL,
			Type:     outline.Type,
			Category: outline.Category,
			Folder:   folder,
		})
	}

	childFolder := folder
	if outline.XMLURL == "" && len(outline.Children) > 0 {
		childFolder = outline.Text
	}
	for _, child := range outline.Children {
		feeds = append(feeds, collectFeeds(child, childFolder)...)
	}
	return feeds
}

func outlineTitle(outline Outline) string {
	if outline.Title != "" {
		return outline.Title
	}
	return outline.Text
}
