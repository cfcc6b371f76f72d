// ABOUTME: Feed source combining the HTTP fetcher with the parser
// ABOUTME: Wraps every network or format failure into a single FetchError

package parse

import (
	"context"
	"fmt"

	"github.com/harper/nexifeed/internal/fetch"
)

// FetchError reports that a feed document could not be fetched or understood.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Source fetches and parses feeds by URL.
type Source struct {
	fetcher *fetch.Fetcher
}

// NewSource creates a Source backed by fetcher.
func NewSource(fetcher *fetch.Fetcher) *Source {
	return &Source{fetcher: fetcher}
}

// Parse fetches url and parses the document. Any failure is a *FetchError.
func (s *Source) Parse(ctx context.Context, url string) (*RawFeed, error) {
	result, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	feed, err := Parse(result.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("parse: %w", err)}
	}
	return feed, nil
}
