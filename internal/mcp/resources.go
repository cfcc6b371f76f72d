// ABOUTME: MCP resource providers for nexifeed
// ABOUTME: Exposes read-only views of stored feeds and the most recent items

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/harper/nexifeed/internal/catalog"
	"github.com/harper/nexifeed/internal/config"
)

const (
	feedsResourceURI       = "nexifeed://feeds"
	recentItemsResourceURI = "nexifeed://items/recent"
)

// ResourceData is the standard response format for all resources.
type ResourceData struct {
	Metadata ResourceMetadata  `json:"metadata"`
	Data     interface{}       `json:"data"`
	Links    map[string]string `json:"links"`
}

// ResourceMetadata contains metadata about the resource response.
type ResourceMetadata struct {
	Timestamp   time.Time `json:"timestamp"`
	Count       int       `json:"count"`
	ResourceURI string    `json:"resource_uri"`
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcp.Resource{
			URI:         feedsResourceURI,
			Name:        "All Feeds",
			Description: "Every stored feed with its ID, URL, title, and category",
			MIMEType:    "application/json",
		},
		s.readFeedsResource,
	)
	s.mcpServer.AddResource(
		mcp.Resource{
			URI:         recentItemsResourceURI,
			Name:        "Recent Items",
			Description: "The newest stored items across all feeds",
			MIMEType:    "application/json",
		},
		s.readRecentItemsResource,
	)
}

func (s *Server) readFeedsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	feeds, err := s.catalog.AllFeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	out := make([]FeedOutput, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, feedOutput(f))
	}
	return resourceContents(request.Params.URI, ResourceData{
		Metadata: ResourceMetadata{
			Timestamp:   time.Now(),
			Count:       len(out),
			ResourceURI: feedsResourceURI,
		},
		Data:  out,
		Links: map[string]string{"recent_items": recentItemsResourceURI},
	})
}

func (s *Server) readRecentItemsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	items, err := s.catalog.ListItems(ctx, catalog.ItemQuery{Limit: config.DefaultListLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	out := itemsOutput(items)
	return resourceContents(request.Params.URI, ResourceData{
		Metadata: ResourceMetadata{
			Timestamp:   time.Now(),
			Count:       out.Count,
			ResourceURI: recentItemsResourceURI,
		},
		Data:  out.Items,
		Links: map[string]string{"feeds": feedsResourceURI},
	})
}

func resourceContents(uri string, data ResourceData) ([]mcp.ResourceContents, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource data: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
