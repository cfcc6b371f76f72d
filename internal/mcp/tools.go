// ABOUTME: MCP tool definitions and handlers
// ABOUTME: Implements feed fetching, feed listing, item listing, item reading, and full-text search

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/harper/nexifeed/internal/catalog"
	"github.com/harper/nexifeed/internal/content"
	"github.com/harper/nexifeed/internal/ingest"
	"github.com/harper/nexifeed/internal/models"
)

// ListFeedsInput pages through stored feeds.
type ListFeedsInput struct {
	Search string `json:"search,omitempty"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// FeedOutput is a feed as shown to agents.
type FeedOutput struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFeedsOutput wraps a page of feeds.
type ListFeedsOutput struct {
	Feeds []FeedOutput `json:"feeds"`
	Count int          `json:"count"`
}

// FetchFeedInput names a feed to ingest.
type FetchFeedInput struct {
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
	MaxItems int    `json:"max_items,omitempty"`
}

// FetchFeedOutput reports the ingestion counts.
type FetchFeedOutput struct {
	URL        string `json:"url"`
	NewItems   int    `json:"new_items"`
	TotalItems int    `json:"total_items"`
}

// ListItemsInput filters stored items.
type ListItemsInput struct {
	FeedID   string `json:"feed_id,omitempty"`
	Category string `json:"category,omitempty"`
	Search   string `json:"search,omitempty"`
	Page     int    `json:"page,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ItemOutput is an item summary without its full content.
type ItemOutput struct {
	ID      string    `json:"id"`
	FeedID  string    `json:"feed_id"`
	Title   string    `json:"title"`
	Link    string    `json:"link"`
	PubDate time.Time `json:"pub_date"`
	Excerpt string    `json:"excerpt,omitempty"`
}

// ListItemsOutput wraps a page of items.
type ListItemsOutput struct {
	Items []ItemOutput `json:"items"`
	Count int          `json:"count"`
}

// GetItemInput identifies one item.
type GetItemInput struct {
	ItemID string `json:"item_id"`
}

// GetItemOutput is a single item with Markdown content.
type GetItemOutput struct {
	ID        string    `json:"id"`
	FeedID    string    `json:"feed_id"`
	FeedTitle string    `json:"feed_title"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	PubDate   time.Time `json:"pub_date"`
	Image     string    `json:"image,omitempty"`
	AudioURL  string    `json:"audio_url,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchItemsInput is a full-text query.
type SearchItemsInput struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

func (s *Server) registerTools() {
	s.registerListFeedsTool()
	s.registerFetchFeedTool()
	s.registerListItemsTool()
	s.registerGetItemTool()
	s.registerSearchItemsTool()
}

func (s *Server) registerListFeedsTool() {
	tool := mcp.Tool{
		Name:        "list_feeds",
		Description: "List stored feeds with their IDs, URLs, titles, and categories. Supports an optional title or URL search and paging. Use the returned IDs with list_items.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"search": map[string]interface{}{
					"type":        "string",
					"description": "Optional case-insensitive match against title and URL. Example: 'golang'",
				},
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "1-based page number. Default: 1",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Page size, at most 100. Default: 20",
				},
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handleListFeeds)
}

func (s *Server) registerFetchFeedTool() {
	tool := mcp.Tool{
		Name:        "fetch_feed",
		Description: "Fetch an RSS/Atom/YouTube/podcast feed by URL and store any new items. A feed seen for the first time is created. Items already stored are skipped, so calling this repeatedly is safe. Returns how many items were new.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "The feed URL. Example: 'https://example.com/feed.xml'",
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Optional category: YOUTUBE, PODCAST, VIDEO, BLOG, or UNKNOWN",
				},
				"max_items": map[string]interface{}{
					"type":        "integer",
					"description": "Only consider the first N items of the document. Default: 3",
				},
			},
			Required: []string{"url"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleFetchFeed)
}

func (s *Server) registerListItemsTool() {
	tool := mcp.Tool{
		Name:        "list_items",
		Description: "List stored items newest first. Filter by feed ID, category, or a search string. Returns short excerpts; use get_item to read the full content.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"feed_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional feed ID from list_feeds",
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Optional category filter: YOUTUBE, PODCAST, VIDEO, BLOG, or UNKNOWN",
				},
				"search": map[string]interface{}{
					"type":        "string",
					"description": "Optional case-insensitive match against title and content",
				},
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "1-based page number. Default: 1",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Page size, at most 100. Default: 20",
				},
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handleListItems)
}

func (s *Server) registerGetItemTool() {
	tool := mcp.Tool{
		Name:        "get_item",
		Description: "Get a single item including its full content. HTML content is converted to Markdown.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"item_id": map[string]interface{}{
					"type":        "string",
					"description": "The item ID from list_items or search_items",
				},
			},
			Required: []string{"item_id"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleGetItem)
}

func (s *Server) registerSearchItemsTool() {
	tool := mcp.Tool{
		Name:        "search_items",
		Description: "Full-text search over item titles and content, ordered by relevance. Optionally restrict to one category.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search terms. Example: 'kubernetes release'",
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Optional category filter",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum results, at most 100. Default: 20",
				},
			},
			Required: []string{"query"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleSearchItems)
}

func (s *Server) handleListFeeds(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ListFeedsInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	feeds, err := s.catalog.ListFeeds(ctx, catalog.FeedQuery{
		Search: input.Search,
		Page:   input.Page,
		Limit:  input.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}

	out := ListFeedsOutput{Feeds: make([]FeedOutput, 0, len(feeds))}
	for _, f := range feeds {
		out.Feeds = append(out.Feeds, feedOutput(f))
	}
	out.Count = len(out.Feeds)
	return jsonResult(out)
}

func (s *Server) handleFetchFeed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input FetchFeedInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	url := strings.TrimSpace(input.URL)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	category, err := models.ParseCategory(input.Category)
	if err != nil {
		return nil, err
	}

	res, err := s.ingester.FetchAndSave(ctx, url, ingest.Options{
		Category: category,
		MaxItems: input.MaxItems,
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"url":       url,
		"new_items": res.NewItems,
	}).Info("fetched feed via mcp")

	return jsonResult(FetchFeedOutput{
		URL:        url,
		NewItems:   res.NewItems,
		TotalItems: res.TotalItems,
	})
}

func (s *Server) handleListItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ListItemsInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	category, err := models.ParseCategory(input.Category)
	if err != nil {
		return nil, err
	}

	q := catalog.ItemQuery{
		Category: category,
		Search:   input.Search,
		Page:     input.Page,
		Limit:    input.Limit,
	}
	if input.FeedID != "" {
		q.FeedIDs = []string{input.FeedID}
	}
	items, err := s.catalog.ListItems(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return jsonResult(itemsOutput(items))
}

func (s *Server) handleGetItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input GetItemInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if input.ItemID == "" {
		return nil, fmt.Errorf("item_id is required")
	}

	item, err := s.catalog.GetItem(ctx, input.ItemID)
	if err != nil {
		return nil, fmt.Errorf("item not found: %s", input.ItemID)
	}

	feedTitle := item.FeedID
	if feed, err := s.catalog.GetFeed(ctx, item.FeedID); err == nil {
		feedTitle = feed.DisplayTitle()
	}

	out := GetItemOutput{
		ID:        item.ID,
		FeedID:    item.FeedID,
		FeedTitle: feedTitle,
		Title:     item.Title,
		Link:      item.Link,
		PubDate:   item.PubDate,
		Image:     item.Image,
		Content:   content.ToMarkdown(item.Content),
		CreatedAt: item.CreatedAt,
	}
	if item.AudioInfo != nil {
		out.AudioURL = item.AudioInfo.URL
	}
	return jsonResult(out)
}

func (s *Server) handleSearchItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SearchItemsInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	category, err := models.ParseCategory(input.Category)
	if err != nil {
		return nil, err
	}

	items, err := s.catalog.Search(ctx, catalog.SearchQuery{
		Query:    input.Query,
		Category: category,
		Limit:    input.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return jsonResult(itemsOutput(items))
}

func feedOutput(f *models.Feed) FeedOutput {
	return FeedOutput{
		ID:        f.ID,
		URL:       f.URL,
		Title:     f.Title,
		Category:  string(f.Category),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func itemsOutput(items []*models.Item) ListItemsOutput {
	out := ListItemsOutput{Items: make([]ItemOutput, 0, len(items))}
	for _, it := range items {
		out.Items = append(out.Items, ItemOutput{
			ID:      it.ID,
			FeedID:  it.FeedID,
			Title:   it.Title,
			Link:    it.Link,
			PubDate: it.PubDate,
			Excerpt: excerpt(it.Content),
		})
	}
	out.Count = len(out.Items)
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

const excerptRunes = 200

func excerpt(html string) string {
	text := []rune(content.Snippet(html))
	if len(text) <= excerptRunes {
		return string(text)
	}
	return strings.TrimSpace(string(text[:excerptRunes])) + "..."
}
