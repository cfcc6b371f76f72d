// ABOUTME: MCP prompt definitions and handlers
// ABOUTME: Provides workflow templates for catching up on stored feed items

package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(
		mcp.Prompt{
			Name:        "catch-up",
			Description: "Refresh feeds and summarize the newest items, optionally for one category",
			Arguments: []mcp.PromptArgument{
				{
					Name:        "category",
					Description: "Optional category to focus on: YOUTUBE, PODCAST, VIDEO, BLOG, or UNKNOWN",
				},
			},
		},
		s.handleCatchUp,
	)
}

func (s *Server) handleCatchUp(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	focus := "all categories"
	filter := ""
	if c := req.Params.Arguments["category"]; c != "" {
		focus = "the " + c + " category"
		filter = fmt.Sprintf(" with category=%q", c)
	}

	template := fmt.Sprintf(`# Catch Up

Summarize what is new across %s.

## Workflow Steps

### Step 1: Review Feeds
Read the nexifeed://feeds resource or call list_feeds to see what is stored.

### Step 2: Refresh
For each feed you care about, call fetch_feed with its URL. The result reports
how many items were new. Feeds that fail to fetch can be skipped.

### Step 3: Scan Items
Call list_items%s to get the newest items with short excerpts.
Use search_items when looking for a specific topic.

### Step 4: Read
Call get_item for the items worth reading in full. Content is returned as Markdown.

### Step 5: Summarize
Group the items by feed and give two or three sentences per notable item,
with its link.
`, focus, filter)

	return &mcp.GetPromptResult{
		Description: "Catch-up workflow for " + focus,
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: template,
				},
			},
		},
	}, nil
}
