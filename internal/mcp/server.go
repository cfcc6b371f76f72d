// ABOUTME: MCP server implementation for nexifeed
// ABOUTME: Exposes feed ingestion and item lookup as tools, resources, and prompts for AI agents

package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/harper/nexifeed/internal/catalog"
	"github.com/harper/nexifeed/internal/ingest"
	"github.com/harper/nexifeed/internal/models"
)

// Catalog is the read side the tools query.
type Catalog interface {
	ListFeeds(ctx context.Context, q catalog.FeedQuery) ([]*models.Feed, error)
	AllFeeds(ctx context.Context) ([]*models.Feed, error)
	GetFeed(ctx context.Context, id string) (*models.Feed, error)
	ListItems(ctx context.Context, q catalog.ItemQuery) ([]*models.Item, error)
	GetItem(ctx context.Context, id string) (*models.Item, error)
	Search(ctx context.Context, q catalog.SearchQuery) ([]*models.Item, error)
}

// Ingester fetches a feed and stores its new items.
type Ingester interface {
	FetchAndSave(ctx context.Context, url string, opts ingest.Options) (*ingest.Result, error)
}

// Server wraps the MCP server with nexifeed-specific context
type Server struct {
	mcpServer *server.MCPServer
	catalog   Catalog
	ingester  Ingester
	logger    logrus.FieldLogger
}

// NewServer creates a new MCP server instance
func NewServer(cat Catalog, ingester Ingester, version string, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		catalog:  cat,
		ingester: ingester,
		logger:   logger,
	}

	s.mcpServer = server.NewMCPServer(
		"nexifeed",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
