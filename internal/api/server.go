// ABOUTME: HTTP API server built on gin with bearer-token authentication
// ABOUTME: Wires routes, request logging, metrics, and graceful shutdown

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/harper/nexifeed/internal/catalog"
	"github.com/harper/nexifeed/internal/ingest"
	"github.com/harper/nexifeed/internal/metrics"
	"github.com/harper/nexifeed/internal/models"
	"github.com/harper/nexifeed/internal/opml"
)

const userIDKey = "userID"

// Ingester triggers feed ingestion.
type Ingester interface {
	FetchAndSave(ctx context.Context, url string, opts ingest.Options) (*ingest.Result, error)
	FetchAll(ctx context.Context, feeds []*models.Feed) []ingest.FeedUpdate
}

// Catalog reads and maintains stored feeds and items.
type Catalog interface {
	ListFeeds(ctx context.Context, q catalog.FeedQuery) ([]*models.Feed, error)
	AllFeeds(ctx context.Context) ([]*models.Feed, error)
	GetFeed(ctx context.Context, id string) (*models.Feed, error)
	ListItems(ctx context.Context, q catalog.ItemQuery) ([]*models.Item, error)
	GetItem(ctx context.Context, id string) (*models.Item, error)
	Search(ctx context.Context, q catalog.SearchQuery) ([]*models.Item, error)
	UpdateCategory(ctx context.Context, feedID, category string) (*models.Feed, error)
	DeleteFeed(ctx context.Context, idOrURL string) (*models.Feed, error)
	Subscribe(ctx context.Context, userID, feedID string, notifications, aiTrigger bool) (*models.Subscription, error)
	UserFeeds(ctx context.Context, userID string) ([]*models.Feed, error)
	UserFeedIDs(ctx context.Context, userID string) ([]string, error)
	ReplayItemEvent(ctx context.Context, itemID string) (*models.Item, error)
}

// OPMLService imports and exports subscription lists.
type OPMLService interface {
	Import(ctx context.Context, xml string, userID string) []opml.Feed
	Export(ctx context.Context, userID string) ([]byte, error)
}

// Options holds the server's collaborators.
type Options struct {
	Ingester Ingester
	Catalog  Catalog
	OPML     OPMLService
	Tokens   map[string]string // bearer token -> user ID
	Logger   logrus.FieldLogger
	Metrics  *metrics.Metrics    // optional
	Gatherer prometheus.Gatherer // served on /metrics when set
}

// Server is the HTTP API.
type Server struct {
	engine *gin.Engine
	opts   Options
	logger logrus.FieldLogger
}

// NewServer creates a server with all routes configured. The gin mode is
// left to the caller.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{engine: gin.New(), opts: opts, logger: logger}
	// Feeds can be addressed by URL-escaped URL in path parameters.
	s.engine.UseRawPath = true
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())
	s.setupRoutes()
	return s
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) setupRoutes() {
	r := s.engine

	r.GET("/health", s.health)
	if s.opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	authed := r.Group("/")
	authed.Use(authMiddleware(s.opts.Tokens))
	{
		feeds := authed.Group("/rss-feed")
		feeds.POST("/fetch", s.fetchFeed)
		feeds.POST("/fetch-all", s.fetchAll)
		feeds.GET("/feeds", s.listFeeds)
		feeds.GET("/feeds/:id", s.getFeed)
		feeds.PUT("/feeds/:id/category", s.updateCategory)
		feeds.DELETE("/feeds/:id", s.deleteFeed)
		feeds.GET("/items", s.listItems)
		feeds.GET("/items/:id", s.getItem)
		feeds.POST("/items/:id/replay", s.replayItem)
		feeds.POST("/search", s.search)

		user := feeds.Group("/user")
		user.POST("/fetch-all", s.fetchAllForUser)
		user.POST("/add-feed", s.addFeed)
		user.GET("/feeds", s.userFeeds)
		user.GET("/items", s.userItems)

		authed.POST("/import", s.importOPML)
		authed.GET("/export", s.exportOPML)
	}
}

// authMiddleware resolves "Authorization: Bearer <token>" to a user ID.
func authMiddleware(tokens map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}
		userID, ok := tokens[strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		took := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		entry := s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   status,
			"duration": took.String(),
			"client":   c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		if status >= http.StatusInternalServerError {
			entry.Error("request")
		} else {
			entry.Info("request")
		}

		if s.opts.Metrics != nil {
			s.opts.Metrics.ObserveRequest(c.Request.Method, route, status, took)
		}
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
