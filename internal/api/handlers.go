// ABOUTME: HTTP handlers for ingestion, catalog queries, subscriptions, and OPML
// ABOUTME: Request bodies are JSON; query strings carry paging and filters

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harper/nexifeed/internal/catalog"
	"github.com/harper/nexifeed/internal/ingest"
	"github.com/harper/nexifeed/internal/models"
)

type fetchRequest struct {
	URL      string `json:"url" binding:"required"`
	Category string `json:"category"`
	MaxItems int    `json:"maxItems"`
}

type addFeedRequest struct {
	FeedID        string `json:"feedId" binding:"required"`
	Notifications bool   `json:"notifications"`
	AITrigger     bool   `json:"aiTrigger"`
}

type categoryRequest struct {
	Category string `json:"category" binding:"required"`
}

type searchRequest struct {
	Query    string `json:"query" binding:"required"`
	Category string `json:"category"`
	Limit    int    `json:"limit"`
}

type importRequest struct {
	XML string `json:"xml" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) fetchFeed(c *gin.Context) {
	var req fetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	category, err := models.ParseCategory(req.Category)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := s.opts.Ingester.FetchAndSave(c.Request.Context(), req.URL, ingest.Options{
		UserID:   currentUser(c),
		Category: category,
		MaxItems: req.MaxItems,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) fetchAll(c *gin.Context) {
	feeds, err := s.opts.Catalog.AllFeeds(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.opts.Ingester.FetchAll(c.Request.Context(), feeds))
}

func (s *Server) fetchAllForUser(c *gin.Context) {
	feeds, err := s.opts.Catalog.UserFeeds(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.opts.Ingester.FetchAll(c.Request.Context(), feeds))
}

func (s *Server) addFeed(c *gin.Context) {
	var req addFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sub, err := s.opts.Catalog.Subscribe(c.Request.Context(), currentUser(c), req.FeedID, req.Notifications, req.AITrigger)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) listFeeds(c *gin.Context) {
	feeds, err := s.opts.Catalog.ListFeeds(c.Request.Context(), catalog.FeedQuery{
		Search: c.Query("search"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNilFeeds(feeds))
}

func (s *Server) userFeeds(c *gin.Context) {
	feeds, err := s.opts.Catalog.UserFeeds(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNilFeeds(feeds))
}

func (s *Server) getFeed(c *gin.Context) {
	feed, err := s.opts.Catalog.GetFeed(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (s *Server) updateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	feed, err := s.opts.Catalog.UpdateCategory(c.Request.Context(), c.Param("id"), req.Category)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (s *Server) deleteFeed(c *gin.Context) {
	feed, err := s.opts.Catalog.DeleteFeed(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "feed": feed})
}

func (s *Server) listItems(c *gin.Context) {
	q, ok := itemQuery(c)
	if !ok {
		return
	}
	s.writeItems(c, q)
}

func (s *Server) userItems(c *gin.Context) {
	q, ok := itemQuery(c)
	if !ok {
		return
	}
	ids, err := s.opts.Catalog.UserFeedIDs(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if len(ids) == 0 {
		c.JSON(http.StatusOK, []*models.Item{})
		return
	}
	if len(q.FeedIDs) > 0 {
		q.FeedIDs = intersect(q.FeedIDs, ids)
		if len(q.FeedIDs) == 0 {
			c.JSON(http.StatusOK, []*models.Item{})
			return
		}
	} else {
		q.FeedIDs = ids
	}
	s.writeItems(c, q)
}

func (s *Server) writeItems(c *gin.Context, q catalog.ItemQuery) {
	items, err := s.opts.Catalog.ListItems(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNilItems(items))
}

func (s *Server) getItem(c *gin.Context) {
	item, err := s.opts.Catalog.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) replayItem(c *gin.Context) {
	item, err := s.opts.Catalog.ReplayItemEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"replayed": true, "itemId": item.ID})
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	category, err := models.ParseCategory(req.Category)
	if err != nil {
		writeError(c, err)
		return
	}
	items, err := s.opts.Catalog.Search(c.Request.Context(), catalog.SearchQuery{
		Query:    req.Query,
		Category: category,
		Limit:    req.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNilItems(items))
}

func (s *Server) importOPML(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.opts.OPML.Import(c.Request.Context(), req.XML, currentUser(c)))
}

func (s *Server) exportOPML(c *gin.Context) {
	data, err := s.opts.OPML.Export(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="nexifeed.opml"`)
	c.Data(http.StatusOK, "text/x-opml; charset=utf-8", data)
}

func itemQuery(c *gin.Context) (catalog.ItemQuery, bool) {
	category, err := models.ParseCategory(c.Query("category"))
	if err != nil {
		writeError(c, err)
		return catalog.ItemQuery{}, false
	}
	var feedIDs []string
	for _, id := range strings.Split(c.Query("feedId"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			feedIDs = append(feedIDs, id)
		}
	}
	return catalog.ItemQuery{
		FeedIDs:  feedIDs,
		Category: category,
		Search:   c.Query("search"),
		Page:     queryInt(c, "page"),
		Limit:    queryInt(c, "limit"),
	}, true
}

// queryInt reads an integer query parameter; absent or malformed is zero,
// which the catalog turns into its default.
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	var out []string
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}

func nonNilFeeds(feeds []*models.Feed) []*models.Feed {
	if feeds == nil {
		return []*models.Feed{}
	}
	return feeds
}

func nonNilItems(items []*models.Item) []*models.Item {
	if items == nil {
		return []*models.Item{}
	}
	return items
}
