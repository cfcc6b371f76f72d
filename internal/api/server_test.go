// ABOUTME: End-to-end tests for the HTTP API
// ABOUTME: Runs real ingestion against fixture feeds with a SQLite store behind gin

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/nexifeed/internal/catalog"
	"github.com/harper/nexifeed/internal/events"
	"github.com/harper/nexifeed/internal/fetch"
	"github.com/harper/nexifeed/internal/importer"
	"github.com/harper/nexifeed/internal/ingest"
	"github.com/harper/nexifeed/internal/logging"
	"github.com/harper/nexifeed/internal/metrics"
	"github.com/harper/nexifeed/internal/models"
	"github.com/harper/nexifeed/internal/parse"
	"github.com/harper/nexifeed/internal/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const (
	aliceToken = "alice-token"
	bobToken   = "bob-token"
)

type testEnv struct {
	handler http.Handler
	store   *storage.SQLiteStore
	feedURL string
	mu      sync.Mutex
	created []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	env.store = store

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "upstream down", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>API Fixture</title><description>fixture</description>
<item><title>First</title><link>https://api.example.com/1</link><description>golang release notes</description><pubDate>Mon, 01 Apr 2024 10:00:00 +0000</pubDate></item>
<item><title>Second</title><link>https://api.example.com/2</link><description>baking bread</description><pubDate>Sun, 31 Mar 2024 10:00:00 +0000</pubDate></item>
</channel></rss>`)
	}))
	t.Cleanup(feedSrv.Close)
	env.feedURL = feedSrv.URL + "/feed"

	logger := logging.Discard()
	bus := events.NewBus(logger, events.Subscription{
		Name:  "recorder",
		Topic: events.TopicItemCreated,
		Handler: func(ctx context.Context, ev events.Event) error {
			env.mu.Lock()
			defer env.mu.Unlock()
			env.created = append(env.created, ev.Payload.(events.ItemCreated).Item.Link)
			return nil
		},
	})
	cat := catalog.NewService(store, bus, logger)
	ing := ingest.NewService(parse.NewSource(fetch.New(5*time.Second)), store, bus,
		ingest.WithRegistrar(cat), ingest.WithLogger(logger))
	reg := prometheus.NewRegistry()

	env.handler = NewServer(Options{
		Ingester: ing,
		Catalog:  cat,
		OPML:     importer.New(ing, cat, 0, logger),
		Tokens:   map[string]string{aliceToken: "alice", bobToken: "bob"},
		Logger:   logger,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
	}).Handler()
	return env
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func (env *testEnv) fetch(t *testing.T) {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/rss-feed/fetch", aliceToken, map[string]any{"url": env.feedURL, "category": "blog"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	env.do(t, http.MethodGet, "/rss-feed/feeds", aliceToken, nil)
	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nexifeed_http_requests_total")
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/rss-feed/feeds", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/rss-feed/feeds", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", decode[map[string]string](t, rec)["error"])
}

func TestFetchFeed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/rss-feed/fetch", aliceToken, map[string]any{"url": env.feedURL, "category": "podcast", "maxItems": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ingest.Result{NewItems: 1, TotalItems: 1}, decode[ingest.Result](t, rec))

	rec = env.do(t, http.MethodPost, "/rss-feed/fetch", aliceToken, map[string]any{"url": env.feedURL})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ingest.Result{NewItems: 1, TotalItems: 2}, decode[ingest.Result](t, rec))
	assert.Equal(t, []string{"https://api.example.com/1", "https://api.example.com/2"}, env.created)

	feed, err := env.store.GetFeedByURL(context.Background(), env.feedURL)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryPodcast, feed.Category)

	subs, err := env.store.ListUserSubscriptions(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, subs, 1, "creator is subscribed")
	assert.Equal(t, feed.ID, subs[0].FeedID)
}

func TestFetchFeed_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"bad json", "{not json", http.StatusBadRequest},
		{"missing url", map[string]any{}, http.StatusBadRequest},
		{"unknown category", map[string]any{"url": env.feedURL, "category": "news"}, http.StatusBadRequest},
		{"upstream failure", map[string]any{"url": strings.TrimSuffix(env.feedURL, "/feed") + "/broken"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/rss-feed/fetch", aliceToken, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestFetchAll(t *testing.T) {
	env := newTestEnv(t)
	env.fetch(t)

	rec := env.do(t, http.MethodPost, "/rss-feed/fetch-all", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	updates := decode[[]ingest.FeedUpdate](t, rec)
	require.Len(t, updates, 1)
	assert.Equal(t, env.feedURL, updates[0].Feed.URL)
	require.NotNil(t, updates[0].Update)
	assert.Equal(t, 0, updates[0].Update.NewItems)

	rec = env.do(t, http.MethodPost, "/rss-feed/user/fetch-all", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]ingest.FeedUpdate](t, rec), "bob subscribes to nothing")

	rec = env.do(t, http.MethodPost, "/rss-feed/user/fetch-all", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ingest.FeedUpdate](t, rec), 1)
}

func TestAddFeedAndUserViews(t *testing.T) {
	env := newTestEnv(t)
	env.fetch(t)
	feed, err := env.store.GetFeedByURL(context.Background(), env.feedURL)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/rss-feed/user/items", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Item](t, rec))

	rec = env.do(t, http.MethodPost, "/rss-feed/user/add-feed", bobToken, map[string]any{"feedId": feed.ID, "notifications": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sub := decode[models.Subscription](t, rec)
	assert.Equal(t, "bob", sub.UserID)
	assert.True(t, sub.Notifications)

	rec = env.do(t, http.MethodGet, "/rss-feed/user/feeds", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Feed](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/rss-feed/user/items?limit=1", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Item](t, rec), 1)

	rec = env.do(t, http.MethodPost, "/rss-feed/user/add-feed", bobToken, map[string]any{"feedId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.fetch(t)
	feed, err := env.store.GetFeedByURL(context.Background(), env.feedURL)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/rss-feed/feeds?search=fixture", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Feed](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/rss-feed/feeds/"+feed.ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "API Fixture", decode[models.Feed](t, rec).Title)

	rec = env.do(t, http.MethodGet, "/rss-feed/feeds/missing", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/rss-feed/feeds/"+feed.ID+"/category", aliceToken, map[string]any{"category": "VIDEO"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.CategoryVideo, decode[models.Feed](t, rec).Category)

	rec = env.do(t, http.MethodPut, "/rss-feed/feeds/"+feed.ID+"/category", aliceToken, map[string]any{"category": "NEWS"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/rss-feed/feeds/"+url.PathEscape(env.feedURL), aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode[map[string]any](t, rec)["deleted"])

	rec = env.do(t, http.MethodDelete, "/rss-feed/feeds/"+feed.ID, aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestItemEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.fetch(t)

	rec := env.do(t, http.MethodGet, "/rss-feed/items?category=BLOG", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]models.Item](t, rec)
	require.Len(t, items, 2)
	assert.Equal(t, "First", items[0].Title, "newest first")

	rec = env.do(t, http.MethodGet, "/rss-feed/items?category=VIDEO", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Item](t, rec))

	rec = env.do(t, http.MethodGet, "/rss-feed/items/"+items[1].ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://api.example.com/2", decode[models.Item](t, rec).Link)

	rec = env.do(t, http.MethodPost, "/rss-feed/search", aliceToken, map[string]any{"query": "golang"})
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[[]models.Item](t, rec)
	require.Len(t, found, 1)
	assert.Equal(t, "First", found[0].Title)

	rec = env.do(t, http.MethodPost, "/rss-feed/search", aliceToken, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/rss-feed/items/"+items[0].ID+"/replay", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.created, 3, "replay republishes item.created")

	rec = env.do(t, http.MethodPost, "/rss-feed/items/missing/replay", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportExport(t *testing.T) {
	env := newTestEnv(t)

	doc := fmt.Sprintf(`<opml version="1.0"><head><title>x</title></head><body><outline text="feeds">
<outline text="Fixture" type="rss" xmlUrl="%s" category="BLOG"/>
</outline></body></opml>`, env.feedURL)

	rec := env.do(t, http.MethodPost, "/import", aliceToken, map[string]any{"xml": doc})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	feeds := decode[[]map[string]any](t, rec)
	require.Len(t, feeds, 1)
	assert.Equal(t, env.feedURL, feeds[0]["feedUrl"])
	assert.Len(t, env.created, 2, "import pulls up to 25 items")

	rec = env.do(t, http.MethodPost, "/import", aliceToken, map[string]any{"xml": "<opml"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = env.do(t, http.MethodGet, "/export", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/x-opml")
	assert.Contains(t, rec.Body.String(), "NexiRSS Feeds")
	assert.Contains(t, rec.Body.String(), env.feedURL)

	rec = env.do(t, http.MethodGet, "/export", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), env.feedURL, "export is scoped to the caller's subscriptions")
}
