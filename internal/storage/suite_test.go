// ABOUTME: Backend-agnostic conformance tests shared by every Store implementation
// ABOUTME: Covers CRUD, unique-index conflicts, cascades, filtering, search, and subscriptions

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/nexifeed/internal/models"
)

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("FeedCRUD", func(t *testing.T) { testFeedCRUD(t, newStore(t)) })
	t.Run("FeedConflict", func(t *testing.T) { testFeedConflict(t, newStore(t)) })
	t.Run("ItemCRUD", func(t *testing.T) { testItemCRUD(t, newStore(t)) })
	t.Run("ItemConflict", func(t *testing.T) { testItemConflict(t, newStore(t)) })
	t.Run("ConcurrentItemInsert", func(t *testing.T) { testConcurrentItemInsert(t, newStore(t)) })
	t.Run("ListItemsFilters", func(t *testing.T) { testListItemsFilters(t, newStore(t)) })
	t.Run("Search", func(t *testing.T) { testSearch(t, newStore(t)) })
	t.Run("Subscriptions", func(t *testing.T) { testSubscriptions(t, newStore(t)) })
	t.Run("DeleteCascade", func(t *testing.T) { testDeleteCascade(t, newStore(t)) })
}

func mustCreateFeed(t *testing.T, store Store, url string, category models.Category) *models.Feed {
	t.Helper()
	feed := models.NewFeed(url)
	feed.Title = "Feed " + url
	feed.Category = category
	require.NoError(t, store.CreateFeed(context.Background(), feed))
	return feed
}

func mustCreateItem(t *testing.T, store Store, feedID, link, title, content string, pub time.Time) *models.Item {
	t.Helper()
	item := models.NewItem(feedID, title, link)
	item.Content = content
	item.PubDate = pub
	require.NoError(t, store.CreateItem(context.Background(), item))
	return item
}

func testFeedCRUD(t *testing.T, store Store) {
	ctx := context.Background()
	feed := models.NewFeed("https://example.com/feed.xml")
	feed.Title = "Example Feed"
	feed.Description = "About things"
	feed.Image = "https://example.com/logo.png"
	feed.Category = models.CategoryBlog
	require.NoError(t, store.CreateFeed(ctx, feed))

	got, err := store.GetFeed(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, feed.URL, got.URL)
	assert.Equal(t, "Example Feed", got.Title)
	assert.Equal(t, "About things", got.Description)
	assert.Equal(t, models.CategoryBlog, got.Category)

	got, err = store.GetFeedByURL(ctx, feed.URL)
	require.NoError(t, err)
	assert.Equal(t, feed.ID, got.ID)

	got.Category = models.CategoryPodcast
	require.NoError(t, store.UpdateFeed(ctx, got))
	got, err = store.GetFeed(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryPodcast, got.Category)
	assert.Equal(t, "Example Feed", got.Title, "update must not touch unrelated fields")

	mustCreateFeed(t, store, "https://other.example.org/rss", "")
	feeds, err := store.ListFeeds(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, feeds, 2)

	feeds, err = store.ListFeeds(ctx, &FeedFilter{Search: "OTHER"})
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "https://other.example.org/rss", feeds[0].URL)

	feeds, err = store.ListFeeds(ctx, &FeedFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, feeds, 1)

	_, err = store.GetFeed(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)

	missing := models.NewFeed("https://nowhere.example.com")
	assert.True(t, errors.Is(store.UpdateFeed(ctx, missing), ErrNotFound))
	assert.True(t, errors.Is(store.DeleteFeed(ctx, missing.ID), ErrNotFound))
}

func testFeedConflict(t *testing.T, store Store) {
	mustCreateFeed(t, store, "https://example.com/dup.xml", "")
	err := store.CreateFeed(context.Background(), models.NewFeed("https://example.com/dup.xml"))
	assert.True(t, errors.Is(err, ErrConflict), "expected ErrConflict, got %v", err)
}

func testItemCRUD(t *testing.T, store Store) {
	ctx := context.Background()
	feed := mustCreateFeed(t, store, "https://example.com/podcast.xml", models.CategoryPodcast)

	item := models.NewItem(feed.ID, "Episode 1", "https://example.com/ep/1")
	item.Content = "<p>notes</p>"
	item.Image = "https://example.com/ep1.jpg"
	item.PubDate = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	item.AudioInfo = &models.AudioInfo{Length: 42, Type: "audio/mpeg", URL: "https://cdn/ep1.mp3"}
	require.NoError(t, store.CreateItem(ctx, item))

	exists, err := store.ItemExists(ctx, item.Link)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ItemExists(ctx, "https://example.com/ep/unknown")
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Title, got.Title)
	assert.Equal(t, item.Link, got.Link)
	assert.Equal(t, feed.ID, got.FeedID)
	assert.Equal(t, item.Content, got.Content)
	assert.Equal(t, item.Image, got.Image)
	assert.True(t, item.PubDate.Equal(got.PubDate), "pub date %v != %v", got.PubDate, item.PubDate)
	require.NotNil(t, got.AudioInfo)
	assert.Equal(t, *item.AudioInfo, *got.AudioInfo)

	plain := mustCreateItem(t, store, feed.ID, "https://example.com/ep/2", "Episode 2", "", time.Now())
	got, err = store.GetItem(ctx, plain.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AudioInfo)

	_, err = store.GetItem(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func testItemConflict(t *testing.T, store Store) {
	feed := mustCreateFeed(t, store, "https://example.com/feed.xml", "")
	mustCreateItem(t, store, feed.ID, "https://example.com/a", "A", "", time.Now())

	dup := models.NewItem(feed.ID, "A again", "https://example.com/a")
	dup.PubDate = time.Now()
	err := store.CreateItem(context.Background(), dup)
	assert.True(t, errors.Is(err, ErrConflict), "expected ErrConflict, got %v", err)
}

func testConcurrentItemInsert(t *testing.T, store Store) {
	feed := mustCreateFeed(t, store, "https://example.com/race.xml", "")

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := models.NewItem(feed.ID, fmt.Sprintf("writer %d", i), "https://example.com/race/1")
			item.PubDate = time.Now()
			errs[i] = store.CreateItem(context.Background(), item)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)

	items, err := store.ListItems(context.Background(), &ItemFilter{FeedIDs: []string{feed.ID}})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func testListItemsFilters(t *testing.T, store Store) {
	ctx := context.Background()
	blog := mustCreateFeed(t, store, "https://blog.example.com/rss", models.CategoryBlog)
	pod := mustCreateFeed(t, store, "https://pod.example.com/rss", models.CategoryPodcast)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	b1 := mustCreateItem(t, store, blog.ID, "https://blog.example.com/1", "Blog one", "golang generics", base)
	b2 := mustCreateItem(t, store, blog.ID, "https://blog.example.com/2", "Blog two", "rust ownership", base.Add(time.Hour))
	p1 := mustCreateItem(t, store, pod.ID, "https://pod.example.com/1", "Pod one", "golang podcast", base.Add(2*time.Hour))

	items, err := store.ListItems(ctx, nil)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{p1.ID, b2.ID, b1.ID}, itemIDs(items), "newest first")

	items, err = store.ListItems(ctx, &ItemFilter{FeedIDs: []string{blog.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{b2.ID, b1.ID}, itemIDs(items))

	items, err = store.ListItems(ctx, &ItemFilter{Category: models.CategoryPodcast})
	require.NoError(t, err)
	assert.Equal(t, []string{p1.ID}, itemIDs(items))

	items, err = store.ListItems(ctx, &ItemFilter{Category: models.CategoryVideo})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = store.ListItems(ctx, &ItemFilter{Search: "golang"})
	require.NoError(t, err)
	assert.Equal(t, []string{p1.ID, b1.ID}, itemIDs(items))

	items, err = store.ListItems(ctx, &ItemFilter{Search: "golang", Category: models.CategoryBlog})
	require.NoError(t, err)
	assert.Equal(t, []string{b1.ID}, itemIDs(items))

	items, err = store.ListItems(ctx, &ItemFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{b2.ID, b1.ID}, itemIDs(items))
}

func testSearch(t *testing.T, store Store) {
	ctx := context.Background()
	feed := mustCreateFeed(t, store, "https://example.com/feed.xml", models.CategoryBlog)
	match := mustCreateItem(t, store, feed.ID, "https://example.com/1", "Kubernetes operators", "writing operators in go", time.Now())
	mustCreateItem(t, store, feed.ID, "https://example.com/2", "Sourdough", "bread baking", time.Now())

	items, err := store.SearchItems(ctx, "operators", &ItemFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{match.ID}, itemIDs(items))

	items, err = store.SearchItems(ctx, `"operators" OR`, nil)
	require.NoError(t, err, "query syntax characters must not break search")
	_ = items

	items, err = store.SearchItems(ctx, "   ", nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func testSubscriptions(t *testing.T, store Store) {
	ctx := context.Background()
	feed := mustCreateFeed(t, store, "https://example.com/feed.xml", "")
	other := mustCreateFeed(t, store, "https://example.com/other.xml", "")

	require.NoError(t, store.UpsertSubscription(ctx, &models.Subscription{UserID: "alice", FeedID: feed.ID, Notifications: true}))
	require.NoError(t, store.UpsertSubscription(ctx, &models.Subscription{UserID: "bob", FeedID: feed.ID, AITrigger: true}))
	require.NoError(t, store.UpsertSubscription(ctx, &models.Subscription{UserID: "alice", FeedID: other.ID}))

	subs, err := store.ListUserSubscriptions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	subs, err = store.ListFeedSubscribers(ctx, feed.ID, SubscriberFilter{NotificationsOnly: true})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "alice", subs[0].UserID)

	subs, err = store.ListFeedSubscribers(ctx, feed.ID, SubscriberFilter{AITriggerOnly: true})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "bob", subs[0].UserID)

	// Upsert flips flags without duplicating the row.
	require.NoError(t, store.UpsertSubscription(ctx, &models.Subscription{UserID: "alice", FeedID: feed.ID, Notifications: false}))
	subs, err = store.ListFeedSubscribers(ctx, feed.ID, SubscriberFilter{})
	require.NoError(t, err)
	assert.Len(t, subs, 2)
	subs, err = store.ListFeedSubscribers(ctx, feed.ID, SubscriberFilter{NotificationsOnly: true})
	require.NoError(t, err)
	assert.Empty(t, subs)

	err = store.UpsertSubscription(ctx, &models.Subscription{UserID: "alice", FeedID: "missing"})
	assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
}

func testDeleteCascade(t *testing.T, store Store) {
	ctx := context.Background()
	feed := mustCreateFeed(t, store, "https://example.com/feed.xml", "")
	keep := mustCreateFeed(t, store, "https://example.com/keep.xml", "")
	item := mustCreateItem(t, store, feed.ID, "https://example.com/1", "One", "", time.Now())
	kept := mustCreateItem(t, store, keep.ID, "https://example.com/k", "Kept", "", time.Now())
	require.NoError(t, store.UpsertSubscription(ctx, &models.Subscription{UserID: "alice", FeedID: feed.ID}))

	require.NoError(t, store.DeleteFeed(ctx, feed.ID))

	_, err := store.GetItem(ctx, item.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = store.GetItem(ctx, kept.ID)
	assert.NoError(t, err)

	subs, err := store.ListUserSubscriptions(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, subs)

	exists, err := store.ItemExists(ctx, item.Link)
	require.NoError(t, err)
	assert.False(t, exists, "deleted links can be ingested again")
}

func itemIDs(items []*models.Item) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
