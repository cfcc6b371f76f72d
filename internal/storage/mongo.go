// ABOUTME: MongoDB storage implementation using the official mongo-driver
// ABOUTME: Unique indexes on feeds.url and items.link back ErrConflict; search uses a text index

package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harper/nexifeed/internal/models"
)

// MongoStore implements the Store interface on MongoDB.
type MongoStore struct {
	client        *mongo.Client
	feeds         *mongo.Collection
	items         *mongo.Collection
	subscriptions *mongo.Collection
}

// NewMongoStore connects to uri, selects database, and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	store := &MongoStore{
		client:        client,
		feeds:         db.Collection("feeds"),
		items:         db.Collection("items"),
		subscriptions: db.Collection("subscriptions"),
	}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.feeds.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "category", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("feeds: %w", err)
	}

	if _, err := s.items.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "link", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "feed_id", Value: 1}, {Key: "pub_date", Value: -1}}},
		{Keys: bson.D{{Key: "title", Value: "text"}, {Key: "content", Value: "text"}}},
	}); err != nil {
		return fmt.Errorf("items: %w", err)
	}

	if _, err := s.subscriptions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "feed_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "feed_id", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("subscriptions: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Feed Operations

func (s *MongoStore) CreateFeed(ctx context.Context, feed *models.Feed) error {
	if _, err := s.feeds.InsertOne(ctx, feed); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert feed %s: %w", feed.URL, ErrConflict)
		}
		return fmt.Errorf("insert feed: %w", err)
	}
	return nil
}

func (s *MongoStore) GetFeed(ctx context.Context, id string) (*models.Feed, error) {
	return s.findFeed(ctx, bson.M{"_id": id})
}

func (s *MongoStore) GetFeedByURL(ctx context.Context, url string) (*models.Feed, error) {
	return s.findFeed(ctx, bson.M{"url": url})
}

func (s *MongoStore) findFeed(ctx context.Context, filter bson.M) (*models.Feed, error) {
	var feed models.Feed
	if err := s.feeds.FindOne(ctx, filter).Decode(&feed); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("feed: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("find feed: %w", err)
	}
	return &feed, nil
}

func (s *MongoStore) ListFeeds(ctx context.Context, filter *FeedFilter) ([]*models.Feed, error) {
	query := bson.M{}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if filter != nil {
		if search := strings.TrimSpace(filter.Search); search != "" {
			pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
			query["$or"] = bson.A{bson.M{"title": pattern}, bson.M{"url": pattern}}
		}
		applyPaging(opts, filter.Limit, filter.Offset)
	}

	cursor, err := s.feeds.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	var feeds []*models.Feed
	if err := cursor.All(ctx, &feeds); err != nil {
		return nil, fmt.Errorf("decode feeds: %w", err)
	}
	return feeds, nil
}

func (s *MongoStore) UpdateFeed(ctx context.Context, feed *models.Feed) error {
	feed.UpdatedAt = time.Now().UTC()
	result, err := s.feeds.UpdateByID(ctx, feed.ID, bson.M{"$set": bson.M{
		"title":       feed.Title,
		"description": feed.Description,
		"image":       feed.Image,
		"category":    feed.Category,
		"updated_at":  feed.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update feed: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("feed %s: %w", feed.ID, ErrNotFound)
	}
	return nil
}

// DeleteFeed removes the feed, then its items and subscriptions.
func (s *MongoStore) DeleteFeed(ctx context.Context, id string) error {
	result, err := s.feeds.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("feed %s: %w", id, ErrNotFound)
	}
	if _, err := s.items.DeleteMany(ctx, bson.M{"feed_id": id}); err != nil {
		return fmt.Errorf("delete feed items: %w", err)
	}
	if _, err := s.subscriptions.DeleteMany(ctx, bson.M{"feed_id": id}); err != nil {
		return fmt.Errorf("delete feed subscriptions: %w", err)
	}
	return nil
}

// Item Operations

func (s *MongoStore) CreateItem(ctx context.Context, item *models.Item) error {
	if _, err := s.items.InsertOne(ctx, item); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert item %s: %w", item.Link, ErrConflict)
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *MongoStore) ItemExists(ctx context.Context, link string) (bool, error) {
	count, err := s.items.CountDocuments(ctx, bson.M{"link": link}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check item exists: %w", err)
	}
	return count > 0, nil
}

func (s *MongoStore) GetItem(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	if err := s.items.FindOne(ctx, bson.M{"_id": id}).Decode(&item); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("item: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("find item: %w", err)
	}
	return &item, nil
}

func (s *MongoStore) ListItems(ctx context.Context, filter *ItemFilter) ([]*models.Item, error) {
	search := ""
	if filter != nil {
		search = filter.Search
	}
	query, err := s.itemQuery(ctx, filter, search)
	if err != nil || query == nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "pub_date", Value: -1}, {Key: "_id", Value: -1}})
	if filter != nil {
		applyPaging(opts, filter.Limit, filter.Offset)
	}
	return s.findItems(ctx, query, opts)
}

func (s *MongoStore) SearchItems(ctx context.Context, query string, filter *ItemFilter) ([]*models.Item, error) {
	if len(searchTerms(query)) == 0 {
		return nil, nil
	}
	mq, err := s.itemQuery(ctx, filter, query)
	if err != nil || mq == nil {
		return nil, err
	}

	score := bson.M{"$meta": "textScore"}
	opts := options.Find().
		SetProjection(bson.M{"score": score}).
		SetSort(bson.D{{Key: "score", Value: score}})
	if filter != nil {
		applyPaging(opts, filter.Limit, filter.Offset)
	}
	return s.findItems(ctx, mq, opts)
}

// itemQuery builds the item filter document. A nil result with nil error
// means the category matches no feeds, so nothing can match.
func (s *MongoStore) itemQuery(ctx context.Context, filter *ItemFilter, search string) (bson.M, error) {
	query := bson.M{}
	if terms := searchTerms(search); len(terms) > 0 {
		query["$text"] = bson.M{"$search": strings.Join(terms, " ")}
	}
	if filter == nil {
		return query, nil
	}

	feedIDs := filter.FeedIDs
	if filter.Category != "" {
		ids, err := s.feedIDsInCategory(ctx, filter.Category)
		if err != nil {
			return nil, err
		}
		if len(feedIDs) > 0 {
			ids = intersect(feedIDs, ids)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		feedIDs = ids
	}
	if len(feedIDs) > 0 {
		query["feed_id"] = bson.M{"$in": feedIDs}
	}
	return query, nil
}

func (s *MongoStore) feedIDsInCategory(ctx context.Context, category models.Category) ([]string, error) {
	values, err := s.feeds.Distinct(ctx, "_id", bson.M{"category": category})
	if err != nil {
		return nil, fmt.Errorf("feeds in category: %w", err)
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MongoStore) findItems(ctx context.Context, query bson.M, opts *options.FindOptions) ([]*models.Item, error) {
	cursor, err := s.items.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	var items []*models.Item
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}

// Subscription Operations

func (s *MongoStore) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if _, err := s.GetFeed(ctx, sub.FeedID); err != nil {
		return fmt.Errorf("subscribe to feed %s: %w", sub.FeedID, err)
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	_, err := s.subscriptions.UpdateOne(ctx,
		bson.M{"user_id": sub.UserID, "feed_id": sub.FeedID},
		bson.M{
			"$set":         bson.M{"notifications": sub.Notifications, "ai_trigger": sub.AITrigger},
			"$setOnInsert": bson.M{"created_at": sub.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *MongoStore) ListUserSubscriptions(ctx context.Context, userID string) ([]*models.Subscription, error) {
	return s.findSubscriptions(ctx, bson.M{"user_id": userID})
}

func (s *MongoStore) ListFeedSubscribers(ctx context.Context, feedID string, filter SubscriberFilter) ([]*models.Subscription, error) {
	query := bson.M{"feed_id": feedID}
	if filter.NotificationsOnly {
		query["notifications"] = true
	}
	if filter.AITriggerOnly {
		query["ai_trigger"] = true
	}
	return s.findSubscriptions(ctx, query)
}

func (s *MongoStore) findSubscriptions(ctx context.Context, query bson.M) ([]*models.Subscription, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.subscriptions.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	var subs []*models.Subscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	return subs, nil
}

// Helper functions

func applyPaging(opts *options.FindOptions, limit, offset int) {
	if limit > 0 {
		opts.SetLimit(int64(limit))
		if offset > 0 {
			opts.SetSkip(int64(offset))
		}
	}
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

var _ Store = (*MongoStore)(nil)
