// ABOUTME: PostgreSQL storage implementation using a pgx connection pool
// ABOUTME: Unique violations (SQLSTATE 23505) surface as ErrConflict; search uses a tsvector column

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harper/nexifeed/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore implements the Store interface on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the schema if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS feeds (
			id TEXT PRIMARY KEY,
			url TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			feed_id TEXT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			link TEXT UNIQUE NOT NULL,
			pub_date TIMESTAMPTZ NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			audio_url TEXT,
			audio_type TEXT,
			audio_length BIGINT,
			summary TEXT NOT NULL DEFAULT '',
			labels TEXT[] NOT NULL DEFAULT '{}',
			tts_audio TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			search tsvector GENERATED ALWAYS AS (
				to_tsvector('simple', coalesce(title, '') || ' ' || coalesce(content, ''))
			) STORED
		);

		CREATE INDEX IF NOT EXISTS idx_items_feed_id ON items(feed_id);
		CREATE INDEX IF NOT EXISTS idx_items_pub_date ON items(pub_date DESC);
		CREATE INDEX IF NOT EXISTS idx_items_search ON items USING GIN(search);

		CREATE TABLE IF NOT EXISTS subscriptions (
			user_id TEXT NOT NULL,
			feed_id TEXT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
			notifications BOOLEAN NOT NULL DEFAULT FALSE,
			ai_trigger BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, feed_id)
		);

		CREATE INDEX IF NOT EXISTS idx_subscriptions_feed_id ON subscriptions(feed_id);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Feed Operations

func (s *PostgresStore) CreateFeed(ctx context.Context, feed *models.Feed) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feeds (`+feedColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, feed.ID, feed.URL, feed.Title, feed.Description, feed.Image, string(feed.Category),
		feed.CreatedAt.UTC(), feed.UpdatedAt.UTC())
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("insert feed %s: %w", feed.URL, ErrConflict)
		}
		return fmt.Errorf("insert feed: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFeed(ctx context.Context, id string) (*models.Feed, error) {
	return s.scanFeed(s.pool.QueryRow(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id))
}

func (s *PostgresStore) GetFeedByURL(ctx context.Context, url string) (*models.Feed, error) {
	return s.scanFeed(s.pool.QueryRow(ctx, `SELECT `+feedColumns+` FROM feeds WHERE url = $1`, url))
}

func (s *PostgresStore) ListFeeds(ctx context.Context, filter *FeedFilter) ([]*models.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds`
	var args []any
	if filter != nil && strings.TrimSpace(filter.Search) != "" {
		query += ` WHERE title ILIKE $1 OR url ILIKE $1`
		args = append(args, "%"+strings.TrimSpace(filter.Search)+"%")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if filter != nil {
		query += limitClause(filter.Limit, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*models.Feed
	for rows.Next() {
		feed, err := s.scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

func (s *PostgresStore) UpdateFeed(ctx context.Context, feed *models.Feed) error {
	feed.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE feeds SET title = $1, description = $2, image = $3, category = $4, updated_at = $5
		WHERE id = $6
	`, feed.Title, feed.Description, feed.Image, string(feed.Category), feed.UpdatedAt, feed.ID)
	if err != nil {
		return fmt.Errorf("update feed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("feed %s: %w", feed.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteFeed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM feeds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("feed %s: %w", id, ErrNotFound)
	}
	return nil
}

// Item Operations

func (s *PostgresStore) CreateItem(ctx context.Context, item *models.Item) error {
	var audioURL, audioType *string
	var audioLength *int64
	if item.AudioInfo != nil {
		audioURL, audioType, audioLength = &item.AudioInfo.URL, &item.AudioInfo.Type, &item.AudioInfo.Length
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO items (id, feed_id, title, link, pub_date, content, image,
			audio_url, audio_type, audio_length, summary, labels, tts_audio, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, item.ID, item.FeedID, item.Title, item.Link, item.PubDate.UTC(), item.Content, item.Image,
		audioURL, audioType, audioLength, item.Summary, nonNil(item.Labels), item.TTSAudioURL,
		item.CreatedAt.UTC())
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("insert item %s: %w", item.Link, ErrConflict)
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *PostgresStore) ItemExists(ctx context.Context, link string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE link = $1)`, link).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check item exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, id string) (*models.Item, error) {
	return s.scanItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.id = $1`, id))
}

func (s *PostgresStore) ListItems(ctx context.Context, filter *ItemFilter) ([]*models.Item, error) {
	search := ""
	if filter != nil {
		search = filter.Search
	}
	query, args := s.itemQuery(filter, search)
	query += ` ORDER BY i.pub_date DESC, i.id DESC`
	if filter != nil {
		query += limitClause(filter.Limit, filter.Offset)
	}
	return s.queryItems(ctx, query, args...)
}

func (s *PostgresStore) SearchItems(ctx context.Context, query string, filter *ItemFilter) ([]*models.Item, error) {
	if len(searchTerms(query)) == 0 {
		return nil, nil
	}
	sqlQuery, args := s.itemQuery(filter, query)
	sqlQuery += ` ORDER BY ts_rank(i.search, plainto_tsquery('simple', $1)) DESC`
	if filter != nil {
		sqlQuery += limitClause(filter.Limit, filter.Offset)
	}
	return s.queryItems(ctx, sqlQuery, args...)
}

// itemQuery builds the SELECT and WHERE for item listings. When search is
// non-empty it is always bound as $1.
func (s *PostgresStore) itemQuery(filter *ItemFilter, search string) (string, []any) {
	query := `SELECT ` + itemColumns + ` FROM items i`
	var conditions []string
	var args []any

	if strings.TrimSpace(search) != "" {
		args = append(args, strings.Join(searchTerms(search), " "))
		conditions = append(conditions, "i.search @@ plainto_tsquery('simple', $1)")
	}
	if filter != nil {
		if len(filter.FeedIDs) > 0 {
			args = append(args, filter.FeedIDs)
			conditions = append(conditions, fmt.Sprintf("i.feed_id = ANY($%d)", len(args)))
		}
		if filter.Category != "" {
			query += ` INNER JOIN feeds f ON f.id = i.feed_id`
			args = append(args, string(filter.Category))
			conditions = append(conditions, fmt.Sprintf("f.category = $%d", len(args)))
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	return query, args
}

func (s *PostgresStore) queryItems(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := s.scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Subscription Operations

func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (user_id, feed_id, notifications, ai_trigger, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, feed_id) DO UPDATE SET
			notifications = EXCLUDED.notifications,
			ai_trigger = EXCLUDED.ai_trigger
	`, sub.UserID, sub.FeedID, sub.Notifications, sub.AITrigger, sub.CreatedAt.UTC())
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return fmt.Errorf("subscribe to feed %s: %w", sub.FeedID, ErrNotFound)
		}
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUserSubscriptions(ctx context.Context, userID string) ([]*models.Subscription, error) {
	return s.querySubscriptions(ctx, `
		SELECT user_id, feed_id, notifications, ai_trigger, created_at
		FROM subscriptions WHERE user_id = $1 ORDER BY created_at ASC
	`, userID)
}

func (s *PostgresStore) ListFeedSubscribers(ctx context.Context, feedID string, filter SubscriberFilter) ([]*models.Subscription, error) {
	query := `
		SELECT user_id, feed_id, notifications, ai_trigger, created_at
		FROM subscriptions WHERE feed_id = $1
	`
	if filter.NotificationsOnly {
		query += ` AND notifications`
	}
	if filter.AITriggerOnly {
		query += ` AND ai_trigger`
	}
	return s.querySubscriptions(ctx, query+` ORDER BY created_at ASC`, feedID)
}

func (s *PostgresStore) querySubscriptions(ctx context.Context, query, arg string) ([]*models.Subscription, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.UserID, &sub.FeedID, &sub.Notifications, &sub.AITrigger, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// Helper functions

func (s *PostgresStore) scanFeed(row pgx.Row) (*models.Feed, error) {
	var feed models.Feed
	var category string
	if err := row.Scan(
		&feed.ID, &feed.URL, &feed.Title, &feed.Description, &feed.Image, &category,
		&feed.CreatedAt, &feed.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("feed: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	feed.Category = models.Category(category)
	return &feed, nil
}

func (s *PostgresStore) scanItem(row pgx.Row) (*models.Item, error) {
	var item models.Item
	var audioURL, audioType *string
	var audioLength *int64
	if err := row.Scan(
		&item.ID, &item.FeedID, &item.Title, &item.Link, &item.PubDate, &item.Content, &item.Image,
		&audioURL, &audioType, &audioLength, &item.Summary, &item.Labels, &item.TTSAudioURL, &item.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("item: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	if audioURL != nil {
		item.AudioInfo = &models.AudioInfo{URL: *audioURL}
		if audioType != nil {
			item.AudioInfo.Type = *audioType
		}
		if audioLength != nil {
			item.AudioInfo.Length = *audioLength
		}
	}
	if len(item.Labels) == 0 {
		item.Labels = nil
	}
	item.PubDate = item.PubDate.UTC()
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var _ Store = (*PostgresStore)(nil)
