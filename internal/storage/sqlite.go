// ABOUTME: SQLite storage implementation using modernc.org/sqlite (pure Go)
// ABOUTME: Provides feed, item, and subscription persistence with FTS5 full-text search

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harper/nexifeed/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite storage instance.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer at a time; concurrent inserts of the same link then
	// resolve on the unique index rather than on lock contention.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates the database tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS feeds (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			url TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_feeds_category ON feeds(category);

		CREATE TABLE IF NOT EXISTS items (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			feed_id TEXT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			link TEXT UNIQUE NOT NULL,
			pub_date TIMESTAMP NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			audio_url TEXT,
			audio_type TEXT,
			audio_length INTEGER,
			summary TEXT NOT NULL DEFAULT '',
			labels TEXT NOT NULL DEFAULT '[]',
			tts_audio TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_items_feed_id ON items(feed_id);
		CREATE INDEX IF NOT EXISTS idx_items_pub_date ON items(pub_date);

		CREATE TABLE IF NOT EXISTS subscriptions (
			user_id TEXT NOT NULL,
			feed_id TEXT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
			notifications INTEGER NOT NULL DEFAULT 0,
			ai_trigger INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, feed_id)
		);

		CREATE INDEX IF NOT EXISTS idx_subscriptions_feed_id ON subscriptions(feed_id);

		-- FTS5 for content search
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			title,
			content,
			content=items,
			content_rowid=rowid
		);

		-- Triggers to keep FTS in sync
		CREATE TRIGGER IF NOT EXISTS items_ai AFTER INSERT ON items BEGIN
			INSERT INTO items_fts(rowid, title, content)
			VALUES (new.rowid, new.title, new.content);
		END;

		CREATE TRIGGER IF NOT EXISTS items_ad AFTER DELETE ON items BEGIN
			INSERT INTO items_fts(items_fts, rowid, title, content)
			VALUES ('delete', old.rowid, old.title, old.content);
		END;

		CREATE TRIGGER IF NOT EXISTS items_au AFTER UPDATE ON items BEGIN
			INSERT INTO items_fts(items_fts, rowid, title, content)
			VALUES ('delete', old.rowid, old.title, old.content);
			INSERT INTO items_fts(rowid, title, content)
			VALUES (new.rowid, new.title, new.content);
		END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Feed Operations

const feedColumns = `id, url, title, description, image, category, created_at, updated_at`

// CreateFeed stores a new feed.
func (s *SQLiteStore) CreateFeed(ctx context.Context, feed *models.Feed) error {
	query := `INSERT INTO feeds (` + feedColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		feed.ID, feed.URL, feed.Title, feed.Description, feed.Image, string(feed.Category),
		feed.CreatedAt.UTC(), feed.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert feed %s: %w", feed.URL, ErrConflict)
		}
		return fmt.Errorf("insert feed: %w", err)
	}
	return nil
}

// GetFeed retrieves a feed by ID.
func (s *SQLiteStore) GetFeed(ctx context.Context, id string) (*models.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE id = ?`
	return scanFeed(s.db.QueryRowContext(ctx, query, id))
}

// GetFeedByURL finds a feed by its URL.
func (s *SQLiteStore) GetFeedByURL(ctx context.Context, url string) (*models.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE url = ?`
	return scanFeed(s.db.QueryRowContext(ctx, query, url))
}

// ListFeeds returns feeds sorted by creation date (oldest first).
func (s *SQLiteStore) ListFeeds(ctx context.Context, filter *FeedFilter) ([]*models.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds`
	var args []interface{}

	if filter != nil && strings.TrimSpace(filter.Search) != "" {
		query += ` WHERE title LIKE ? OR url LIKE ?`
		pattern := "%" + strings.TrimSpace(filter.Search) + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`
	if filter != nil {
		query += limitClause(filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*models.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// UpdateFeed updates an existing feed.
func (s *SQLiteStore) UpdateFeed(ctx context.Context, feed *models.Feed) error {
	feed.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE feeds SET title = ?, description = ?, image = ?, category = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		feed.Title, feed.Description, feed.Image, string(feed.Category), feed.UpdatedAt, feed.ID,
	)
	if err != nil {
		return fmt.Errorf("update feed: %w", err)
	}
	return requireRow(result, "feed", feed.ID)
}

// DeleteFeed removes a feed; items and subscriptions go with it via ON DELETE CASCADE.
func (s *SQLiteStore) DeleteFeed(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM feeds WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	return requireRow(result, "feed", id)
}

// Item Operations

const itemColumns = `i.id, i.feed_id, i.title, i.link, i.pub_date, i.content, i.image,
	i.audio_url, i.audio_type, i.audio_length, i.summary, i.labels, i.tts_audio, i.created_at`

// CreateItem stores a new item.
func (s *SQLiteStore) CreateItem(ctx context.Context, item *models.Item) error {
	labels, err := json.Marshal(nonNil(item.Labels))
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}

	var audioURL, audioType sql.NullString
	var audioLength sql.NullInt64
	if item.AudioInfo != nil {
		audioURL = sql.NullString{String: item.AudioInfo.URL, Valid: true}
		audioType = sql.NullString{String: item.AudioInfo.Type, Valid: true}
		audioLength = sql.NullInt64{Int64: item.AudioInfo.Length, Valid: true}
	}

	query := `
		INSERT INTO items (id, feed_id, title, link, pub_date, content, image,
			audio_url, audio_type, audio_length, summary, labels, tts_audio, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		item.ID, item.FeedID, item.Title, item.Link, item.PubDate.UTC(), item.Content, item.Image,
		audioURL, audioType, audioLength, item.Summary, string(labels), item.TTSAudioURL,
		item.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert item %s: %w", item.Link, ErrConflict)
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// ItemExists checks if an item with the given link is stored.
func (s *SQLiteStore) ItemExists(ctx context.Context, link string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE link = ?", link).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check item exists: %w", err)
	}
	return count > 0, nil
}

// GetItem retrieves an item by ID.
func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items i WHERE i.id = ?`
	return scanItem(s.db.QueryRowContext(ctx, query, id))
}

// ListItems returns items matching the filter, newest publication first.
func (s *SQLiteStore) ListItems(ctx context.Context, filter *ItemFilter) ([]*models.Item, error) {
	query, args := s.itemQuery(filter, "")
	query += ` ORDER BY i.pub_date DESC, i.rowid DESC`
	if filter != nil {
		query += limitClause(filter.Limit, filter.Offset)
	}
	return s.queryItems(ctx, query, args...)
}

// SearchItems performs full-text search on items ordered by rank.
func (s *SQLiteStore) SearchItems(ctx context.Context, query string, filter *ItemFilter) ([]*models.Item, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	sqlQuery, args := s.itemQuery(filter, match)
	sqlQuery += ` ORDER BY fts.rank`
	if filter != nil {
		sqlQuery += limitClause(filter.Limit, filter.Offset)
	}
	return s.queryItems(ctx, sqlQuery, args...)
}

// itemQuery builds the SELECT and WHERE for item listings. A non-empty
// match joins the FTS table.
func (s *SQLiteStore) itemQuery(filter *ItemFilter, match string) (string, []interface{}) {
	query := `SELECT ` + itemColumns + ` FROM items i`
	var conditions []string
	var args []interface{}

	if filter != nil && match == "" {
		match = ftsQuery(filter.Search)
	}
	if match != "" {
		query += ` INNER JOIN items_fts fts ON i.rowid = fts.rowid`
		conditions = append(conditions, "items_fts MATCH ?")
		args = append(args, match)
	}

	if filter != nil {
		if len(filter.FeedIDs) > 0 {
			placeholders := make([]string, len(filter.FeedIDs))
			for i, id := range filter.FeedIDs {
				placeholders[i] = "?"
				args = append(args, id)
			}
			conditions = append(conditions, "i.feed_id IN ("+strings.Join(placeholders, ",")+")")
		}
		if filter.Category != "" {
			query += ` INNER JOIN feeds f ON f.id = i.feed_id`
			conditions = append(conditions, "f.category = ?")
			args = append(args, string(filter.Category))
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	return query, args
}

func (s *SQLiteStore) queryItems(ctx context.Context, query string, args ...interface{}) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Subscription Operations

// UpsertSubscription creates or updates a subscription.
func (s *SQLiteStore) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO subscriptions (user_id, feed_id, notifications, ai_trigger, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, feed_id) DO UPDATE SET
			notifications = excluded.notifications,
			ai_trigger = excluded.ai_trigger
	`
	_, err := s.db.ExecContext(ctx, query,
		sub.UserID, sub.FeedID, boolToInt(sub.Notifications), boolToInt(sub.AITrigger), sub.CreatedAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("subscribe to feed %s: %w", sub.FeedID, ErrNotFound)
		}
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// ListUserSubscriptions returns all subscriptions for a user.
func (s *SQLiteStore) ListUserSubscriptions(ctx context.Context, userID string) ([]*models.Subscription, error) {
	query := `
		SELECT user_id, feed_id, notifications, ai_trigger, created_at
		FROM subscriptions WHERE user_id = ? ORDER BY created_at ASC
	`
	return s.querySubscriptions(ctx, query, userID)
}

// ListFeedSubscribers returns subscriptions for a feed.
func (s *SQLiteStore) ListFeedSubscribers(ctx context.Context, feedID string, filter SubscriberFilter) ([]*models.Subscription, error) {
	query := `
		SELECT user_id, feed_id, notifications, ai_trigger, created_at
		FROM subscriptions WHERE feed_id = ?
	`
	if filter.NotificationsOnly {
		query += ` AND notifications = 1`
	}
	if filter.AITriggerOnly {
		query += ` AND ai_trigger = 1`
	}
	query += ` ORDER BY created_at ASC`
	return s.querySubscriptions(ctx, query, feedID)
}

func (s *SQLiteStore) querySubscriptions(ctx context.Context, query string, arg string) ([]*models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		var sub models.Subscription
		var notifications, aiTrigger int
		if err := rows.Scan(&sub.UserID, &sub.FeedID, &notifications, &aiTrigger, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.Notifications = notifications == 1
		sub.AITrigger = aiTrigger == 1
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// Helper functions

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFeed(row rowScanner) (*models.Feed, error) {
	var feed models.Feed
	var category string
	if err := row.Scan(
		&feed.ID, &feed.URL, &feed.Title, &feed.Description, &feed.Image, &category,
		&feed.CreatedAt, &feed.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("feed: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	feed.Category = models.Category(category)
	return &feed, nil
}

func scanItem(row rowScanner) (*models.Item, error) {
	var item models.Item
	var audioURL, audioType sql.NullString
	var audioLength sql.NullInt64
	var labels string
	if err := row.Scan(
		&item.ID, &item.FeedID, &item.Title, &item.Link, &item.PubDate, &item.Content, &item.Image,
		&audioURL, &audioType, &audioLength, &item.Summary, &labels, &item.TTSAudioURL, &item.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	if audioURL.Valid {
		item.AudioInfo = &models.AudioInfo{
			URL:    audioURL.String,
			Type:   audioType.String,
			Length: audioLength.Int64,
		}
	}
	if err := json.Unmarshal([]byte(labels), &item.Labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	if len(item.Labels) == 0 {
		item.Labels = nil
	}
	return &item, nil
}

func requireRow(result sql.Result, kind, id string) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ftsQuery quotes each term so user input cannot inject FTS5 syntax.
func ftsQuery(query string) string {
	terms := searchTerms(query)
	for i, term := range terms {
		terms[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

func limitClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	clause := fmt.Sprintf(" LIMIT %d", limit)
	if offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", offset)
	}
	return clause
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}

var _ Store = (*SQLiteStore)(nil)
