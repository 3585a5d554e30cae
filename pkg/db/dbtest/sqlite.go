// Package dbtest opens throwaway SQLite databases carrying the engine tables so
// repositories and services can be exercised without Postgres.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const listingsTable = `
CREATE TABLE IF NOT EXISTS listings (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  pricing_mode TEXT NOT NULL,
  fixed_price NUMERIC,
  starting_bid NUMERIC NOT NULL DEFAULT 0,
  current_bid NUMERIC NOT NULL DEFAULT 0,
  bid_increment NUMERIC NOT NULL DEFAULT 0,
  max_bid NUMERIC,
  highest_bidder_id TEXT,
  end_time TEXT,
  expires_at TEXT,
  posted_at TEXT,
  duration_days INTEGER NOT NULL DEFAULT 0,
  duration_hours INTEGER NOT NULL DEFAULT 0,
  duration_minutes INTEGER NOT NULL DEFAULT 0,
  duration_label TEXT,
  status TEXT NOT NULL,
  is_complete INTEGER NOT NULL DEFAULT 0,
  winner_id TEXT,
  seller_confirmed INTEGER NOT NULL DEFAULT 0,
  winner_confirmed INTEGER NOT NULL DEFAULT 0,
  has_been_rated INTEGER NOT NULL DEFAULT 0,
  completed_at DATETIME,
  sold_at DATETIME,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT chk_listings_current_bid CHECK (current_bid >= 0),
  CONSTRAINT chk_listings_max_bid CHECK (max_bid IS NULL OR max_bid > 0),
  CONSTRAINT chk_listings_winner_complete CHECK (winner_id IS NULL OR is_complete),
  CONSTRAINT chk_listings_sold_confirmed CHECK (status <> 'sold' OR (seller_confirmed AND winner_confirmed))
);`

const listingBidsTable = `
CREATE TABLE IF NOT EXISTS listing_bids (
  id TEXT PRIMARY KEY,
  listing_id TEXT NOT NULL,
  bidder_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  is_leading INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  CONSTRAINT chk_listing_bids_amount CHECK (amount > 0)
);`

const listingBidsLeadingIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS ux_listing_bids_leading ON listing_bids (listing_id) WHERE is_leading;`

const ratingsTable = `
CREATE TABLE IF NOT EXISTS ratings (
  id TEXT PRIMARY KEY,
  listing_id TEXT NOT NULL UNIQUE,
  rater_id TEXT NOT NULL,
  target_id TEXT NOT NULL,
  score INTEGER NOT NULL,
  review TEXT,
  created_at DATETIME,
  CONSTRAINT chk_ratings_score CHECK (score BETWEEN 1 AND 5),
  CONSTRAINT chk_ratings_not_self CHECK (rater_id <> target_id)
);`

const userRatingAggregatesTable = `
CREATE TABLE IF NOT EXISTS user_rating_aggregates (
  user_id TEXT PRIMARY KEY,
  average NUMERIC NOT NULL DEFAULT 0,
  count INTEGER NOT NULL DEFAULT 0,
  distribution TEXT NOT NULL DEFAULT '{}',
  updated_at DATETIME
);`

const notificationsTable = `
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  recipient_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  link TEXT,
  origin_user_id TEXT,
  listing_id TEXT,
  read_at DATETIME,
  created_at DATETIME
);`

const outboxEventsTable = `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`

const outboxEventsOnceIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate
  ON outbox_events (event_type, aggregate_type, aggregate_id)
  WHERE event_type IN ('auction_completed', 'listing_sold', 'rating_submitted');`

const outboxDLQTable = `
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`

// Open returns a private in-memory database with every engine table created,
// carrying the same CHECK constraints and partial indexes as the migrations.
// The pool is pinned to one connection so transactions serialize the way row
// locks would on Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, ddl := range []string{
		listingsTable,
		listingBidsTable,
		listingBidsLeadingIndex,
		ratingsTable,
		userRatingAggregatesTable,
		notificationsTable,
		outboxEventsTable,
		outboxEventsOnceIndex,
		outboxDLQTable,
	} {
		if err := conn.Exec(ddl).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return conn
}
