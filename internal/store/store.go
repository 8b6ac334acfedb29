// Package store persists whitelist, access-request, duration-limit and
// booking records in Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS whitelist (
	telegram_id  BIGINT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	username     TEXT NOT NULL DEFAULT '',
	approved_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	approved_by  BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS access_requests (
	telegram_id  BIGINT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	username     TEXT NOT NULL DEFAULT '',
	requested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	status       TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS duration_limits (
	telegram_id          BIGINT PRIMARY KEY,
	max_duration_minutes INT NOT NULL,
	set_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	set_by               BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bookings (
	id                 BIGSERIAL PRIMARY KEY,
	telegram_id        BIGINT NOT NULL,
	calcom_booking_id  BIGINT NOT NULL,
	calcom_booking_uid TEXT NOT NULL DEFAULT '',
	title              TEXT NOT NULL DEFAULT '',
	start_time         TIMESTAMPTZ NOT NULL,
	end_time           TIMESTAMPTZ NOT NULL,
	status             TEXT NOT NULL DEFAULT 'active',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	cancelled_at       TIMESTAMPTZ,
	UNIQUE (telegram_id, calcom_booking_id)
);

CREATE INDEX IF NOT EXISTS idx_bookings_user_status ON bookings (telegram_id, status);
`

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error applying schema: %w", err)
	}
	return nil
}
