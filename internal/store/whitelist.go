package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/telecalbot/telecalbot/internal/model"
)

// WhitelistStore tracks users approved to use the bot.
type WhitelistStore struct {
	db *sql.DB
}

func NewWhitelistStore(db *sql.DB) *WhitelistStore {
	return &WhitelistStore{db: db}
}

// IsApproved reports whether the user is on the whitelist.
func (s *WhitelistStore) IsApproved(ctx context.Context, telegramID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM whitelist WHERE telegram_id = $1)`
	if err := s.db.QueryRowContext(ctx, query, telegramID).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking whitelist: %w", err)
	}
	return exists, nil
}

// Add puts a user on the whitelist. Re-adding refreshes the metadata.
func (s *WhitelistStore) Add(ctx context.Context, entry model.WhitelistEntry) error {
	query := `
		INSERT INTO whitelist (telegram_id, display_name, username, approved_at, approved_by)
		VALUES ($1, $2, $3, now(), $4)
		ON CONFLICT (telegram_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    username     = EXCLUDED.username,
		    approved_at  = EXCLUDED.approved_at,
		    approved_by  = EXCLUDED.approved_by`
	if _, err := s.db.ExecContext(ctx, query, entry.TelegramID, entry.DisplayName, entry.Username, entry.ApprovedBy); err != nil {
		return fmt.Errorf("error adding to whitelist: %w", err)
	}
	return nil
}

// Remove takes a user off the whitelist. It reports whether the user
// was on it.
func (s *WhitelistStore) Remove(ctx context.Context, telegramID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM whitelist WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return false, fmt.Errorf("error removing from whitelist: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %w", err)
	}
	return affected > 0, nil
}

// Get returns the whitelist entry, or nil when the user is not listed.
func (s *WhitelistStore) Get(ctx context.Context, telegramID int64) (*model.WhitelistEntry, error) {
	var entry model.WhitelistEntry
	query := `
		SELECT telegram_id, display_name, username, approved_at, approved_by
		FROM whitelist WHERE telegram_id = $1`
	err := s.db.QueryRowContext(ctx, query, telegramID).Scan(
		&entry.TelegramID, &entry.DisplayName, &entry.Username, &entry.ApprovedAt, &entry.ApprovedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading whitelist entry: %w", err)
	}
	return &entry, nil
}
