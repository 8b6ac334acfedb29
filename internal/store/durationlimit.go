package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/telecalbot/telecalbot/internal/model"
)

// DurationLimitStore tracks per-user caps on bookable meeting length.
type DurationLimitStore struct {
	db *sql.DB
}

func NewDurationLimitStore(db *sql.DB) *DurationLimitStore {
	return &DurationLimitStore{db: db}
}

// GetLimit returns the user's cap in minutes, or nil when no cap is
// set. Satisfies the booking conversation's DurationLimits interface.
func (s *DurationLimitStore) GetLimit(ctx context.Context, telegramID int64) (*int, error) {
	var minutes int
	query := `SELECT max_duration_minutes FROM duration_limits WHERE telegram_id = $1`
	err := s.db.QueryRowContext(ctx, query, telegramID).Scan(&minutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading duration limit: %w", err)
	}
	return &minutes, nil
}

// SetLimit sets or replaces the user's cap.
func (s *DurationLimitStore) SetLimit(ctx context.Context, telegramID int64, minutes int, setBy int64) error {
	query := `
		INSERT INTO duration_limits (telegram_id, max_duration_minutes, set_at, set_by)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (telegram_id) DO UPDATE
		SET max_duration_minutes = EXCLUDED.max_duration_minutes,
		    set_at               = EXCLUDED.set_at,
		    set_by               = EXCLUDED.set_by`
	if _, err := s.db.ExecContext(ctx, query, telegramID, minutes, setBy); err != nil {
		return fmt.Errorf("error setting duration limit: %w", err)
	}
	return nil
}

// RemoveLimit deletes the user's cap. It reports whether one existed.
func (s *DurationLimitStore) RemoveLimit(ctx context.Context, telegramID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM duration_limits WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return false, fmt.Errorf("error removing duration limit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %w", err)
	}
	return affected > 0, nil
}

// All lists every cap currently set.
func (s *DurationLimitStore) All(ctx context.Context) ([]model.DurationLimit, error) {
	query := `
		SELECT telegram_id, max_duration_minutes, set_at, set_by
		FROM duration_limits ORDER BY telegram_id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing duration limits: %w", err)
	}
	defer rows.Close()

	var out []model.DurationLimit
	for rows.Next() {
		var limit model.DurationLimit
		if err := rows.Scan(&limit.TelegramID, &limit.MaxDurationMinutes, &limit.SetAt, &limit.SetBy); err != nil {
			return nil, fmt.Errorf("error scanning duration limit: %w", err)
		}
		out = append(out, limit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duration limits: %w", err)
	}
	return out, nil
}
