package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/telecalbot/telecalbot/internal/model"
)

// AccessRequestStore tracks requests from users who are not yet
// whitelisted.
type AccessRequestStore struct {
	db *sql.DB
}

func NewAccessRequestStore(db *sql.DB) *AccessRequestStore {
	return &AccessRequestStore{db: db}
}

// Create records a pending access request. It reports whether a new
// request was created; a repeat request from the same user is a no-op.
func (s *AccessRequestStore) Create(ctx context.Context, req model.AccessRequest) (bool, error) {
	query := `
		INSERT INTO access_requests (telegram_id, display_name, username, requested_at, status)
		VALUES ($1, $2, $3, now(), 'pending')
		ON CONFLICT (telegram_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query, req.TelegramID, req.DisplayName, req.Username)
	if err != nil {
		return false, fmt.Errorf("error creating access request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %w", err)
	}
	return affected > 0, nil
}

// Get returns the request, or nil when the user never asked for access.
func (s *AccessRequestStore) Get(ctx context.Context, telegramID int64) (*model.AccessRequest, error) {
	var req model.AccessRequest
	query := `
		SELECT telegram_id, display_name, username, requested_at, status
		FROM access_requests WHERE telegram_id = $1`
	err := s.db.QueryRowContext(ctx, query, telegramID).Scan(
		&req.TelegramID, &req.DisplayName, &req.Username, &req.RequestedAt, &req.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading access request: %w", err)
	}
	return &req, nil
}

// Pending lists unresolved requests, oldest first.
func (s *AccessRequestStore) Pending(ctx context.Context) ([]model.AccessRequest, error) {
	query := `
		SELECT telegram_id, display_name, username, requested_at, status
		FROM access_requests WHERE status = 'pending'
		ORDER BY requested_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing pending requests: %w", err)
	}
	defer rows.Close()

	var out []model.AccessRequest
	for rows.Next() {
		var req model.AccessRequest
		if err := rows.Scan(&req.TelegramID, &req.DisplayName, &req.Username, &req.RequestedAt, &req.Status); err != nil {
			return nil, fmt.Errorf("error scanning access request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access requests: %w", err)
	}
	return out, nil
}

// Approve whitelists the user and marks their request approved, in one
// transaction. It reports whether a pending request existed.
func (s *AccessRequestStore) Approve(ctx context.Context, telegramID, approvedBy int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE access_requests SET status = 'approved' WHERE telegram_id = $1 AND status = 'pending'`,
		telegramID)
	if err != nil {
		return false, fmt.Errorf("error approving request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO whitelist (telegram_id, display_name, username, approved_at, approved_by)
		SELECT telegram_id, display_name, username, now(), $2
		FROM access_requests WHERE telegram_id = $1
		ON CONFLICT (telegram_id) DO NOTHING`,
		telegramID, approvedBy)
	if err != nil {
		return false, fmt.Errorf("error whitelisting approved user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("error committing approval: %w", err)
	}
	return true, nil
}

// Reject marks the request rejected. It reports whether a pending
// request existed.
func (s *AccessRequestStore) Reject(ctx context.Context, telegramID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE access_requests SET status = 'rejected' WHERE telegram_id = $1 AND status = 'pending'`,
		telegramID)
	if err != nil {
		return false, fmt.Errorf("error rejecting request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %w", err)
	}
	return affected > 0, nil
}
