package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/telecalbot/telecalbot/internal/model"
)

// BookingStore keeps confirmed bookings so they can be listed and
// cancelled later.
type BookingStore struct {
	db *sql.DB
}

func NewBookingStore(db *sql.DB) *BookingStore {
	return &BookingStore{db: db}
}

// Save records a confirmed booking and returns the row id. Saving the
// same Cal.com booking twice for a user updates the stored copy.
// Satisfies the booking conversation's BookingRecords interface.
func (s *BookingStore) Save(ctx context.Context, telegramID int64, booking model.BookingResult) (int64, error) {
	start, err := time.Parse(time.RFC3339, booking.Start)
	if err != nil {
		return 0, fmt.Errorf("error parsing booking start %q: %w", booking.Start, err)
	}
	end, err := time.Parse(time.RFC3339, booking.End)
	if err != nil {
		return 0, fmt.Errorf("error parsing booking end %q: %w", booking.End, err)
	}

	var id int64
	query := `
		INSERT INTO bookings (telegram_id, calcom_booking_id, calcom_booking_uid, title, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'active')
		ON CONFLICT (telegram_id, calcom_booking_id) DO UPDATE
		SET calcom_booking_uid = EXCLUDED.calcom_booking_uid,
		    title              = EXCLUDED.title,
		    start_time         = EXCLUDED.start_time,
		    end_time           = EXCLUDED.end_time,
		    status             = 'active',
		    cancelled_at       = NULL
		RETURNING id`
	err = s.db.QueryRowContext(ctx, query,
		telegramID, booking.ID, booking.UID, booking.Title, start, end,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("error saving booking: %w", err)
	}
	return id, nil
}

// Upcoming lists the user's active bookings that have not ended yet,
// soonest first.
func (s *BookingStore) Upcoming(ctx context.Context, telegramID int64) ([]model.StoredBooking, error) {
	query := `
		SELECT id, telegram_id, calcom_booking_id, calcom_booking_uid, title, start_time, end_time, status, created_at, cancelled_at
		FROM bookings
		WHERE telegram_id = $1 AND status = 'active' AND end_time >= now()
		ORDER BY start_time`
	rows, err := s.db.QueryContext(ctx, query, telegramID)
	if err != nil {
		return nil, fmt.Errorf("error listing upcoming bookings: %w", err)
	}
	defer rows.Close()

	var out []model.StoredBooking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return out, nil
}

// Get returns one of the user's bookings by row id, or nil when it
// does not exist or belongs to someone else.
func (s *BookingStore) Get(ctx context.Context, id, telegramID int64) (*model.StoredBooking, error) {
	query := `
		SELECT id, telegram_id, calcom_booking_id, calcom_booking_uid, title, start_time, end_time, status, created_at, cancelled_at
		FROM bookings WHERE id = $1 AND telegram_id = $2`
	row := s.db.QueryRowContext(ctx, query, id, telegramID)
	booking, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// MarkCancelled flips the booking to cancelled. It reports whether an
// active booking was found.
func (s *BookingStore) MarkCancelled(ctx context.Context, id, telegramID int64) (bool, error) {
	query := `
		UPDATE bookings SET status = 'cancelled', cancelled_at = now()
		WHERE id = $1 AND telegram_id = $2 AND status = 'active'`
	res, err := s.db.ExecContext(ctx, query, id, telegramID)
	if err != nil {
		return false, fmt.Errorf("error cancelling booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (model.StoredBooking, error) {
	var (
		booking     model.StoredBooking
		cancelledAt sql.NullTime
	)
	err := row.Scan(
		&booking.ID, &booking.TelegramID, &booking.CalcomBookingID, &booking.CalcomBookingUID,
		&booking.Title, &booking.Start, &booking.End, &booking.Status, &booking.CreatedAt, &cancelledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.StoredBooking{}, err
		}
		return model.StoredBooking{}, fmt.Errorf("error scanning booking: %w", err)
	}
	if cancelledAt.Valid {
		booking.CancelledAt = &cancelledAt.Time
	}
	return booking, nil
}
