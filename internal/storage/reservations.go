package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yoyaku-app/yoyaku/internal/booking"
	"github.com/yoyaku-app/yoyaku/internal/model"
	"github.com/yoyaku-app/yoyaku/libs/db"
)

// ReservationRepository implements booking.Store on Postgres. The non-overlap
// invariant is enforced by the bookings_no_overlap exclusion constraint
// (resource + tstzrange, confirmed rows only); see migrations/001_init.sql.
type ReservationRepository struct {
	pool *db.Pool
}

func NewReservationRepository(pool *db.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

func (r *ReservationRepository) GetResource(ctx context.Context, id string) (model.Resource, error) {
	// Ids are uuid columns; a malformed id can never match a row, but sent to
	// Postgres it raises a cast error (22P02) instead of no-rows.
	if uuid.Validate(id) != nil {
		return model.Resource{}, booking.ErrResourceNotFound
	}
	var res model.Resource
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, created_at
		FROM resources
		WHERE id = $1
	`, id).Scan(&res.ID, &res.Name, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Resource{}, booking.ErrResourceNotFound
		}
		return model.Resource{}, err
	}
	return res, nil
}

func (r *ReservationRepository) ListResources(ctx context.Context) ([]model.Resource, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, created_at
		FROM resources
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Resource
	for rows.Next() {
		var res model.Resource
		if err := rows.Scan(&res.ID, &res.Name, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (model.Reservation, error) {
	if uuid.Validate(id) != nil {
		return model.Reservation{}, booking.ErrBookingNotFound
	}
	row := r.pool.QueryRow(ctx, `
		SELECT id::text, resource_id::text, user_email, COALESCE(user_name, ''),
			start_at, end_at, status, created_at
		FROM bookings
		WHERE id = $1
	`, id)
	return scanReservation(row)
}

func (r *ReservationRepository) ConfirmedOverlapping(ctx context.Context, resourceID string, start, end time.Time) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, resource_id::text, user_email, COALESCE(user_name, ''),
			start_at, end_at, status, created_at
		FROM bookings
		WHERE resource_id = $1
			AND status = 'confirmed'
			AND start_at < $3
			AND end_at > $2
		ORDER BY start_at ASC
	`, resourceID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		var res model.Reservation
		var status string
		if err := rows.Scan(
			&res.ID,
			&res.ResourceID,
			&res.Email,
			&res.Name,
			&res.StartAt,
			&res.EndAt,
			&status,
			&res.CreatedAt,
		); err != nil {
			return nil, err
		}
		res.Status = model.ReservationStatus(status)
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *ReservationRepository) Insert(ctx context.Context, res model.Reservation) (model.Reservation, error) {
	res.ID = uuid.NewString()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, resource_id, user_email, user_name, start_at, end_at, status)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		RETURNING created_at
	`, res.ID, res.ResourceID, res.Email, res.Name, res.StartAt, res.EndAt, string(res.Status)).Scan(&res.CreatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return model.Reservation{}, booking.ErrTimeSlotConflict
		}
		return model.Reservation{}, err
	}
	return res, nil
}

func (r *ReservationRepository) MarkCanceled(ctx context.Context, id string) (model.Reservation, error) {
	if uuid.Validate(id) != nil {
		return model.Reservation{}, booking.ErrBookingNotFound
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'canceled',
			updated_at = now()
		WHERE id = $1
		RETURNING id::text, resource_id::text, user_email, COALESCE(user_name, ''),
			start_at, end_at, status, created_at
	`, id)
	return scanReservation(row)
}

// ListRecent returns the latest reservations, optionally filtered by
// resource. Used by the admin surface, not by the engine.
func (r *ReservationRepository) ListRecent(ctx context.Context, resourceID string, limit int) ([]model.Reservation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, resource_id::text, user_email, COALESCE(user_name, ''),
			start_at, end_at, status, created_at
		FROM bookings
		WHERE ($1 = '' OR resource_id::text = $1)
		ORDER BY start_at DESC
		LIMIT $2
	`, resourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		var res model.Reservation
		var status string
		if err := rows.Scan(
			&res.ID,
			&res.ResourceID,
			&res.Email,
			&res.Name,
			&res.StartAt,
			&res.EndAt,
			&status,
			&res.CreatedAt,
		); err != nil {
			return nil, err
		}
		res.Status = model.ReservationStatus(status)
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanReservation(row pgx.Row) (model.Reservation, error) {
	var res model.Reservation
	var status string
	err := row.Scan(
		&res.ID,
		&res.ResourceID,
		&res.Email,
		&res.Name,
		&res.StartAt,
		&res.EndAt,
		&status,
		&res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Reservation{}, booking.ErrBookingNotFound
		}
		return model.Reservation{}, err
	}
	res.Status = model.ReservationStatus(status)
	return res, nil
}

// isExclusionViolation matches SQLSTATE 23P01 (exclusion_violation), raised
// when an insert would overlap a confirmed reservation.
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
