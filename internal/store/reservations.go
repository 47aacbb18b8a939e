package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"allocation-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateReservation inserts a new active reservation. Reservations never
// touch the allocation's sold/remaining counters.
func (s *Store) CreateReservation(ctx context.Context, r *models.TemporaryReservation) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO temporary_reservations
				(id, allocation_id, quantity, context_type, context_reference,
				 status, expires_at, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at`

		row := tx.QueryRowxContext(ctx, query,
			r.ID, r.AllocationID, r.Quantity, r.ContextType, r.ContextReference,
			r.Status, r.ExpiresAt, r.CreatedBy)
		if err := row.Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}

		return appendAudit(ctx, tx, models.AuditEntityReservation, r.ID, "created", r.CreatedBy, "")
	})
}

// GetReservationByID retrieves a reservation by ID
func (s *Store) GetReservationByID(ctx context.Context, id string) (*models.TemporaryReservation, error) {
	var r models.TemporaryReservation
	err := s.db.GetContext(ctx, &r, "SELECT * FROM temporary_reservations WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// TransitionReservation moves a reservation out of active. The UPDATE is
// conditional on the current status; zero rows affected means another writer
// got there first.
func (s *Store) TransitionReservation(ctx context.Context, id string, from, to models.ReservationStatus, actor string) error {
	if !from.CanTransitionTo(to) {
		return models.ErrInvalidTransition
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE temporary_reservations SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
			to, id, from)
		if err != nil {
			return fmt.Errorf("transition reservation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrInvalidTransition
		}
		return appendAudit(ctx, tx, models.AuditEntityReservation, id, string(from)+"->"+string(to), actor, "")
	})
}

// SumActiveReservations returns the total quantity soft-held against an
// allocation by active, unexpired reservations.
func (s *Store) SumActiveReservations(ctx context.Context, allocationID string, now time.Time) (int, error) {
	var total int
	err := s.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM temporary_reservations
		WHERE allocation_id = $1 AND status = 'active' AND expires_at > $2`,
		allocationID, now)
	if err != nil {
		return 0, fmt.Errorf("sum active reservations: %w", err)
	}
	return total, nil
}

// ExpireDueReservations expires one batch of overdue active reservations and
// returns the rows it expired. SKIP LOCKED keeps overlapping sweep runs from
// contending on the same rows; an already-expired row simply no longer
// matches, so re-running is a no-op.
func (s *Store) ExpireDueReservations(ctx context.Context, now time.Time, limit int) ([]models.TemporaryReservation, error) {
	var expired []models.TemporaryReservation

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.SelectContext(ctx, &expired, `
			UPDATE temporary_reservations SET status = 'expired', updated_at = NOW()
			WHERE id IN (
				SELECT id FROM temporary_reservations
				WHERE status = 'active' AND expires_at < $1
				ORDER BY expires_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING *`,
			now, limit)
		if err != nil {
			return fmt.Errorf("expire due reservations: %w", err)
		}

		for i := range expired {
			if err := appendAudit(ctx, tx, models.AuditEntityReservation, expired[i].ID, "active->expired", "sweep", ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
