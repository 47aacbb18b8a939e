package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"allocation-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateTransfer inserts a pending transfer. A partial unique index on
// (voucher_id) WHERE status = 'pending' backs the one-pending-transfer-per-
// voucher invariant, so a racing initiate loses with a unique violation even
// when both passed the service-level pre-check.
func (s *Store) CreateTransfer(ctx context.Context, t *models.VoucherTransfer) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO voucher_transfers
				(id, voucher_id, from_customer_id, to_customer_id, status, initiated_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`

		_, err := tx.ExecContext(ctx, query,
			t.ID, t.VoucherID, t.FromCustomerID, t.ToCustomerID, t.Status,
			t.InitiatedAt, t.ExpiresAt)
		if err != nil {
			if isUniqueViolation(err) {
				return models.ErrTransferAlreadyPending
			}
			return fmt.Errorf("create transfer: %w", err)
		}

		return appendAudit(ctx, tx, models.AuditEntityTransfer, t.ID, "initiated", t.FromCustomerID, "")
	})
}

// GetTransferByID retrieves a transfer by ID
func (s *Store) GetTransferByID(ctx context.Context, id string) (*models.VoucherTransfer, error) {
	var t models.VoucherTransfer
	err := s.db.GetContext(ctx, &t, "SELECT * FROM voucher_transfers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetPendingTransferByVoucher returns the voucher's pending transfer, nil if
// there is none.
func (s *Store) GetPendingTransferByVoucher(ctx context.Context, voucherID string) (*models.VoucherTransfer, error) {
	var t models.VoucherTransfer
	err := s.db.GetContext(ctx, &t,
		"SELECT * FROM voucher_transfers WHERE voucher_id = $1 AND status = 'pending'", voucherID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AcceptTransfer marks the transfer accepted and rewrites the voucher's owner
// in one transaction. The transfer UPDATE is conditional on pending status and
// an unexpired deadline; the voucher UPDATE only touches customer_id.
func (s *Store) AcceptTransfer(ctx context.Context, id string, now time.Time) (*models.VoucherTransfer, error) {
	var accepted models.VoucherTransfer

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &accepted, `
			UPDATE voucher_transfers
			SET status = 'accepted', accepted_at = $1
			WHERE id = $2 AND status = 'pending' AND expires_at > $1
			RETURNING *`,
			now, id)
		if err == sql.ErrNoRows {
			// Distinguish a late accept from a double accept for the caller.
			var current models.VoucherTransfer
			if getErr := tx.GetContext(ctx, &current, "SELECT * FROM voucher_transfers WHERE id = $1", id); getErr != nil {
				if getErr == sql.ErrNoRows {
					return models.ErrTransferNotFound
				}
				return getErr
			}
			if current.Status == models.TransferStatusPending {
				return models.ErrTransferExpired
			}
			return models.ErrInvalidTransition
		}
		if err != nil {
			return fmt.Errorf("accept transfer: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE vouchers SET customer_id = $1, updated_at = NOW() WHERE id = $2",
			accepted.ToCustomerID, accepted.VoucherID)
		if err != nil {
			return fmt.Errorf("reassign voucher owner: %w", err)
		}

		if err := appendAudit(ctx, tx, models.AuditEntityTransfer, id, "pending->accepted", accepted.ToCustomerID, ""); err != nil {
			return err
		}
		detail := fmt.Sprintf(`{"from": %q, "to": %q}`, accepted.FromCustomerID, accepted.ToCustomerID)
		return appendAudit(ctx, tx, models.AuditEntityVoucher, accepted.VoucherID, "owner_changed", accepted.ToCustomerID, detail)
	})
	if err != nil {
		return nil, err
	}
	return &accepted, nil
}

// TransitionTransfer moves a transfer out of pending (cancel or expire paths).
func (s *Store) TransitionTransfer(ctx context.Context, id string, from, to models.TransferStatus, actor string) error {
	if !from.CanTransitionTo(to) {
		return models.ErrInvalidTransition
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE voucher_transfers SET status = $1, cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END WHERE id = $2 AND status = $3",
			to, id, from)
		if err != nil {
			return fmt.Errorf("transition transfer: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrInvalidTransition
		}
		return appendAudit(ctx, tx, models.AuditEntityTransfer, id, string(from)+"->"+string(to), actor, "")
	})
}

// ExpireDueTransfers expires one batch of overdue pending transfers, same
// shape as the reservation sweep.
func (s *Store) ExpireDueTransfers(ctx context.Context, now time.Time, limit int) ([]models.VoucherTransfer, error) {
	var expired []models.VoucherTransfer

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.SelectContext(ctx, &expired, `
			UPDATE voucher_transfers SET status = 'expired'
			WHERE id IN (
				SELECT id FROM voucher_transfers
				WHERE status = 'pending' AND expires_at < $1
				ORDER BY expires_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING *`,
			now, limit)
		if err != nil {
			return fmt.Errorf("expire due transfers: %w", err)
		}

		for i := range expired {
			if err := appendAudit(ctx, tx, models.AuditEntityTransfer, expired[i].ID, "pending->expired", "sweep", ""); err != nil {
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
