package store

import (
	"context"
	"database/sql"
	"fmt"

	"allocation-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetCaseByID retrieves a case entitlement by ID
func (s *Store) GetCaseByID(ctx context.Context, id string) (*models.CaseEntitlement, error) {
	var c models.CaseEntitlement
	err := s.db.GetContext(ctx, &c, "SELECT * FROM case_entitlements WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCaseVouchers retrieves all member vouchers of a case.
func (s *Store) GetCaseVouchers(ctx context.Context, caseID string) ([]models.Voucher, error) {
	var vouchers []models.Voucher
	err := s.db.SelectContext(ctx, &vouchers,
		"SELECT * FROM vouchers WHERE case_id = $1 ORDER BY created_at", caseID)
	return vouchers, err
}

// BreakCase marks an intact case broken. One-way: the conditional UPDATE only
// matches intact rows, so a second break reports false instead of rewriting
// broken_at or broken_reason.
func (s *Store) BreakCase(ctx context.Context, id, reason, actor string) (bool, error) {
	var brokeNow bool

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE case_entitlements
			SET status = 'broken', broken_at = NOW(), broken_reason = $1, updated_at = NOW()
			WHERE id = $2 AND status = 'intact'`,
			reason, id)
		if err != nil {
			return fmt.Errorf("break case: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		brokeNow = true
		detail := fmt.Sprintf(`{"reason": %q}`, reason)
		return appendAudit(ctx, tx, models.AuditEntityCase, id, "intact->broken", actor, detail)
	})
	if err != nil {
		return false, err
	}
	return brokeNow, nil
}
