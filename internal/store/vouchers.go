package store

import (
	"context"
	"database/sql"
	"fmt"

	"allocation-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// IssueVouchersParams carries one atomic issuance batch.
type IssueVouchersParams struct {
	AllocationID  string
	CustomerID    string
	SellableSKUID string
	SaleReference string
	Quantity      int
	Tradable      bool
	Giftable      bool
	GroupAsCase   bool
	Actor         string
}

// IssueVouchersResult is what one successful issuance produced.
type IssueVouchersResult struct {
	Vouchers  []models.Voucher
	Case      *models.CaseEntitlement
	Exhausted bool
}

// IssueVouchers consumes allocation supply and mints one voucher per unit in
// a single transaction. The allocation row is locked for the duration and the
// sold-quantity increment is additionally conditional on not exceeding total,
// so two racing issuances can never both take the last unit. Any failure
// rolls the whole batch back; no partial vouchers survive.
func (s *Store) IssueVouchers(ctx context.Context, p IssueVouchersParams) (*IssueVouchersResult, error) {
	if p.Quantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}

	var result IssueVouchersResult

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		alloc, err := getAllocationForUpdate(ctx, tx, p.AllocationID)
		if err != nil {
			return err
		}

		// Pure-model gate first, then the conditional UPDATE below re-asserts
		// the same invariant against the locked row.
		if err := alloc.Consume(p.Quantity); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE allocations
			SET sold_quantity = sold_quantity + $1, status = $2, updated_at = NOW()
			WHERE id = $3 AND status IN ('active', $2) AND sold_quantity + $1 <= total_quantity`,
			p.Quantity, alloc.Status, alloc.ID)
		if err != nil {
			return fmt.Errorf("consume allocation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrInsufficientSupply
		}

		detail := fmt.Sprintf(`{"quantity": %d, "sale_reference": %q}`, p.Quantity, p.SaleReference)
		if err := appendAudit(ctx, tx, models.AuditEntityAllocation, alloc.ID, "consumed", p.Actor, detail); err != nil {
			return err
		}

		var caseID *string
		if p.GroupAsCase {
			ce := models.CaseEntitlement{
				ID:            uuid.New().String(),
				CustomerID:    p.CustomerID,
				SellableSKUID: p.SellableSKUID,
				Status:        models.CaseStatusIntact,
			}
			row := tx.QueryRowxContext(ctx, `
				INSERT INTO case_entitlements (id, customer_id, sellable_sku_id, status)
				VALUES ($1, $2, $3, $4)
				RETURNING created_at, updated_at`,
				ce.ID, ce.CustomerID, ce.SellableSKUID, ce.Status)
			if err := row.Scan(&ce.CreatedAt, &ce.UpdatedAt); err != nil {
				return fmt.Errorf("create case entitlement: %w", err)
			}
			if err := appendAudit(ctx, tx, models.AuditEntityCase, ce.ID, "created", p.Actor, ""); err != nil {
				return err
			}
			result.Case = &ce
			caseID = &ce.ID
		}

		result.Vouchers = make([]models.Voucher, 0, p.Quantity)
		for i := 0; i < p.Quantity; i++ {
			v := models.Voucher{
				ID:            uuid.New().String(),
				CustomerID:    p.CustomerID,
				AllocationID:  alloc.ID,
				WineVariantID: alloc.WineVariantID,
				FormatID:      alloc.FormatID,
				SellableSKUID: p.SellableSKUID,
				Quantity:      1,
				State:         models.VoucherStateIssued,
				Tradable:      p.Tradable,
				Giftable:      p.Giftable,
				SaleReference: p.SaleReference,
				CaseID:        caseID,
				CreatedBy:     p.Actor,
			}
			if err := v.Validate(); err != nil {
				return err
			}

			row := tx.QueryRowxContext(ctx, `
				INSERT INTO vouchers
					(id, customer_id, allocation_id, wine_variant_id, format_id,
					 sellable_sku_id, quantity, lifecycle_state, tradable, giftable,
					 sale_reference, case_id, created_by)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
				RETURNING created_at, updated_at`,
				v.ID, v.CustomerID, v.AllocationID, v.WineVariantID, v.FormatID,
				v.SellableSKUID, v.Quantity, v.State, v.Tradable, v.Giftable,
				v.SaleReference, v.CaseID, v.CreatedBy)
			if err := row.Scan(&v.CreatedAt, &v.UpdatedAt); err != nil {
				return fmt.Errorf("create voucher: %w", err)
			}
			if err := appendAudit(ctx, tx, models.AuditEntityVoucher, v.ID, "issued", p.Actor, ""); err != nil {
				return err
			}

			result.Vouchers = append(result.Vouchers, v)
		}

		result.Exhausted = alloc.Status == models.AllocationStatusExhausted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetVoucherByID retrieves a voucher by ID
func (s *Store) GetVoucherByID(ctx context.Context, id string) (*models.Voucher, error) {
	var v models.Voucher
	err := s.db.GetContext(ctx, &v, "SELECT * FROM vouchers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrVoucherNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVouchersByCustomer retrieves all vouchers held by a customer.
func (s *Store) GetVouchersByCustomer(ctx context.Context, customerID string) ([]models.Voucher, error) {
	var vouchers []models.Voucher
	err := s.db.SelectContext(ctx, &vouchers,
		"SELECT * FROM vouchers WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	return vouchers, err
}

// TransitionVoucher moves a voucher between lifecycle states. Conditional on
// the current state; allocation_id and quantity are never part of any UPDATE,
// which is how their write-once invariant is kept at the persistence layer.
func (s *Store) TransitionVoucher(ctx context.Context, id string, from, to models.VoucherState, actor, detail string) error {
	if !from.CanTransitionTo(to) {
		return models.ErrInvalidTransition
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE vouchers SET lifecycle_state = $1, updated_at = NOW() WHERE id = $2 AND lifecycle_state = $3",
			to, id, from)
		if err != nil {
			return fmt.Errorf("transition voucher: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrInvalidTransition
		}
		return appendAudit(ctx, tx, models.AuditEntityVoucher, id, string(from)+"->"+string(to), actor, detail)
	})
}

// SuspendVoucher sets the orthogonal suspended flag without touching the
// lifecycle state. Suspending an already-suspended voucher is a no-op.
func (s *Store) SuspendVoucher(ctx context.Context, id, reason, actor string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE vouchers SET suspended = TRUE, suspend_reason = $1, updated_at = NOW() WHERE id = $2 AND suspended = FALSE",
			reason, id)
		if err != nil {
			return fmt.Errorf("suspend voucher: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		detail := fmt.Sprintf(`{"reason": %q}`, reason)
		return appendAudit(ctx, tx, models.AuditEntityVoucher, id, "suspended", actor, detail)
	})
}

// UnsuspendVoucher clears the suspended flag.
func (s *Store) UnsuspendVoucher(ctx context.Context, id, actor string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE vouchers SET suspended = FALSE, suspend_reason = '', updated_at = NOW() WHERE id = $1 AND suspended = TRUE",
			id)
		if err != nil {
			return fmt.Errorf("unsuspend voucher: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		return appendAudit(ctx, tx, models.AuditEntityVoucher, id, "unsuspended", actor, "")
	})
}
