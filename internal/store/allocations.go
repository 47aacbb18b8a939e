package store

import (
	"context"
	"database/sql"
	"fmt"

	"allocation-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateAllocation inserts a new draft allocation together with its creation
// audit event.
func (s *Store) CreateAllocation(ctx context.Context, alloc *models.Allocation) error {
	if err := alloc.Validate(); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO allocations
				(id, wine_variant_id, format_id, source_type, supply_form,
				 total_quantity, sold_quantity, status, serialization_required,
				 available_from, available_until, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING created_at, updated_at`

		row := tx.QueryRowxContext(ctx, query,
			alloc.ID, alloc.WineVariantID, alloc.FormatID, alloc.SourceType,
			alloc.SupplyForm, alloc.TotalQuantity, alloc.SoldQuantity, alloc.Status,
			alloc.SerializationRequired, alloc.AvailableFrom, alloc.AvailableUntil,
			alloc.CreatedBy)
		if err := row.Scan(&alloc.CreatedAt, &alloc.UpdatedAt); err != nil {
			return fmt.Errorf("create allocation: %w", err)
		}

		return appendAudit(ctx, tx, models.AuditEntityAllocation, alloc.ID, "created", alloc.CreatedBy, "")
	})
}

// GetAllocationByID retrieves an allocation by ID
func (s *Store) GetAllocationByID(ctx context.Context, id string) (*models.Allocation, error) {
	var alloc models.Allocation
	err := s.db.GetContext(ctx, &alloc, "SELECT * FROM allocations WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrAllocationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &alloc, nil
}

// ListAllocationsByStatus retrieves all allocations in one status.
func (s *Store) ListAllocationsByStatus(ctx context.Context, status models.AllocationStatus) ([]models.Allocation, error) {
	var allocs []models.Allocation
	err := s.db.SelectContext(ctx, &allocs,
		"SELECT * FROM allocations WHERE status = $1 ORDER BY created_at", status)
	return allocs, err
}

// getAllocationForUpdate locks the allocation row for the rest of the
// transaction. Serializes all consumption per allocation.
func getAllocationForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Allocation, error) {
	var alloc models.Allocation
	err := tx.GetContext(ctx, &alloc, "SELECT * FROM allocations WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrAllocationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &alloc, nil
}

// TransitionAllocation moves an allocation between statuses. The UPDATE is
// conditional on the current status so two concurrent transitions cannot both
// win; zero rows affected means the row was not in `from` anymore.
func (s *Store) TransitionAllocation(ctx context.Context, id string, from, to models.AllocationStatus, actor string) error {
	if !from.CanTransitionTo(to) {
		return models.ErrInvalidTransition
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE allocations SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
			to, id, from)
		if err != nil {
			return fmt.Errorf("transition allocation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrInvalidTransition
		}
		return appendAudit(ctx, tx, models.AuditEntityAllocation, id, string(from)+"->"+string(to), actor, "")
	})
}

// AdjustTotalQuantity changes total supply by delta as an explicit, audited
// operation. This is the only way cancelled vouchers ever free up resellable
// supply; nothing re-credits automatically.
func (s *Store) AdjustTotalQuantity(ctx context.Context, id string, delta int, actor, reason string) (*models.Allocation, error) {
	var adjusted *models.Allocation

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		alloc, err := getAllocationForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if alloc.Status == models.AllocationStatusClosed {
			return models.ErrNotConsumable
		}

		alloc.TotalQuantity += delta
		if err := alloc.Validate(); err != nil {
			return err
		}

		// A raised total can bring an exhausted allocation back on sale.
		if alloc.Status == models.AllocationStatusExhausted && alloc.RemainingQuantity() > 0 {
			alloc.Status = models.AllocationStatusActive
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE allocations SET total_quantity = $1, status = $2, updated_at = NOW() WHERE id = $3",
			alloc.TotalQuantity, alloc.Status, alloc.ID)
		if err != nil {
			return fmt.Errorf("adjust total quantity: %w", err)
		}

		detail := fmt.Sprintf(`{"delta": %d, "reason": %q}`, delta, reason)
		if err := appendAudit(ctx, tx, models.AuditEntityAllocation, id, "quantity_adjusted", actor, detail); err != nil {
			return err
		}

		adjusted = alloc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adjusted, nil
}

// GetConstraints retrieves the commercial constraints for an allocation.
// Returns nil when none are set, which evaluates as allow-all.
func (s *Store) GetConstraints(ctx context.Context, allocationID string) (*models.AllocationConstraint, error) {
	var c models.AllocationConstraint
	err := s.db.GetContext(ctx, &c,
		"SELECT * FROM allocation_constraints WHERE allocation_id = $1", allocationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetLiquidConstraints retrieves the liquid bottling constraints, nil if unset.
func (s *Store) GetLiquidConstraints(ctx context.Context, allocationID string) (*models.LiquidAllocationConstraint, error) {
	var c models.LiquidAllocationConstraint
	err := s.db.GetContext(ctx, &c,
		"SELECT * FROM liquid_allocation_constraints WHERE allocation_id = $1", allocationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertConstraints writes the allow-lists for an allocation. The allocation
// row is locked first and its status re-checked inside the transaction, so a
// concurrent release cannot slip an edit past the draft-only rule.
func (s *Store) UpsertConstraints(ctx context.Context, c *models.AllocationConstraint, actor string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		alloc, err := getAllocationForUpdate(ctx, tx, c.AllocationID)
		if err != nil {
			return err
		}
		if !alloc.CanEditConstraints() {
			return models.ErrConstraintsLocked
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO allocation_constraints
				(allocation_id, allowed_channels, allowed_geographies, allowed_customer_types)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (allocation_id) DO UPDATE SET
				allowed_channels = EXCLUDED.allowed_channels,
				allowed_geographies = EXCLUDED.allowed_geographies,
				allowed_customer_types = EXCLUDED.allowed_customer_types,
				updated_at = NOW()`,
			c.AllocationID, c.AllowedChannels, c.AllowedGeographies, c.AllowedCustomerTypes)
		if err != nil {
			return fmt.Errorf("upsert constraints: %w", err)
		}

		return appendAudit(ctx, tx, models.AuditEntityAllocation, c.AllocationID, "constraints_updated", actor, "")
	})
}

// UpsertLiquidConstraints writes the bottling rules for a liquid allocation.
func (s *Store) UpsertLiquidConstraints(ctx context.Context, c *models.LiquidAllocationConstraint, actor string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		alloc, err := getAllocationForUpdate(ctx, tx, c.AllocationID)
		if err != nil {
			return err
		}
		if !alloc.CanEditConstraints() {
			return models.ErrConstraintsLocked
		}
		if alloc.SupplyForm != models.SupplyFormLiquid {
			return models.ErrSupplyFormMismatch
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO liquid_allocation_constraints
				(allocation_id, allowed_bottling_formats, allowed_case_configs, bottling_deadline)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (allocation_id) DO UPDATE SET
				allowed_bottling_formats = EXCLUDED.allowed_bottling_formats,
				allowed_case_configs = EXCLUDED.allowed_case_configs,
				bottling_deadline = EXCLUDED.bottling_deadline,
				updated_at = NOW()`,
			c.AllocationID, c.AllowedBottlingFormats, c.AllowedCaseConfigs, c.BottlingDeadline)
		if err != nil {
			return fmt.Errorf("upsert liquid constraints: %w", err)
		}

		return appendAudit(ctx, tx, models.AuditEntityAllocation, c.AllocationID, "liquid_constraints_updated", actor, "")
	})
}
