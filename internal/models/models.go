package models

import "time"

// Allocation is the ledger of sellable supply for one
// (wine variant, bottle format, source) tuple. It is the single source of
// truth for how much supply exists and how much has been sold.
type Allocation struct {
	ID                    string           `db:"id" json:"id"`
	WineVariantID         string           `db:"wine_variant_id" json:"wine_variant_id"`
	FormatID              string           `db:"format_id" json:"format_id"`
	SourceType            string           `db:"source_type" json:"source_type"`
	SupplyForm            SupplyForm       `db:"supply_form" json:"supply_form"`
	TotalQuantity         int              `db:"total_quantity" json:"total_quantity"`
	SoldQuantity          int              `db:"sold_quantity" json:"sold_quantity"`
	Status                AllocationStatus `db:"status" json:"status"`
	SerializationRequired bool             `db:"serialization_required" json:"serialization_required"`
	AvailableFrom         *time.Time       `db:"available_from" json:"available_from,omitempty"`
	AvailableUntil        *time.Time       `db:"available_until" json:"available_until,omitempty"`
	CreatedBy             string           `db:"created_by" json:"created_by"`
	CreatedAt             time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time        `db:"updated_at" json:"updated_at"`
}

// RemainingQuantity is the unsold portion of the allocation.
func (a *Allocation) RemainingQuantity() int {
	return a.TotalQuantity - a.SoldQuantity
}

// CanBeConsumed reports whether supply can be taken from this allocation:
// it must be released for sale and have unsold units left.
func (a *Allocation) CanBeConsumed() bool {
	return a.Status == AllocationStatusActive && a.RemainingQuantity() > 0
}

// CanEditConstraints reports whether commercial constraints may still be
// changed. Only draft allocations are editable.
func (a *Allocation) CanEditConstraints() bool {
	return a.Status == AllocationStatusDraft
}

// IsNearExhaustion reports whether less than 10% of total supply remains.
// An empty allocation (total = 0) is never "near" exhaustion.
func (a *Allocation) IsNearExhaustion() bool {
	if a.TotalQuantity == 0 {
		return false
	}
	return float64(a.RemainingQuantity())/float64(a.TotalQuantity) < 0.1
}

// Consume takes qty units of supply. It fails with ErrNotConsumable when the
// allocation was never on sale (draft) or is closed, ErrInvalidQuantity for
// qty <= 0 and ErrInsufficientSupply when qty exceeds the remaining units,
// which covers an already-exhausted allocation. When the last unit is taken
// the allocation moves to exhausted.
//
// Consume mutates the in-memory struct only. The store re-applies the same
// check as a conditional UPDATE under a row lock, which is what actually
// prevents two concurrent consumers from both taking the last unit.
func (a *Allocation) Consume(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if a.Status == AllocationStatusDraft || a.Status == AllocationStatusClosed {
		return ErrNotConsumable
	}
	if qty > a.RemainingQuantity() {
		return ErrInsufficientSupply
	}
	a.SoldQuantity += qty
	if a.RemainingQuantity() == 0 {
		a.Status = AllocationStatusExhausted
	}
	return nil
}

// Validate is the last-line-of-defense gate run before every allocation
// write, regardless of which path produced the state.
func (a *Allocation) Validate() error {
	if a.TotalQuantity < 0 || a.SoldQuantity < 0 {
		return ErrInvalidQuantity
	}
	if a.SoldQuantity > a.TotalQuantity {
		return ErrInsufficientSupply
	}
	return nil
}

// TemporaryReservation is a time-boxed soft hold against an allocation. It
// never mutates the allocation's sold/remaining counters; callers computing
// truly available supply subtract the sum of active, unexpired holds.
type TemporaryReservation struct {
	ID               string            `db:"id" json:"id"`
	AllocationID     string            `db:"allocation_id" json:"allocation_id"`
	Quantity         int               `db:"quantity" json:"quantity"`
	ContextType      string            `db:"context_type" json:"context_type"`
	ContextReference string            `db:"context_reference" json:"context_reference"`
	Status           ReservationStatus `db:"status" json:"status"`
	ExpiresAt        time.Time         `db:"expires_at" json:"expires_at"`
	CreatedBy        string            `db:"created_by" json:"created_by"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// Reservation context types.
const (
	ReservationContextCheckout    = "checkout"
	ReservationContextNegotiation = "negotiation"
	ReservationContextManualHold  = "manual_hold"
)

// IsDue reports whether an active reservation has passed its expiry.
func (r *TemporaryReservation) IsDue(now time.Time) bool {
	return r.Status == ReservationStatusActive && !r.ExpiresAt.After(now)
}

// Voucher is an atomic customer entitlement to exactly one bottle-equivalent,
// minted by consuming one unit of its allocation. AllocationID and Quantity
// are write-once; the store never updates either column.
type Voucher struct {
	ID            string       `db:"id" json:"id"`
	CustomerID    string       `db:"customer_id" json:"customer_id"`
	AllocationID  string       `db:"allocation_id" json:"allocation_id"`
	WineVariantID string       `db:"wine_variant_id" json:"wine_variant_id"`
	FormatID      string       `db:"format_id" json:"format_id"`
	SellableSKUID string       `db:"sellable_sku_id" json:"sellable_sku_id"`
	Quantity      int          `db:"quantity" json:"quantity"`
	State         VoucherState `db:"lifecycle_state" json:"lifecycle_state"`
	Tradable      bool         `db:"tradable" json:"tradable"`
	Giftable      bool         `db:"giftable" json:"giftable"`
	Suspended     bool         `db:"suspended" json:"suspended"`
	SuspendReason string       `db:"suspend_reason" json:"suspend_reason,omitempty"`
	SaleReference string       `db:"sale_reference" json:"sale_reference"`
	CaseID        *string      `db:"case_id" json:"case_id,omitempty"`
	CreatedBy     string       `db:"created_by" json:"created_by"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// Validate rejects any voucher whose quantity is not exactly one. A voucher
// represents one bottle-equivalent, always.
func (v *Voucher) Validate() error {
	if v.Quantity != 1 {
		return ErrImmutableField
	}
	return nil
}

// CanBeTradedOrTransferred reports whether the voucher may change owner:
// it must be issued (not locked for fulfillment), flagged tradable and not
// suspended.
func (v *Voucher) CanBeTradedOrTransferred() bool {
	return v.State == VoucherStateIssued && v.Tradable && !v.Suspended
}

// CanBeGifted reports whether the voucher may be gifted.
func (v *Voucher) CanBeGifted() bool {
	return v.State == VoucherStateIssued && v.Giftable && !v.Suspended
}

// CaseEntitlement groups vouchers sold together as one physical case.
// Breaking (partial transfer or redemption of a member) is irreversible.
type CaseEntitlement struct {
	ID            string     `db:"id" json:"id"`
	CustomerID    string     `db:"customer_id" json:"customer_id"`
	SellableSKUID string     `db:"sellable_sku_id" json:"sellable_sku_id"`
	Status        CaseStatus `db:"status" json:"status"`
	BrokenAt      *time.Time `db:"broken_at" json:"broken_at,omitempty"`
	BrokenReason  string     `db:"broken_reason" json:"broken_reason,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// CanBeBroken reports whether the case is still intact.
func (c *CaseEntitlement) CanBeBroken() bool {
	return c.Status == CaseStatusIntact
}

// CheckIntegrity verifies that every member voucher still belongs to the
// case's original customer and has not been redeemed. It is a pure query; the
// transition to broken happens at the triggering action.
func (c *CaseEntitlement) CheckIntegrity(members []Voucher) bool {
	if c.Status != CaseStatusIntact {
		return false
	}
	for i := range members {
		if members[i].CustomerID != c.CustomerID {
			return false
		}
		if members[i].State == VoucherStateRedeemed {
			return false
		}
	}
	return true
}

// VoucherTransfer is a customer-to-customer handoff of a voucher's ownership.
// At most one pending transfer may exist per voucher; acceptance rewrites the
// voucher's customer and never touches allocation quantities.
type VoucherTransfer struct {
	ID             string         `db:"id" json:"id"`
	VoucherID      string         `db:"voucher_id" json:"voucher_id"`
	FromCustomerID string         `db:"from_customer_id" json:"from_customer_id"`
	ToCustomerID   string         `db:"to_customer_id" json:"to_customer_id"`
	Status         TransferStatus `db:"status" json:"status"`
	InitiatedAt    time.Time      `db:"initiated_at" json:"initiated_at"`
	ExpiresAt      time.Time      `db:"expires_at" json:"expires_at"`
	AcceptedAt     *time.Time     `db:"accepted_at" json:"accepted_at,omitempty"`
	CancelledAt    *time.Time     `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// IsDue reports whether a pending transfer has passed its expiry.
func (t *VoucherTransfer) IsDue(now time.Time) bool {
	return t.Status == TransferStatusPending && !t.ExpiresAt.After(now)
}

// AuditEvent is one row of the append-only audit log, written explicitly at
// every state transition.
type AuditEvent struct {
	ID         int64     `db:"id" json:"id"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Action     string    `db:"action" json:"action"`
	Actor      string    `db:"actor" json:"actor"`
	Detail     string    `db:"detail" json:"detail,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Audit entity types.
const (
	AuditEntityAllocation  = "allocation"
	AuditEntityReservation = "reservation"
	AuditEntityVoucher     = "voucher"
	AuditEntityTransfer    = "transfer"
	AuditEntityCase        = "case"
)
