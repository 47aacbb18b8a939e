package models

import "errors"

// Typed failures surfaced by the allocation/voucher core. Services wrap these
// with context via fmt.Errorf("...: %w", err); callers match with errors.Is.
var (
	ErrInsufficientSupply     = errors.New("insufficient supply")
	ErrNotConsumable          = errors.New("allocation not consumable")
	ErrConstraintsLocked      = errors.New("constraints locked")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrImmutableField         = errors.New("immutable field modified")
	ErrTransferAlreadyPending = errors.New("transfer already pending")
	ErrTransferExpired        = errors.New("transfer expired")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrNotTradable            = errors.New("voucher not tradable")
	ErrSaleNotPermitted       = errors.New("sale not permitted by constraints")
	ErrNotGiftable            = errors.New("voucher not giftable")
	ErrSupplyFormMismatch     = errors.New("supply form mismatch")
	ErrCaseBroken             = errors.New("case already broken")

	ErrAllocationNotFound  = errors.New("allocation not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrVoucherNotFound     = errors.New("voucher not found")
	ErrTransferNotFound    = errors.New("transfer not found")
	ErrCaseNotFound        = errors.New("case not found")
)
