package models

// Every status in the core is a closed string type with an explicit transition
// table. Mutating code must consult CanTransitionTo before writing; the store
// additionally guards each transition with a conditional UPDATE on the current
// status so concurrent writers cannot both win.

// SupplyForm distinguishes bottled stock from liquid still in barrel.
type SupplyForm string

const (
	SupplyFormBottled SupplyForm = "bottled"
	SupplyFormLiquid  SupplyForm = "liquid"
)

// AllocationStatus is the sale lifecycle of an allocation.
type AllocationStatus string

const (
	AllocationStatusDraft     AllocationStatus = "draft"
	AllocationStatusActive    AllocationStatus = "active"
	AllocationStatusExhausted AllocationStatus = "exhausted"
	AllocationStatusClosed    AllocationStatus = "closed"
)

var allocationTransitions = map[AllocationStatus][]AllocationStatus{
	AllocationStatusDraft:     {AllocationStatusActive, AllocationStatusClosed},
	AllocationStatusActive:    {AllocationStatusExhausted, AllocationStatusClosed},
	AllocationStatusExhausted: {AllocationStatusActive, AllocationStatusClosed},
	AllocationStatusClosed:    {},
}

// CanTransitionTo reports whether the allocation may move to target.
// Exhausted can return to active after a manual supply adjustment; closed is
// terminal.
func (s AllocationStatus) CanTransitionTo(target AllocationStatus) bool {
	return transitionAllowed(allocationTransitions[s], target)
}

// ReservationStatus is the lifecycle of a temporary reservation.
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusConverted ReservationStatus = "converted"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusActive: {ReservationStatusExpired, ReservationStatusCancelled, ReservationStatusConverted},
}

// CanTransitionTo reports whether the reservation may move to target. All
// states other than active are terminal.
func (s ReservationStatus) CanTransitionTo(target ReservationStatus) bool {
	return transitionAllowed(reservationTransitions[s], target)
}

// IsTerminal reports whether no further transitions are possible.
func (s ReservationStatus) IsTerminal() bool {
	return len(reservationTransitions[s]) == 0
}

// VoucherState is the lifecycle of a single-bottle voucher.
type VoucherState string

const (
	VoucherStateIssued    VoucherState = "issued"
	VoucherStateLocked    VoucherState = "locked"
	VoucherStateRedeemed  VoucherState = "redeemed"
	VoucherStateCancelled VoucherState = "cancelled"
)

var voucherTransitions = map[VoucherState][]VoucherState{
	VoucherStateIssued: {VoucherStateLocked, VoucherStateCancelled},
	VoucherStateLocked: {VoucherStateRedeemed, VoucherStateCancelled},
}

// CanTransitionTo reports whether the voucher may move to target. Redeemed and
// cancelled are terminal.
func (s VoucherState) CanTransitionTo(target VoucherState) bool {
	return transitionAllowed(voucherTransitions[s], target)
}

// TransferStatus is the lifecycle of a customer-to-customer voucher transfer.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusAccepted  TransferStatus = "accepted"
	TransferStatusCancelled TransferStatus = "cancelled"
	TransferStatusExpired   TransferStatus = "expired"
)

var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferStatusPending: {TransferStatusAccepted, TransferStatusCancelled, TransferStatusExpired},
}

// CanTransitionTo reports whether the transfer may move to target. Everything
// after pending is terminal.
func (s TransferStatus) CanTransitionTo(target TransferStatus) bool {
	return transitionAllowed(transferTransitions[s], target)
}

// IsTerminal reports whether no further transitions are possible.
func (s TransferStatus) IsTerminal() bool {
	return len(transferTransitions[s]) == 0
}

// CaseStatus is the integrity status of a case entitlement.
type CaseStatus string

const (
	CaseStatusIntact CaseStatus = "intact"
	CaseStatusBroken CaseStatus = "broken"
)

// CanTransitionTo reports whether the case may move to target. Intact to
// broken is the only legal move and it is irreversible.
func (s CaseStatus) CanTransitionTo(target CaseStatus) bool {
	return s == CaseStatusIntact && target == CaseStatusBroken
}

func transitionAllowed[T comparable](allowed []T, target T) bool {
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}
