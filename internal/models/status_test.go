package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocationStatusTransitions(t *testing.T) {
	assert.True(t, AllocationStatusDraft.CanTransitionTo(AllocationStatusActive))
	assert.True(t, AllocationStatusDraft.CanTransitionTo(AllocationStatusClosed))
	assert.False(t, AllocationStatusDraft.CanTransitionTo(AllocationStatusExhausted))

	assert.True(t, AllocationStatusActive.CanTransitionTo(AllocationStatusExhausted))
	assert.True(t, AllocationStatusActive.CanTransitionTo(AllocationStatusClosed))
	assert.False(t, AllocationStatusActive.CanTransitionTo(AllocationStatusDraft))

	// Exhausted can re-open after a supply adjustment.
	assert.True(t, AllocationStatusExhausted.CanTransitionTo(AllocationStatusActive))
	assert.True(t, AllocationStatusExhausted.CanTransitionTo(AllocationStatusClosed))

	// Closed is terminal.
	assert.False(t, AllocationStatusClosed.CanTransitionTo(AllocationStatusActive))
	assert.False(t, AllocationStatusClosed.CanTransitionTo(AllocationStatusDraft))
	assert.False(t, AllocationStatusClosed.CanTransitionTo(AllocationStatusExhausted))
}

func TestReservationStatusTransitions(t *testing.T) {
	assert.True(t, ReservationStatusActive.CanTransitionTo(ReservationStatusExpired))
	assert.True(t, ReservationStatusActive.CanTransitionTo(ReservationStatusCancelled))
	assert.True(t, ReservationStatusActive.CanTransitionTo(ReservationStatusConverted))

	for _, terminal := range []ReservationStatus{
		ReservationStatusExpired,
		ReservationStatusCancelled,
		ReservationStatusConverted,
	} {
		assert.True(t, terminal.IsTerminal())
		assert.False(t, terminal.CanTransitionTo(ReservationStatusActive))
	}
	assert.False(t, ReservationStatusActive.IsTerminal())
}

func TestVoucherStateTransitions(t *testing.T) {
	assert.True(t, VoucherStateIssued.CanTransitionTo(VoucherStateLocked))
	assert.True(t, VoucherStateIssued.CanTransitionTo(VoucherStateCancelled))
	assert.False(t, VoucherStateIssued.CanTransitionTo(VoucherStateRedeemed))

	assert.True(t, VoucherStateLocked.CanTransitionTo(VoucherStateRedeemed))
	assert.True(t, VoucherStateLocked.CanTransitionTo(VoucherStateCancelled))
	assert.False(t, VoucherStateLocked.CanTransitionTo(VoucherStateIssued))

	assert.False(t, VoucherStateRedeemed.CanTransitionTo(VoucherStateCancelled))
	assert.False(t, VoucherStateCancelled.CanTransitionTo(VoucherStateIssued))
}

func TestTransferStatusTransitions(t *testing.T) {
	assert.True(t, TransferStatusPending.CanTransitionTo(TransferStatusAccepted))
	assert.True(t, TransferStatusPending.CanTransitionTo(TransferStatusCancelled))
	assert.True(t, TransferStatusPending.CanTransitionTo(TransferStatusExpired))

	assert.True(t, TransferStatusAccepted.IsTerminal())
	assert.True(t, TransferStatusCancelled.IsTerminal())
	assert.True(t, TransferStatusExpired.IsTerminal())
	assert.False(t, TransferStatusExpired.CanTransitionTo(TransferStatusPending))
}

func TestCaseStatusTransitions(t *testing.T) {
	assert.True(t, CaseStatusIntact.CanTransitionTo(CaseStatusBroken))
	assert.False(t, CaseStatusBroken.CanTransitionTo(CaseStatusIntact))
	assert.False(t, CaseStatusIntact.CanTransitionTo(CaseStatusIntact))
}
