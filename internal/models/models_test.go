package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeAllocation(total, sold int) *Allocation {
	return &Allocation{
		ID:            "alloc-1",
		TotalQuantity: total,
		SoldQuantity:  sold,
		Status:        AllocationStatusActive,
	}
}

func TestConsumeUntilExhausted(t *testing.T) {
	a := activeAllocation(6, 0)

	// Sell all six bottles one at a time.
	for i := 0; i < 6; i++ {
		require.NoError(t, a.Consume(1))
	}

	assert.Equal(t, 6, a.SoldQuantity)
	assert.Equal(t, 0, a.RemainingQuantity())
	assert.Equal(t, AllocationStatusExhausted, a.Status)

	// The seventh sale fails with a supply error and nothing changes.
	err := a.Consume(1)
	assert.ErrorIs(t, err, ErrInsufficientSupply)
	assert.Equal(t, 6, a.SoldQuantity)
}

func TestConsumeOversell(t *testing.T) {
	a := activeAllocation(10, 8)

	err := a.Consume(3)
	assert.ErrorIs(t, err, ErrInsufficientSupply)
	assert.Equal(t, 8, a.SoldQuantity)

	require.NoError(t, a.Consume(2))
	assert.Equal(t, AllocationStatusExhausted, a.Status)
}

func TestConsumeInvalidQuantity(t *testing.T) {
	a := activeAllocation(10, 0)

	assert.ErrorIs(t, a.Consume(0), ErrInvalidQuantity)
	assert.ErrorIs(t, a.Consume(-5), ErrInvalidQuantity)
}

func TestConsumeWrongStatus(t *testing.T) {
	for _, status := range []AllocationStatus{
		AllocationStatusDraft,
		AllocationStatusClosed,
	} {
		a := activeAllocation(10, 0)
		a.Status = status
		assert.ErrorIs(t, a.Consume(1), ErrNotConsumable, "status %s", status)
	}

	// Exhausted is a supply condition, not a lifecycle one.
	a := activeAllocation(10, 10)
	a.Status = AllocationStatusExhausted
	assert.ErrorIs(t, a.Consume(1), ErrInsufficientSupply)
}

func TestAllocationValidate(t *testing.T) {
	assert.NoError(t, activeAllocation(10, 10).Validate())
	assert.ErrorIs(t, activeAllocation(10, 11).Validate(), ErrInsufficientSupply)
	assert.ErrorIs(t, activeAllocation(-1, 0).Validate(), ErrInvalidQuantity)
}

func TestIsNearExhaustion(t *testing.T) {
	assert.False(t, activeAllocation(100, 89).IsNearExhaustion()) // 11% left
	assert.False(t, activeAllocation(100, 90).IsNearExhaustion()) // exactly 10%
	assert.True(t, activeAllocation(100, 91).IsNearExhaustion())  // 9% left
	assert.True(t, activeAllocation(100, 100).IsNearExhaustion())

	// Empty allocation is never near exhaustion.
	assert.False(t, activeAllocation(0, 0).IsNearExhaustion())
}

func TestCanEditConstraints(t *testing.T) {
	a := activeAllocation(10, 0)
	a.Status = AllocationStatusDraft
	assert.True(t, a.CanEditConstraints())

	a.Status = AllocationStatusActive
	assert.False(t, a.CanEditConstraints())
}

func TestReservationIsDue(t *testing.T) {
	now := time.Now()
	r := &TemporaryReservation{
		Status:    ReservationStatusActive,
		ExpiresAt: now.Add(-time.Minute),
	}
	assert.True(t, r.IsDue(now))

	r.ExpiresAt = now.Add(time.Minute)
	assert.False(t, r.IsDue(now))

	r.ExpiresAt = now.Add(-time.Minute)
	r.Status = ReservationStatusExpired
	assert.False(t, r.IsDue(now), "already expired holds are not due again")
}

func TestVoucherValidate(t *testing.T) {
	v := &Voucher{Quantity: 1}
	assert.NoError(t, v.Validate())

	v.Quantity = 2
	assert.ErrorIs(t, v.Validate(), ErrImmutableField)

	v.Quantity = 0
	assert.ErrorIs(t, v.Validate(), ErrImmutableField)
}

func TestVoucherTradingGuards(t *testing.T) {
	v := &Voucher{State: VoucherStateIssued, Tradable: true, Giftable: true}
	assert.True(t, v.CanBeTradedOrTransferred())
	assert.True(t, v.CanBeGifted())

	v.Suspended = true
	assert.False(t, v.CanBeTradedOrTransferred())
	assert.False(t, v.CanBeGifted())

	v.Suspended = false
	v.State = VoucherStateLocked
	assert.False(t, v.CanBeTradedOrTransferred())
	assert.False(t, v.CanBeGifted())

	v.State = VoucherStateIssued
	v.Tradable = false
	assert.False(t, v.CanBeTradedOrTransferred())
	assert.True(t, v.CanBeGifted())

	v.Giftable = false
	assert.False(t, v.CanBeGifted())
}

func TestCaseCheckIntegrity(t *testing.T) {
	c := &CaseEntitlement{ID: "case-1", CustomerID: "cust-1", Status: CaseStatusIntact}

	members := []Voucher{
		{CustomerID: "cust-1", State: VoucherStateIssued},
		{CustomerID: "cust-1", State: VoucherStateLocked},
	}
	assert.True(t, c.CheckIntegrity(members))

	// A member transferred to another customer breaks integrity.
	members[1].CustomerID = "cust-2"
	assert.False(t, c.CheckIntegrity(members))

	// A redeemed member breaks integrity even if ownership is intact.
	members[1].CustomerID = "cust-1"
	members[1].State = VoucherStateRedeemed
	assert.False(t, c.CheckIntegrity(members))

	members[1].State = VoucherStateIssued
	c.Status = CaseStatusBroken
	assert.False(t, c.CheckIntegrity(members))
}

func TestTransferIsDue(t *testing.T) {
	now := time.Now()
	tr := &VoucherTransfer{Status: TransferStatusPending, ExpiresAt: now.Add(-time.Hour)}
	assert.True(t, tr.IsDue(now))

	tr.ExpiresAt = now.Add(time.Hour)
	assert.False(t, tr.IsDue(now))

	tr.ExpiresAt = now.Add(-time.Hour)
	tr.Status = TransferStatusAccepted
	assert.False(t, tr.IsDue(now))
}
