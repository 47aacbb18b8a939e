package service

import (
	"context"
	"testing"

	"allocation-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestIssueVouchersRejectsInvalidQuantity(t *testing.T) {
	vs := &VoucherService{}

	_, err := vs.IssueVouchers(context.Background(), &IssueVouchersRequest{
		AllocationID: "alloc-1",
		CustomerID:   "cust-1",
		Quantity:     0,
	}, "tester")
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	_, err = vs.IssueVouchers(context.Background(), &IssueVouchersRequest{
		AllocationID: "alloc-1",
		CustomerID:   "cust-1",
		Quantity:     -3,
	}, "tester")
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
}

func TestReserveRejectsInvalidQuantity(t *testing.T) {
	rs := &ReservationService{}

	_, err := rs.Reserve(context.Background(), &ReserveRequest{
		AllocationID: "alloc-1",
		Quantity:     0,
		ContextType:  models.ReservationContextCheckout,
	}, "tester")
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
}

func TestSaleContextAgainstConstraints(t *testing.T) {
	c := &models.AllocationConstraint{
		AllowedChannels:    []string{"en_primeur"},
		AllowedGeographies: []string{"FR", "UK"},
	}

	sale := SaleContext{Channel: "en_primeur", Geography: "FR", CustomerType: "collector"}
	assert.True(t, c.IsChannelAllowed(sale.Channel))
	assert.True(t, c.IsGeographyAllowed(sale.Geography))
	assert.True(t, c.IsCustomerTypeAllowed(sale.CustomerType))

	sale.Channel = "retail"
	assert.False(t, c.IsChannelAllowed(sale.Channel))
}
