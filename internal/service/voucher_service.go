package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"allocation-service/internal/broker"
	"allocation-service/internal/models"
	"allocation-service/internal/redisclient"
	"allocation-service/internal/store"
	"allocation-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VoucherService mints vouchers by consuming allocation supply and drives
// each voucher through its lifecycle.
type VoucherService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	allocations    *AllocationService
	reservations   *ReservationService
	cases          *CaseService
	logger         *zap.Logger
}

// NewVoucherService creates a new voucher service
func NewVoucherService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	allocations *AllocationService,
	reservations *ReservationService,
	cases *CaseService,
) *VoucherService {
	return &VoucherService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		allocations:    allocations,
		reservations:   reservations,
		cases:          cases,
		logger:         util.GetLogger(),
	}
}

// IssueVouchersRequest represents a confirmed sale to convert into vouchers
type IssueVouchersRequest struct {
	AllocationID  string `json:"allocation_id" binding:"required"`
	CustomerID    string `json:"customer_id" binding:"required"`
	SellableSKUID string `json:"sellable_sku_id" binding:"required"`
	SaleReference string `json:"sale_reference" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required,min=1"`
	Tradable      bool   `json:"tradable"`
	Giftable      bool   `json:"giftable"`
	GroupAsCase   bool   `json:"group_as_case"`

	// Optional hold to convert once issuance succeeds.
	ReservationID string `json:"reservation_id,omitempty"`

	Sale SaleContext `json:"sale_context"`
}

// IssueVouchersResponse represents the outcome of one issuance batch
type IssueVouchersResponse struct {
	Vouchers []models.Voucher        `json:"vouchers"`
	Case     *models.CaseEntitlement `json:"case,omitempty"`
}

// IssueVouchers atomically consumes allocation supply and mints one voucher
// per unit, optionally grouped as a case. The whole batch commits or rolls
// back together: a caller racing for the last units sees a single
// ErrInsufficientSupply and no partial vouchers.
func (s *VoucherService) IssueVouchers(ctx context.Context, req *IssueVouchersRequest, actor string) (*IssueVouchersResponse, error) {
	ctx, span := util.StartSpan(ctx, "VoucherService.IssueVouchers")
	defer span.End()

	start := time.Now()
	defer func() {
		util.IssuanceLatency.Observe(time.Since(start).Seconds())
	}()

	if req.Quantity <= 0 {
		util.IssuanceFailedTotal.WithLabelValues("invalid_quantity").Inc()
		return nil, models.ErrInvalidQuantity
	}

	allowed, err := s.allocations.CheckSaleAllowed(ctx, req.AllocationID, req.Sale)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate constraints: %w", err)
	}
	if !allowed {
		util.IssuanceFailedTotal.WithLabelValues("constraint_violation").Inc()
		return nil, models.ErrSaleNotPermitted
	}

	result, err := s.store.IssueVouchers(ctx, store.IssueVouchersParams{
		AllocationID:  req.AllocationID,
		CustomerID:    req.CustomerID,
		SellableSKUID: req.SellableSKUID,
		SaleReference: req.SaleReference,
		Quantity:      req.Quantity,
		Tradable:      req.Tradable,
		Giftable:      req.Giftable,
		GroupAsCase:   req.GroupAsCase,
		Actor:         actor,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientSupply):
			util.OversellRejectedTotal.Inc()
			util.IssuanceFailedTotal.WithLabelValues("insufficient_supply").Inc()
		case errors.Is(err, models.ErrNotConsumable):
			util.IssuanceFailedTotal.WithLabelValues("not_consumable").Inc()
		default:
			util.IssuanceFailedTotal.WithLabelValues("db_error").Inc()
		}
		return nil, err
	}

	util.VouchersIssuedTotal.Add(float64(len(result.Vouchers)))
	s.logger.Info("Vouchers issued",
		zap.String("allocation_id", req.AllocationID),
		zap.String("customer_id", req.CustomerID),
		zap.Int("count", len(result.Vouchers)),
		zap.Bool("exhausted", result.Exhausted))

	if req.ReservationID != "" {
		if err := s.reservations.Convert(ctx, req.ReservationID, actor); err != nil {
			// The sale already committed; a hold that lost its race with the
			// sweep will simply have expired.
			s.logger.Warn("Failed to convert reservation after issuance",
				zap.String("reservation_id", req.ReservationID),
				zap.Error(err))
		}
	}

	if err := s.redis.ConsumeUnits(ctx, req.AllocationID, req.Quantity); err != nil {
		s.logger.Warn("Failed to update availability mirror",
			zap.String("allocation_id", req.AllocationID),
			zap.Error(err))
	}

	for i := range result.Vouchers {
		v := &result.Vouchers[i]
		event := &models.VoucherIssuedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeVoucherIssued,
				Timestamp: time.Now(),
			},
			VoucherID:     v.ID,
			AllocationID:  v.AllocationID,
			CustomerID:    v.CustomerID,
			SellableSKUID: v.SellableSKUID,
			SaleReference: v.SaleReference,
		}
		if err := s.eventPublisher.PublishVoucherIssued(ctx, event); err != nil {
			s.logger.Error("Failed to publish VoucherIssued event", zap.Error(err))
		}
	}

	if result.Exhausted {
		util.AllocationsExhaustedTotal.Inc()
		alloc, err := s.store.GetAllocationByID(ctx, req.AllocationID)
		if err == nil {
			event := &models.AllocationExhaustedEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeAllocationExhausted,
					Timestamp: time.Now(),
				},
				AllocationID:  alloc.ID,
				WineVariantID: alloc.WineVariantID,
				FormatID:      alloc.FormatID,
			}
			if err := s.eventPublisher.PublishAllocationExhausted(ctx, event); err != nil {
				s.logger.Error("Failed to publish AllocationExhausted event", zap.Error(err))
			}
		}
	}

	return &IssueVouchersResponse{
		Vouchers: result.Vouchers,
		Case:     result.Case,
	}, nil
}

// GetVoucher retrieves a voucher by ID.
func (s *VoucherService) GetVoucher(ctx context.Context, voucherID string) (*models.Voucher, error) {
	return s.store.GetVoucherByID(ctx, voucherID)
}

// ListByCustomer returns all vouchers a customer holds, newest first.
func (s *VoucherService) ListByCustomer(ctx context.Context, customerID string) ([]models.Voucher, error) {
	return s.store.GetVouchersByCustomer(ctx, customerID)
}

// LockForFulfillment reserves an issued voucher for physical picking. No
// allocation impact.
func (s *VoucherService) LockForFulfillment(ctx context.Context, voucherID, actor string) error {
	ctx, span := util.StartSpan(ctx, "VoucherService.LockForFulfillment")
	defer span.End()

	return s.store.TransitionVoucher(ctx, voucherID,
		models.VoucherStateIssued, models.VoucherStateLocked, actor, "")
}

// Redeem confirms physical delivery of a locked voucher. Terminal. Redeeming
// a case member breaks the case.
func (s *VoucherService) Redeem(ctx context.Context, voucherID, actor string) error {
	ctx, span := util.StartSpan(ctx, "VoucherService.Redeem")
	defer span.End()

	voucher, err := s.store.GetVoucherByID(ctx, voucherID)
	if err != nil {
		return err
	}

	if err := s.store.TransitionVoucher(ctx, voucherID,
		models.VoucherStateLocked, models.VoucherStateRedeemed, actor, ""); err != nil {
		return err
	}

	s.logger.Info("Voucher redeemed", zap.String("voucher_id", voucherID))
	return s.cases.BreakForVoucher(ctx, voucher, "member_redeemed", actor)
}

// Cancel terminally cancels an issued or locked voucher. Supply is NOT
// re-credited; that requires an explicit allocation adjustment.
func (s *VoucherService) Cancel(ctx context.Context, voucherID, reason, actor string) error {
	ctx, span := util.StartSpan(ctx, "VoucherService.Cancel")
	defer span.End()

	voucher, err := s.store.GetVoucherByID(ctx, voucherID)
	if err != nil {
		return err
	}

	detail := fmt.Sprintf(`{"reason": %q}`, reason)
	if err := s.store.TransitionVoucher(ctx, voucherID,
		voucher.State, models.VoucherStateCancelled, actor, detail); err != nil {
		return err
	}

	s.logger.Info("Voucher cancelled",
		zap.String("voucher_id", voucherID),
		zap.String("reason", reason))
	return s.cases.BreakForVoucher(ctx, voucher, "member_cancelled", actor)
}

// Suspend blocks trading and gifting of a voucher without changing its
// lifecycle state.
func (s *VoucherService) Suspend(ctx context.Context, voucherID, reason, actor string) error {
	ctx, span := util.StartSpan(ctx, "VoucherService.Suspend")
	defer span.End()

	return s.store.SuspendVoucher(ctx, voucherID, reason, actor)
}

// SuspendForTrading suspends a voucher that is being listed on an external
// trading venue, recording the venue reference.
func (s *VoucherService) SuspendForTrading(ctx context.Context, voucherID, tradingRef, actor string) error {
	ctx, span := util.StartSpan(ctx, "VoucherService.SuspendForTrading")
	defer span.End()

	return s.store.SuspendVoucher(ctx, voucherID, "trading:"+tradingRef, actor)
}

// Unsuspend lifts a suspension.
func (s *VoucherService) Unsuspend(ctx context.Context, voucherID, actor string) error {
	ctx, span := util.StartSpan(ctx, "VoucherService.Unsuspend")
	defer span.End()

	return s.store.UnsuspendVoucher(ctx, voucherID, actor)
}
