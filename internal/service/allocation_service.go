package service

import (
	"context"
	"fmt"
	"time"

	"allocation-service/internal/models"
	"allocation-service/internal/redisclient"
	"allocation-service/internal/store"
	"allocation-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllocationService owns the supply ledger and its commercial constraints.
type AllocationService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewAllocationService creates a new allocation service
func NewAllocationService(store *store.Store, redis *redisclient.Client) *AllocationService {
	return &AllocationService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// CreateAllocationRequest represents a request to register new supply
type CreateAllocationRequest struct {
	WineVariantID         string     `json:"wine_variant_id" binding:"required"`
	FormatID              string     `json:"format_id" binding:"required"`
	SourceType            string     `json:"source_type" binding:"required"`
	SupplyForm            string     `json:"supply_form" binding:"required,oneof=bottled liquid"`
	TotalQuantity         int        `json:"total_quantity" binding:"required,min=1"`
	SerializationRequired bool       `json:"serialization_required"`
	AvailableFrom         *time.Time `json:"available_from,omitempty"`
	AvailableUntil        *time.Time `json:"available_until,omitempty"`
}

// CreateAllocation registers new supply in draft status. Constraints stay
// editable until the allocation is released.
func (s *AllocationService) CreateAllocation(ctx context.Context, req *CreateAllocationRequest, actor string) (*models.Allocation, error) {
	ctx, span := util.StartSpan(ctx, "AllocationService.CreateAllocation")
	defer span.End()

	if req.TotalQuantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}

	alloc := &models.Allocation{
		ID:                    uuid.New().String(),
		WineVariantID:         req.WineVariantID,
		FormatID:              req.FormatID,
		SourceType:            req.SourceType,
		SupplyForm:            models.SupplyForm(req.SupplyForm),
		TotalQuantity:         req.TotalQuantity,
		SoldQuantity:          0,
		Status:                models.AllocationStatusDraft,
		SerializationRequired: req.SerializationRequired,
		AvailableFrom:         req.AvailableFrom,
		AvailableUntil:        req.AvailableUntil,
		CreatedBy:             actor,
	}

	if err := s.store.CreateAllocation(ctx, alloc); err != nil {
		return nil, fmt.Errorf("failed to create allocation: %w", err)
	}

	s.logger.Info("Allocation created",
		zap.String("allocation_id", alloc.ID),
		zap.String("wine_variant_id", alloc.WineVariantID),
		zap.Int("total_quantity", alloc.TotalQuantity))

	return alloc, nil
}

// Release moves a draft allocation on sale and seeds its availability mirror.
func (s *AllocationService) Release(ctx context.Context, allocationID, actor string) error {
	ctx, span := util.StartSpan(ctx, "AllocationService.Release")
	defer span.End()

	if err := s.store.TransitionAllocation(ctx, allocationID,
		models.AllocationStatusDraft, models.AllocationStatusActive, actor); err != nil {
		return err
	}

	alloc, err := s.store.GetAllocationByID(ctx, allocationID)
	if err != nil {
		return err
	}
	if err := s.redis.InitAvailability(ctx, allocationID, alloc.RemainingQuantity(), 0); err != nil {
		s.logger.Warn("Failed to mirror availability to Redis",
			zap.String("allocation_id", allocationID),
			zap.Error(err))
	}

	s.logger.Info("Allocation released for sale", zap.String("allocation_id", allocationID))
	return nil
}

// Close terminally closes an allocation, blocking further consumption.
func (s *AllocationService) Close(ctx context.Context, allocationID, actor string) error {
	ctx, span := util.StartSpan(ctx, "AllocationService.Close")
	defer span.End()

	alloc, err := s.store.GetAllocationByID(ctx, allocationID)
	if err != nil {
		return err
	}
	return s.store.TransitionAllocation(ctx, allocationID, alloc.Status, models.AllocationStatusClosed, actor)
}

// AllocationView is the ledger plus its derived availability numbers and any
// constraints attached to it.
type AllocationView struct {
	Allocation        *models.Allocation                 `json:"allocation"`
	Remaining         int                                `json:"remaining_quantity"`
	ActiveHolds       int                                `json:"active_holds"`
	AvailableToSell   int                                `json:"available_to_sell"`
	NearExhaustion    bool                               `json:"near_exhaustion"`
	Constraints       *models.AllocationConstraint       `json:"constraints,omitempty"`
	LiquidConstraints *models.LiquidAllocationConstraint `json:"liquid_constraints,omitempty"`
}

// GetAllocation returns the ledger and the truly-available supply: remaining
// minus the sum of active, unexpired reservations.
func (s *AllocationService) GetAllocation(ctx context.Context, allocationID string) (*AllocationView, error) {
	ctx, span := util.StartSpan(ctx, "AllocationService.GetAllocation")
	defer span.End()

	alloc, err := s.store.GetAllocationByID(ctx, allocationID)
	if err != nil {
		return nil, err
	}

	held, err := s.store.SumActiveReservations(ctx, allocationID, time.Now())
	if err != nil {
		return nil, err
	}

	constraints, err := s.store.GetConstraints(ctx, allocationID)
	if err != nil {
		return nil, err
	}

	var liquid *models.LiquidAllocationConstraint
	if alloc.SupplyForm == models.SupplyFormLiquid {
		liquid, err = s.store.GetLiquidConstraints(ctx, allocationID)
		if err != nil {
			return nil, err
		}
	}

	return &AllocationView{
		Allocation:        alloc,
		Remaining:         alloc.RemainingQuantity(),
		ActiveHolds:       held,
		AvailableToSell:   alloc.RemainingQuantity() - held,
		NearExhaustion:    alloc.IsNearExhaustion(),
		Constraints:       constraints,
		LiquidConstraints: liquid,
	}, nil
}

// AuditTrail returns the append-only audit log for one entity, oldest first.
func (s *AllocationService) AuditTrail(ctx context.Context, entityType, entityID string) ([]models.AuditEvent, error) {
	return s.store.GetAuditTrail(ctx, entityType, entityID)
}

// AdjustTotalQuantity is the explicit, audited supply correction. Cancelled
// vouchers never re-credit supply implicitly; an operator calls this instead.
func (s *AllocationService) AdjustTotalQuantity(ctx context.Context, allocationID string, delta int, actor, reason string) (*models.Allocation, error) {
	ctx, span := util.StartSpan(ctx, "AllocationService.AdjustTotalQuantity")
	defer span.End()

	alloc, err := s.store.AdjustTotalQuantity(ctx, allocationID, delta, actor, reason)
	if err != nil {
		return nil, err
	}

	if err := s.redis.InitAvailability(ctx, allocationID, alloc.RemainingQuantity(), 0); err != nil {
		s.logger.Warn("Failed to refresh availability mirror",
			zap.String("allocation_id", allocationID),
			zap.Error(err))
	}

	s.logger.Info("Allocation quantity adjusted",
		zap.String("allocation_id", allocationID),
		zap.Int("delta", delta),
		zap.String("reason", reason))
	return alloc, nil
}

// ConstraintsRequest carries the allow-lists for an allocation.
type ConstraintsRequest struct {
	AllowedChannels      []string `json:"allowed_channels"`
	AllowedGeographies   []string `json:"allowed_geographies"`
	AllowedCustomerTypes []string `json:"allowed_customer_types"`

	// Liquid-only bottling rules; rejected unless supply_form = liquid.
	AllowedBottlingFormats []string   `json:"allowed_bottling_formats,omitempty"`
	AllowedCaseConfigs     []string   `json:"allowed_case_configs,omitempty"`
	BottlingDeadline       *time.Time `json:"bottling_deadline,omitempty"`
}

// UpsertConstraints writes constraints for a draft allocation. Fails with
// ErrConstraintsLocked once the allocation has left draft.
func (s *AllocationService) UpsertConstraints(ctx context.Context, allocationID string, req *ConstraintsRequest, actor string) error {
	ctx, span := util.StartSpan(ctx, "AllocationService.UpsertConstraints")
	defer span.End()

	c := &models.AllocationConstraint{
		AllocationID:         allocationID,
		AllowedChannels:      req.AllowedChannels,
		AllowedGeographies:   req.AllowedGeographies,
		AllowedCustomerTypes: req.AllowedCustomerTypes,
	}
	if err := s.store.UpsertConstraints(ctx, c, actor); err != nil {
		return err
	}

	if len(req.AllowedBottlingFormats) > 0 || len(req.AllowedCaseConfigs) > 0 || req.BottlingDeadline != nil {
		lc := &models.LiquidAllocationConstraint{
			AllocationID:           allocationID,
			AllowedBottlingFormats: req.AllowedBottlingFormats,
			AllowedCaseConfigs:     req.AllowedCaseConfigs,
			BottlingDeadline:       req.BottlingDeadline,
		}
		if err := s.store.UpsertLiquidConstraints(ctx, lc, actor); err != nil {
			return err
		}
	}

	return nil
}

// SaleContext identifies who is buying through which channel into where.
type SaleContext struct {
	Channel      string `json:"channel"`
	Geography    string `json:"geography"`
	CustomerType string `json:"customer_type"`
}

// CheckSaleAllowed evaluates the allocation's constraints against a sale
// context. An allocation without constraints allows everything; each unset
// allow-list is open, including geographies.
func (s *AllocationService) CheckSaleAllowed(ctx context.Context, allocationID string, sale SaleContext) (bool, error) {
	ctx, span := util.StartSpan(ctx, "AllocationService.CheckSaleAllowed")
	defer span.End()

	c, err := s.store.GetConstraints(ctx, allocationID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return true, nil
	}

	return c.IsChannelAllowed(sale.Channel) &&
		c.IsGeographyAllowed(sale.Geography) &&
		c.IsCustomerTypeAllowed(sale.CustomerType), nil
}

// SyncAvailabilityToRedis reseeds the availability mirror for one allocation
// from the authoritative Postgres counters.
func (s *AllocationService) SyncAvailabilityToRedis(ctx context.Context, allocationID string) error {
	alloc, err := s.store.GetAllocationByID(ctx, allocationID)
	if err != nil {
		return err
	}
	held, err := s.store.SumActiveReservations(ctx, allocationID, time.Now())
	if err != nil {
		return err
	}
	return s.redis.InitAvailability(ctx, allocationID, alloc.RemainingQuantity(), held)
}

// SyncAllAvailability reseeds the mirror for every active allocation. Run at
// boot so a Redis restart never leaves the fast path without counters.
func (s *AllocationService) SyncAllAvailability(ctx context.Context) error {
	allocs, err := s.store.ListAllocationsByStatus(ctx, models.AllocationStatusActive)
	if err != nil {
		return err
	}

	for i := range allocs {
		if err := s.SyncAvailabilityToRedis(ctx, allocs[i].ID); err != nil {
			return fmt.Errorf("sync availability for allocation %s: %w", allocs[i].ID, err)
		}
	}

	s.logger.Info("Availability mirror synced", zap.Int("allocations", len(allocs)))
	return nil
}
