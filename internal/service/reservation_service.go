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

// ReservationService manages time-boxed soft holds against allocations.
// Reservations never mutate the allocation's sold/remaining counters; they
// only narrow what callers may still sell.
type ReservationService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
	ttl            time.Duration
}

// NewReservationService creates a new reservation service
func NewReservationService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	ttl time.Duration,
) *ReservationService {
	return &ReservationService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
		ttl:            ttl,
	}
}

// ReserveRequest represents a request to hold supply during a checkout flow
type ReserveRequest struct {
	AllocationID     string `json:"allocation_id" binding:"required"`
	Quantity         int    `json:"quantity" binding:"required"`
	ContextType      string `json:"context_type" binding:"required"`
	ContextReference string `json:"context_reference"`
}

// Reserve creates an active hold expiring after the configured TTL. The
// Redis counter gives a fast-path rejection when supply is obviously gone;
// Redis being down never blocks a reservation, since the hold itself does not
// consume anything.
func (s *ReservationService) Reserve(ctx context.Context, req *ReserveRequest, actor string) (*models.TemporaryReservation, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.Reserve")
	defer span.End()

	if req.Quantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}

	alloc, err := s.store.GetAllocationByID(ctx, req.AllocationID)
	if err != nil {
		return nil, err
	}
	if !alloc.CanBeConsumed() {
		if alloc.Status == models.AllocationStatusExhausted {
			return nil, models.ErrInsufficientSupply
		}
		return nil, models.ErrNotConsumable
	}

	held, err := s.redis.HoldUnits(ctx, req.AllocationID, req.Quantity)
	if errors.Is(err, redisclient.ErrAvailabilityNotSeeded) {
		// Mirror lost (Redis restart or flush). Reseed from the authoritative
		// counters and try again; a failed reseed drops through to the DB check.
		activeHolds, dbErr := s.store.SumActiveReservations(ctx, req.AllocationID, time.Now())
		if dbErr != nil {
			return nil, dbErr
		}
		if seedErr := s.redis.InitAvailability(ctx, req.AllocationID, alloc.RemainingQuantity(), activeHolds); seedErr != nil {
			s.logger.Warn("Failed to reseed availability mirror",
				zap.String("allocation_id", req.AllocationID),
				zap.Error(seedErr))
		}
		held, err = s.redis.HoldUnits(ctx, req.AllocationID, req.Quantity)
	}
	if err != nil {
		s.logger.Warn("Redis hold failed, checking availability in DB",
			zap.String("allocation_id", req.AllocationID),
			zap.Error(err))

		activeHolds, dbErr := s.store.SumActiveReservations(ctx, req.AllocationID, time.Now())
		if dbErr != nil {
			return nil, dbErr
		}
		held = req.Quantity <= alloc.RemainingQuantity()-activeHolds
	}
	if !held {
		return nil, models.ErrInsufficientSupply
	}

	reservation := &models.TemporaryReservation{
		ID:               uuid.New().String(),
		AllocationID:     req.AllocationID,
		Quantity:         req.Quantity,
		ContextType:      req.ContextType,
		ContextReference: req.ContextReference,
		Status:           models.ReservationStatusActive,
		ExpiresAt:        time.Now().Add(s.ttl),
		CreatedBy:        actor,
	}

	if err := s.store.CreateReservation(ctx, reservation); err != nil {
		if relErr := s.redis.ReleaseUnits(ctx, req.AllocationID, req.Quantity); relErr != nil {
			s.logger.Error("Failed to release Redis hold after create failure", zap.Error(relErr))
		}
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	util.ReservationsCreatedTotal.Inc()
	s.logger.Info("Reservation created",
		zap.String("reservation_id", reservation.ID),
		zap.String("allocation_id", req.AllocationID),
		zap.Int("quantity", req.Quantity),
		zap.Time("expires_at", reservation.ExpiresAt))

	return reservation, nil
}

// Cancel releases a hold. Pure state transition; the allocation was never
// decremented, so there is nothing to credit back.
func (s *ReservationService) Cancel(ctx context.Context, reservationID, actor string) error {
	ctx, span := util.StartSpan(ctx, "ReservationService.Cancel")
	defer span.End()

	return s.transition(ctx, reservationID, models.ReservationStatusCancelled, actor)
}

// Convert marks a hold consumed by a confirmed sale. The actual supply
// consumption happens in voucher issuance; conversion just retires the hold.
func (s *ReservationService) Convert(ctx context.Context, reservationID, actor string) error {
	ctx, span := util.StartSpan(ctx, "ReservationService.Convert")
	defer span.End()

	return s.transition(ctx, reservationID, models.ReservationStatusConverted, actor)
}

func (s *ReservationService) transition(ctx context.Context, reservationID string, to models.ReservationStatus, actor string) error {
	reservation, err := s.store.GetReservationByID(ctx, reservationID)
	if err != nil {
		return err
	}

	if err := s.store.TransitionReservation(ctx, reservationID, reservation.Status, to, actor); err != nil {
		return err
	}

	// Converted holds are released in Redis by the issuance's ConsumeUnits.
	if to == models.ReservationStatusCancelled {
		if err := s.redis.ReleaseUnits(ctx, reservation.AllocationID, reservation.Quantity); err != nil {
			s.logger.Warn("Failed to release Redis hold",
				zap.String("reservation_id", reservationID),
				zap.Error(err))
		}
	}

	s.logger.Info("Reservation transitioned",
		zap.String("reservation_id", reservationID),
		zap.String("to", string(to)))
	return nil
}

// GetReservation retrieves a reservation by ID.
func (s *ReservationService) GetReservation(ctx context.Context, reservationID string) (*models.TemporaryReservation, error) {
	return s.store.GetReservationByID(ctx, reservationID)
}

// ExpireDue expires all overdue active reservations in batches of batchSize
// and publishes one ReservationExpired event per hold. Safe to run
// concurrently with itself: rows already expired by another run simply stop
// matching.
func (s *ReservationService) ExpireDue(ctx context.Context, batchSize int) (int, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.ExpireDue")
	defer span.End()

	total := 0
	for {
		batch, err := s.store.ExpireDueReservations(ctx, time.Now(), batchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		for i := range batch {
			r := &batch[i]

			if err := s.redis.ReleaseUnits(ctx, r.AllocationID, r.Quantity); err != nil {
				s.logger.Warn("Failed to release Redis hold for expired reservation",
					zap.String("reservation_id", r.ID),
					zap.Error(err))
			}

			event := &models.ReservationExpiredEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeReservationExpired,
					Timestamp: time.Now(),
				},
				ReservationID: r.ID,
				AllocationID:  r.AllocationID,
				Quantity:      r.Quantity,
			}
			if err := s.eventPublisher.PublishReservationExpired(ctx, event); err != nil {
				s.logger.Error("Failed to publish ReservationExpired event", zap.Error(err))
			}
		}

		util.ReservationsExpiredTotal.Add(float64(len(batch)))
		total += len(batch)

		if len(batch) < batchSize {
			return total, nil
		}
	}
}
