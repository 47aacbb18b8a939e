package service

import (
	"context"
	"fmt"
	"time"

	"allocation-service/internal/broker"
	"allocation-service/internal/models"
	"allocation-service/internal/store"
	"allocation-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransferService manages customer-to-customer voucher handoffs. A transfer
// never mints a voucher and never touches allocation quantities; it only
// rewrites ownership on acceptance.
type TransferService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	cases          *CaseService
	logger         *zap.Logger
	ttl            time.Duration
}

// NewTransferService creates a new transfer service
func NewTransferService(
	store *store.Store,
	eventPublisher *broker.EventPublisher,
	cases *CaseService,
	ttl time.Duration,
) *TransferService {
	return &TransferService{
		store:          store,
		eventPublisher: eventPublisher,
		cases:          cases,
		logger:         util.GetLogger(),
		ttl:            ttl,
	}
}

// InitiateTransferRequest represents a request to hand a voucher to another
// customer. Gift transfers are gated on the giftable flag instead of tradable.
type InitiateTransferRequest struct {
	VoucherID    string `json:"voucher_id" binding:"required"`
	ToCustomerID string `json:"to_customer_id" binding:"required"`
	Gift         bool   `json:"gift"`
}

// Initiate opens a pending transfer. At most one pending transfer may exist
// per voucher; a racing second initiate loses on the partial unique index
// even when both passed the pre-check here.
func (s *TransferService) Initiate(ctx context.Context, req *InitiateTransferRequest, actor string) (*models.VoucherTransfer, error) {
	ctx, span := util.StartSpan(ctx, "TransferService.Initiate")
	defer span.End()

	voucher, err := s.store.GetVoucherByID(ctx, req.VoucherID)
	if err != nil {
		return nil, err
	}

	if req.Gift {
		if !voucher.CanBeGifted() {
			return nil, models.ErrNotGiftable
		}
	} else if !voucher.CanBeTradedOrTransferred() {
		return nil, models.ErrNotTradable
	}

	existing, err := s.store.GetPendingTransferByVoucher(ctx, req.VoucherID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.ErrTransferAlreadyPending
	}

	now := time.Now()
	transfer := &models.VoucherTransfer{
		ID:             uuid.New().String(),
		VoucherID:      req.VoucherID,
		FromCustomerID: voucher.CustomerID,
		ToCustomerID:   req.ToCustomerID,
		Status:         models.TransferStatusPending,
		InitiatedAt:    now,
		ExpiresAt:      now.Add(s.ttl),
	}

	if err := s.store.CreateTransfer(ctx, transfer); err != nil {
		return nil, err
	}

	util.TransfersInitiatedTotal.Inc()
	s.logger.Info("Transfer initiated",
		zap.String("transfer_id", transfer.ID),
		zap.String("voucher_id", req.VoucherID),
		zap.String("from", transfer.FromCustomerID),
		zap.String("to", transfer.ToCustomerID))

	return transfer, nil
}

// Accept completes a pending, unexpired transfer: the transfer is marked
// accepted and the voucher's owner is rewritten in the same transaction.
// Accepting breaks the voucher's case, if it belongs to an intact one.
func (s *TransferService) Accept(ctx context.Context, transferID, actor string) (*models.VoucherTransfer, error) {
	ctx, span := util.StartSpan(ctx, "TransferService.Accept")
	defer span.End()

	transfer, err := s.store.AcceptTransfer(ctx, transferID, time.Now())
	if err != nil {
		return nil, err
	}

	util.TransfersAcceptedTotal.Inc()
	s.logger.Info("Transfer accepted",
		zap.String("transfer_id", transfer.ID),
		zap.String("voucher_id", transfer.VoucherID),
		zap.String("new_owner", transfer.ToCustomerID))

	voucher, err := s.store.GetVoucherByID(ctx, transfer.VoucherID)
	if err != nil {
		return nil, fmt.Errorf("transfer accepted but voucher reload failed: %w", err)
	}
	if err := s.cases.BreakForVoucher(ctx, voucher, "member_transferred", actor); err != nil {
		s.logger.Error("Failed to break case after transfer",
			zap.String("voucher_id", voucher.ID),
			zap.Error(err))
	}

	event := &models.TransferAcceptedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeTransferAccepted,
			Timestamp: time.Now(),
		},
		TransferID:     transfer.ID,
		VoucherID:      transfer.VoucherID,
		FromCustomerID: transfer.FromCustomerID,
		ToCustomerID:   transfer.ToCustomerID,
	}
	if err := s.eventPublisher.PublishTransferAccepted(ctx, event); err != nil {
		s.logger.Error("Failed to publish TransferAccepted event", zap.Error(err))
	}

	return transfer, nil
}

// Cancel cancels a pending transfer. Terminal, one-way.
func (s *TransferService) Cancel(ctx context.Context, transferID, actor string) error {
	ctx, span := util.StartSpan(ctx, "TransferService.Cancel")
	defer span.End()

	transfer, err := s.store.GetTransferByID(ctx, transferID)
	if err != nil {
		return err
	}
	return s.store.TransitionTransfer(ctx, transferID, transfer.Status, models.TransferStatusCancelled, actor)
}

// GetTransfer retrieves a transfer by ID.
func (s *TransferService) GetTransfer(ctx context.Context, transferID string) (*models.VoucherTransfer, error) {
	return s.store.GetTransferByID(ctx, transferID)
}

// ExpireDue expires overdue pending transfers in batches. Same idempotent
// sweep contract as reservations.
func (s *TransferService) ExpireDue(ctx context.Context, batchSize int) (int, error) {
	ctx, span := util.StartSpan(ctx, "TransferService.ExpireDue")
	defer span.End()

	total := 0
	for {
		batch, err := s.store.ExpireDueTransfers(ctx, time.Now(), batchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		util.TransfersExpiredTotal.Add(float64(len(batch)))
		total += len(batch)
		s.logger.Info("Expired due transfers", zap.Int("count", len(batch)))

		if len(batch) < batchSize {
			return total, nil
		}
	}
}
