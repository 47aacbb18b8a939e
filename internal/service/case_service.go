package service

import (
	"context"
	"time"

	"allocation-service/internal/broker"
	"allocation-service/internal/models"
	"allocation-service/internal/store"
	"allocation-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CaseService tracks the integrity of case entitlements. Breaking is
// triggered by the action that violates integrity (a member transfer,
// redemption or cancellation), never by the integrity query itself.
type CaseService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewCaseService creates a new case service
func NewCaseService(store *store.Store, eventPublisher *broker.EventPublisher) *CaseService {
	return &CaseService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// IntegrityReport is the result of a case integrity check.
type IntegrityReport struct {
	CaseID  string            `json:"case_id"`
	Status  models.CaseStatus `json:"status"`
	Intact  bool              `json:"intact"`
	Members int               `json:"members"`
}

// CheckIntegrity verifies every member voucher still belongs to the case's
// original customer and has not been redeemed. Pure query; it never mutates
// the case.
func (s *CaseService) CheckIntegrity(ctx context.Context, caseID string) (*IntegrityReport, error) {
	ctx, span := util.StartSpan(ctx, "CaseService.CheckIntegrity")
	defer span.End()

	ce, err := s.store.GetCaseByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	members, err := s.store.GetCaseVouchers(ctx, caseID)
	if err != nil {
		return nil, err
	}

	return &IntegrityReport{
		CaseID:  ce.ID,
		Status:  ce.Status,
		Intact:  ce.CheckIntegrity(members),
		Members: len(members),
	}, nil
}

// Break marks a case broken. One-way; breaking an already-broken case is a
// no-op so triggering actions can call it without re-checking.
func (s *CaseService) Break(ctx context.Context, caseID, reason, actor string) error {
	ctx, span := util.StartSpan(ctx, "CaseService.Break")
	defer span.End()

	brokeNow, err := s.store.BreakCase(ctx, caseID, reason, actor)
	if err != nil {
		return err
	}
	if !brokeNow {
		return nil
	}

	ce, err := s.store.GetCaseByID(ctx, caseID)
	if err != nil {
		return err
	}

	util.CasesBrokenTotal.WithLabelValues(reason).Inc()
	s.logger.Info("Case broken",
		zap.String("case_id", caseID),
		zap.String("reason", reason))

	event := &models.CaseBrokenEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCaseBroken,
			Timestamp: time.Now(),
		},
		CaseID:     caseID,
		CustomerID: ce.CustomerID,
		Reason:     reason,
	}
	if err := s.eventPublisher.PublishCaseBroken(ctx, event); err != nil {
		s.logger.Error("Failed to publish CaseBroken event", zap.Error(err))
	}

	return nil
}

// BreakForVoucher breaks the case a voucher belongs to, if any and if still
// intact. Called by the transfer, redemption and cancellation paths.
func (s *CaseService) BreakForVoucher(ctx context.Context, voucher *models.Voucher, reason, actor string) error {
	if voucher.CaseID == nil {
		return nil
	}
	return s.Break(ctx, *voucher.CaseID, reason, actor)
}
