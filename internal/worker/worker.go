package worker

import (
	"context"
	"encoding/json"
	"time"

	"allocation-service/internal/broker"
	"allocation-service/internal/models"
	"allocation-service/internal/redisclient"
	"allocation-service/internal/service"
	"allocation-service/internal/store"
	"allocation-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const sweepLockKey = "expiry-sweep"

// SweepWorker is the system's only scheduled process: on a fixed interval it
// expires overdue reservations and transfers in batches. Runs are idempotent,
// so overlapping executions (or a crashed run retried) are harmless; the
// Redis lock just keeps replicas from duplicating work.
type SweepWorker struct {
	reservations *service.ReservationService
	transfers    *service.TransferService
	redis        *redisclient.Client
	logger       *zap.Logger
	interval     time.Duration
	batchSize    int
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(
	reservations *service.ReservationService,
	transfers *service.TransferService,
	redis *redisclient.Client,
	interval time.Duration,
	batchSize int,
) *SweepWorker {
	return &SweepWorker{
		reservations: reservations,
		transfers:    transfers,
		redis:        redis,
		logger:       util.GetLogger(),
		interval:     interval,
		batchSize:    batchSize,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (w *SweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Sweep worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Sweep worker shutting down")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce executes one sweep tick.
func (w *SweepWorker) runOnce(ctx context.Context) {
	acquired, err := w.redis.AcquireLock(ctx, sweepLockKey, w.interval)
	if err != nil {
		// Lock is an optimisation, not a correctness requirement.
		w.logger.Warn("Sweep lock unavailable, sweeping anyway", zap.Error(err))
	} else if !acquired {
		return
	} else {
		defer func() {
			if err := w.redis.ReleaseLock(ctx, sweepLockKey); err != nil {
				w.logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	util.SweepRunsTotal.Inc()
	defer func() {
		util.SweepLatency.Observe(time.Since(start).Seconds())
	}()

	expiredReservations, err := w.reservations.ExpireDue(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("Reservation sweep failed", zap.Error(err))
	}

	expiredTransfers, err := w.transfers.ExpireDue(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("Transfer sweep failed", zap.Error(err))
	}

	if expiredReservations > 0 || expiredTransfers > 0 {
		w.logger.Info("Sweep completed",
			zap.Int("reservations_expired", expiredReservations),
			zap.Int("transfers_expired", expiredTransfers))
	}
}

// FulfillmentWorker consumes shipment events from the fulfillment
// collaborator and drives the corresponding voucher transitions.
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	vouchers     *service.VoucherService
	store        *store.Store
	logger       *zap.Logger
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(consumer *broker.Consumer, vouchers *service.VoucherService, store *store.Store) *FulfillmentWorker {
	eventHandler := broker.NewEventHandler()
	w := &FulfillmentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		vouchers:     vouchers,
		store:        store,
		logger:       util.GetLogger(),
	}

	eventHandler.OnShipmentPicked(w.handleShipmentPicked)
	eventHandler.OnShipmentDelivered(w.handleShipmentDelivered)
	return w
}

// Start starts the worker
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	w.logger.Info("Fulfillment worker started")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *FulfillmentWorker) Stop() error {
	w.logger.Info("Fulfillment worker stopping")
	return w.consumer.Close()
}

func (w *FulfillmentWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		w.logger.Error("Failed to unmarshal fulfillment event", zap.Error(err))
		return err
	}

	// At-least-once delivery: skip events already applied.
	processed, err := w.store.IsEventProcessed(ctx, baseEvent.EventID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	if err := w.eventHandler.HandleMessage(ctx, msg); err != nil {
		return err
	}

	return w.store.MarkEventProcessed(ctx, baseEvent.EventID, baseEvent.EventType)
}

func (w *FulfillmentWorker) handleShipmentPicked(ctx context.Context, event *models.ShipmentPickedEvent) error {
	return w.vouchers.LockForFulfillment(ctx, event.VoucherID, "fulfillment:"+event.ShipmentRef)
}

func (w *FulfillmentWorker) handleShipmentDelivered(ctx context.Context, event *models.ShipmentDeliveredEvent) error {
	return w.vouchers.Redeem(ctx, event.VoucherID, "fulfillment:"+event.ShipmentRef)
}
