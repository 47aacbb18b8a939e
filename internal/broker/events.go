package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"allocation-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishVoucherIssued publishes one VoucherIssued event, keyed by allocation
// so procurement sees consumption of one allocation in order.
func (ep *EventPublisher) PublishVoucherIssued(ctx context.Context, event *models.VoucherIssuedEvent) error {
	key := fmt.Sprintf("allocation-%s", event.AllocationID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishAllocationExhausted publishes an AllocationExhausted event
func (ep *EventPublisher) PublishAllocationExhausted(ctx context.Context, event *models.AllocationExhaustedEvent) error {
	key := fmt.Sprintf("allocation-%s", event.AllocationID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishCaseBroken publishes a CaseBroken event
func (ep *EventPublisher) PublishCaseBroken(ctx context.Context, event *models.CaseBrokenEvent) error {
	key := fmt.Sprintf("case-%s", event.CaseID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishTransferAccepted publishes a TransferAccepted event
func (ep *EventPublisher) PublishTransferAccepted(ctx context.Context, event *models.TransferAcceptedEvent) error {
	key := fmt.Sprintf("voucher-%s", event.VoucherID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishReservationExpired publishes a ReservationExpired event
func (ep *EventPublisher) PublishReservationExpired(ctx context.Context, event *models.ReservationExpiredEvent) error {
	key := fmt.Sprintf("allocation-%s", event.AllocationID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes inbound fulfillment events to registered callbacks.
type EventHandler struct {
	onShipmentPicked    func(context.Context, *models.ShipmentPickedEvent) error
	onShipmentDelivered func(context.Context, *models.ShipmentDeliveredEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnShipmentPicked registers a handler for ShipmentPicked events
func (eh *EventHandler) OnShipmentPicked(handler func(context.Context, *models.ShipmentPickedEvent) error) {
	eh.onShipmentPicked = handler
}

// OnShipmentDelivered registers a handler for ShipmentDelivered events
func (eh *EventHandler) OnShipmentDelivered(handler func(context.Context, *models.ShipmentDeliveredEvent) error) {
	eh.onShipmentDelivered = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeShipmentPicked:
		if eh.onShipmentPicked != nil {
			var event models.ShipmentPickedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ShipmentPicked event: %w", err)
			}
			return eh.onShipmentPicked(ctx, &event)
		}

	case models.EventTypeShipmentDelivered:
		if eh.onShipmentDelivered != nil {
			var event models.ShipmentDeliveredEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ShipmentDelivered event: %w", err)
			}
			return eh.onShipmentDelivered(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
