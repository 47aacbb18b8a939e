package models

import "time"

// Event types
const (
	EventTypeVoucherIssued       = "VOUCHER_ISSUED"
	EventTypeAllocationExhausted = "ALLOCATION_EXHAUSTED"
	EventTypeCaseBroken          = "CASE_BROKEN"
	EventTypeTransferAccepted    = "TRANSFER_ACCEPTED"
	EventTypeReservationExpired  = "RESERVATION_EXPIRED"
	EventTypeShipmentPicked      = "SHIPMENT_PICKED"
	EventTypeShipmentDelivered   = "SHIPMENT_DELIVERED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// VoucherIssuedEvent is published once per voucher minted. Procurement
// consumes it to trigger replenishment.
type VoucherIssuedEvent struct {
	BaseEvent
	VoucherID     string `json:"voucher_id"`
	AllocationID  string `json:"allocation_id"`
	CustomerID    string `json:"customer_id"`
	SellableSKUID string `json:"sellable_sku_id"`
	SaleReference string `json:"sale_reference"`
}

// AllocationExhaustedEvent is published when the last unit of an allocation
// is sold. Merchandising/alerts consume it.
type AllocationExhaustedEvent struct {
	BaseEvent
	AllocationID  string `json:"allocation_id"`
	WineVariantID string `json:"wine_variant_id"`
	FormatID      string `json:"format_id"`
}

// CaseBrokenEvent is published when a case entitlement loses integrity.
// Customer support consumes it.
type CaseBrokenEvent struct {
	BaseEvent
	CaseID     string `json:"case_id"`
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason"`
}

// TransferAcceptedEvent is published when a voucher changes owner.
type TransferAcceptedEvent struct {
	BaseEvent
	TransferID     string `json:"transfer_id"`
	VoucherID      string `json:"voucher_id"`
	FromCustomerID string `json:"from_customer_id"`
	ToCustomerID   string `json:"to_customer_id"`
}

// ReservationExpiredEvent is published by the sweep for each hold it expires.
type ReservationExpiredEvent struct {
	BaseEvent
	ReservationID string `json:"reservation_id"`
	AllocationID  string `json:"allocation_id"`
	Quantity      int    `json:"quantity"`
}

// ShipmentPickedEvent is consumed from the fulfillment collaborator: the
// physical bottle has been picked, lock the voucher.
type ShipmentPickedEvent struct {
	BaseEvent
	VoucherID   string `json:"voucher_id"`
	ShipmentRef string `json:"shipment_ref"`
}

// ShipmentDeliveredEvent is consumed from the fulfillment collaborator: the
// bottle has been delivered, redeem the voucher.
type ShipmentDeliveredEvent struct {
	BaseEvent
	VoucherID   string `json:"voucher_id"`
	ShipmentRef string `json:"shipment_ref"`
}
