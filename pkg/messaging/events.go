package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Stock ledger events
	EventStockConsumed  = "inventory.stock.consumed"
	EventStockRestored  = "inventory.stock.restored"
	EventStockReceived  = "inventory.stock.received"
	EventLotTransferred = "inventory.lot.transferred"

	// Prescription events
	EventPrescriptionCreated = "prescription.created"
	EventPrescriptionUpdated = "prescription.updated"
	EventPrescriptionDeleted = "prescription.deleted"
)

// ExchangePharmacyEvents is the topic exchange every pharmacy event goes to
const ExchangePharmacyEvents = "pharmacy.events"

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Inventory Events

// LotAllocation is one lot touched by a consumption
type LotAllocation struct {
	LotID    int64 `json:"lot_id"`
	Quantity int   `json:"quantity"`
}

// StockConsumedEvent is published when stock leaves the shelves
type StockConsumedEvent struct {
	MedicineID  int64           `json:"medicine_id"`
	Quantity    int             `json:"quantity"`
	Reference   string          `json:"reference"`
	Allocations []LotAllocation `json:"allocations"`
}

// StockRestoredEvent is published when stock is put back
type StockRestoredEvent struct {
	MedicineID  int64  `json:"medicine_id"`
	LotID       int64  `json:"lot_id"`
	Quantity    int    `json:"quantity"`
	Reference   string `json:"reference"`
	Synthesized bool   `json:"synthesized"`
}

// StockReceivedEvent is published when a supplier delivery is booked
type StockReceivedEvent struct {
	LotID       int64     `json:"lot_id"`
	MedicineID  int64     `json:"medicine_id"`
	SupplierID  int64     `json:"supplier_id"`
	BatchNumber string    `json:"batch_number"`
	Quantity    int       `json:"quantity"`
	ExpiryDate  time.Time `json:"expiry_date"`
}

// LotTransferredEvent is published when part of a lot moves location
type LotTransferredEvent struct {
	SourceLotID int64  `json:"source_lot_id"`
	TargetLotID int64  `json:"target_lot_id"`
	MedicineID  int64  `json:"medicine_id"`
	Quantity    int    `json:"quantity"`
	Location    string `json:"location"`
}

// Prescription Events

// PrescriptionEvent is published for every prescription lifecycle change
type PrescriptionEvent struct {
	PrescriptionID int64  `json:"prescription_id"`
	TotalAmount    string `json:"total_amount"`
	LineCount      int    `json:"line_count"`
	MedicineID     int64  `json:"medicine_id,omitempty"`
	Change         string `json:"change,omitempty"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}
