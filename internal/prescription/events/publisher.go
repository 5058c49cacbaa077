package events

import (
	"context"

	"github.com/medflow/pharmacy-backend/internal/prescription/domain"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
)

// Changes carried by prescription.updated events
const (
	ChangeLineAdded    = "line_added"
	ChangeLineRemoved  = "line_removed"
	ChangeLineQuantity = "line_quantity"
)

// PrescriptionEventPublisher publishes prescription lifecycle events.
// A nil publisher is valid and publishes nothing.
type PrescriptionEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewPrescriptionEventPublisher creates a new prescription event publisher
func NewPrescriptionEventPublisher(publisher messaging.EventPublisher, log *logger.Logger) *PrescriptionEventPublisher {
	return &PrescriptionEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

// PublishCreated publishes a prescription created event
func (p *PrescriptionEventPublisher) PublishCreated(ctx context.Context, prescription *domain.Prescription, lineCount int) {
	p.publish(ctx, messaging.EventPrescriptionCreated, messaging.PrescriptionEvent{
		PrescriptionID: prescription.ID,
		TotalAmount:    prescription.TotalAmount.StringFixed(2),
		LineCount:      lineCount,
	})
}

// PublishUpdated publishes a prescription updated event for a change to one line
func (p *PrescriptionEventPublisher) PublishUpdated(ctx context.Context, prescription *domain.Prescription, medicineID int64, change string) {
	p.publish(ctx, messaging.EventPrescriptionUpdated, messaging.PrescriptionEvent{
		PrescriptionID: prescription.ID,
		TotalAmount:    prescription.TotalAmount.StringFixed(2),
		MedicineID:     medicineID,
		Change:         change,
	})
}

// PublishDeleted publishes a prescription deleted event
func (p *PrescriptionEventPublisher) PublishDeleted(ctx context.Context, prescriptionID int64, lineCount int) {
	p.publish(ctx, messaging.EventPrescriptionDeleted, messaging.PrescriptionEvent{
		PrescriptionID: prescriptionID,
		TotalAmount:    "0.00",
		LineCount:      lineCount,
	})
}

func (p *PrescriptionEventPublisher) publish(ctx context.Context, eventType string, data messaging.PrescriptionEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().
			Err(err).
			Str("event_type", eventType).
			Int64("prescription_id", data.PrescriptionID).
			Msg("failed to publish prescription event")
	}
}
