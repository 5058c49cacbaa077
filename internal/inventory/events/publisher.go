package events

import (
	"context"

	"github.com/medflow/pharmacy-backend/internal/inventory/domain"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
)

// StockEventPublisher publishes stock ledger events. A nil publisher is
// valid and publishes nothing.
type StockEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(publisher messaging.EventPublisher, log *logger.Logger) *StockEventPublisher {
	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

// PublishStockConsumed publishes a stock consumed event
func (p *StockEventPublisher) PublishStockConsumed(ctx context.Context, plan *domain.ConsumedPlan, ref domain.Reference) {
	if p == nil {
		return
	}

	allocations := make([]messaging.LotAllocation, len(plan.Allocations))
	for i, a := range plan.Allocations {
		allocations[i] = messaging.LotAllocation{LotID: a.LotID, Quantity: a.Quantity}
	}

	data := messaging.StockConsumedEvent{
		MedicineID:  plan.MedicineID,
		Quantity:    plan.Requested,
		Reference:   ref.String(),
		Allocations: allocations,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockConsumed, data); err != nil {
		p.logger.Error().Err(err).Int64("medicine_id", plan.MedicineID).Msg("failed to publish stock consumed event")
	}
}

// PublishStockRestored publishes a stock restored event
func (p *StockEventPublisher) PublishStockRestored(ctx context.Context, lot *domain.InventoryLot, quantity int, ref domain.Reference, synthesized bool) {
	if p == nil {
		return
	}

	data := messaging.StockRestoredEvent{
		MedicineID:  lot.MedicineID,
		LotID:       lot.ID,
		Quantity:    quantity,
		Reference:   ref.String(),
		Synthesized: synthesized,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockRestored, data); err != nil {
		p.logger.Error().Err(err).Int64("lot_id", lot.ID).Msg("failed to publish stock restored event")
	}
}

// PublishStockReceived publishes a stock received event
func (p *StockEventPublisher) PublishStockReceived(ctx context.Context, lot *domain.InventoryLot) {
	if p == nil {
		return
	}

	data := messaging.StockReceivedEvent{
		LotID:       lot.ID,
		MedicineID:  lot.MedicineID,
		SupplierID:  lot.SupplierID,
		BatchNumber: lot.BatchNumber,
		Quantity:    lot.QuantityAdded,
		ExpiryDate:  lot.ExpiryDate,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockReceived, data); err != nil {
		p.logger.Error().Err(err).Int64("lot_id", lot.ID).Msg("failed to publish stock received event")
	}
}

// PublishLotTransferred publishes a lot transferred event
func (p *StockEventPublisher) PublishLotTransferred(ctx context.Context, source, target *domain.InventoryLot) {
	if p == nil {
		return
	}

	data := messaging.LotTransferredEvent{
		SourceLotID: source.ID,
		TargetLotID: target.ID,
		MedicineID:  target.MedicineID,
		Quantity:    target.QuantityAdded,
		Location:    target.Location,
	}

	if err := p.publisher.Publish(ctx, messaging.EventLotTransferred, data); err != nil {
		p.logger.Error().Err(err).Int64("lot_id", source.ID).Msg("failed to publish lot transferred event")
	}
}
