package consumers

import (
	"context"

	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
)

// StockReader reports on-hand stock for a medicine
type StockReader interface {
	TotalStock(ctx context.Context, medicineID int64) (int, error)
}

// StockAlertConsumer watches consumption events and warns when a medicine
// drops to or below the reorder threshold.
type StockAlertConsumer struct {
	consumer  *messaging.Consumer
	stock     StockReader
	threshold int
	logger    *logger.Logger
}

// NewStockAlertConsumer creates a consumer bound to the pharmacy exchange
func NewStockAlertConsumer(rmq *messaging.RabbitMQ, stock StockReader, threshold int, log *logger.Logger) (*StockAlertConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "pharmacy-service.stock-alerts", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangePharmacyEvents, "inventory.stock.#"); err != nil {
		return nil, err
	}

	c := newStockAlertConsumer(stock, threshold, log)
	c.consumer = consumer
	consumer.RegisterHandler(messaging.EventStockConsumed, c.handleStockConsumed)

	return c, nil
}

func newStockAlertConsumer(stock StockReader, threshold int, log *logger.Logger) *StockAlertConsumer {
	return &StockAlertConsumer{
		stock:     stock,
		threshold: threshold,
		logger:    log.WithComponent("stock-alerts"),
	}
}

// Start starts consuming messages
func (c *StockAlertConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *StockAlertConsumer) handleStockConsumed(ctx context.Context, event *messaging.Event) error {
	var data messaging.StockConsumedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	remaining, err := c.stock.TotalStock(ctx, data.MedicineID)
	if err != nil {
		return err
	}

	if remaining > c.threshold {
		return nil
	}

	c.logger.Warn().
		Int64("medicine_id", data.MedicineID).
		Int("remaining", remaining).
		Int("threshold", c.threshold).
		Str("reference", data.Reference).
		Msg("stock at or below reorder threshold")

	return nil
}
