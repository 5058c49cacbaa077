package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/medflow/pharmacy-backend/internal/inventory/domain"
	"github.com/medflow/pharmacy-backend/internal/inventory/events"
	"github.com/medflow/pharmacy-backend/pkg/config"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// Transactor runs work inside a database transaction, joining the one
// already carried by ctx if there is one.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LotStore persists inventory lots
type LotStore interface {
	Create(ctx context.Context, lot *domain.InventoryLot) error
	GetByID(ctx context.Context, id int64, lock bool) (*domain.InventoryLot, error)
	ListByMedicine(ctx context.Context, medicineID int64, lock bool) ([]*domain.InventoryLot, error)
	UpdateQuantity(ctx context.Context, id int64, quantity int) error
	Delete(ctx context.Context, id int64) error
	TotalStock(ctx context.Context, medicineID int64) (int, error)
	ListLowStock(ctx context.Context, threshold int) ([]*domain.LotView, error)
	ListExpiring(ctx context.Context, from, to time.Time) ([]*domain.LotView, error)
	ListAll(ctx context.Context) ([]*domain.LotView, error)
}

// MovementStore records the stock audit trail
type MovementStore interface {
	Create(ctx context.Context, m *domain.StockMovement) error
	ListByMedicine(ctx context.Context, medicineID int64, limit int) ([]*domain.StockMovement, error)
}

// Catalog answers existence questions about medicines and suppliers
type Catalog interface {
	ExistsByID(ctx context.Context, id int64) (bool, error)
	SupplierExists(ctx context.Context, id int64) (bool, error)
}

// RestorePolicy describes the lot synthesized when stock is restored for a
// medicine that has no lot left.
type RestorePolicy struct {
	FallbackSupplierID int64
	FallbackExpiry     time.Duration
	ReturnPrefix       string
	AdjustPrefix       string
	Location           string
}

// DefaultRestorePolicy books synthesized lots on supplier 1 with a one year shelf life
func DefaultRestorePolicy() RestorePolicy {
	return RestorePolicy{
		FallbackSupplierID: 1,
		FallbackExpiry:     365 * 24 * time.Hour,
		ReturnPrefix:       "RETURN",
		AdjustPrefix:       "ADJUST",
	}
}

// PolicyFromConfig builds the restore policy from the inventory settings
func PolicyFromConfig(cfg config.InventoryConfig) RestorePolicy {
	policy := DefaultRestorePolicy()
	if cfg.FallbackSupplierID > 0 {
		policy.FallbackSupplierID = cfg.FallbackSupplierID
	}
	if cfg.FallbackExpiry > 0 {
		policy.FallbackExpiry = cfg.FallbackExpiry
	}
	if cfg.ReturnBatchPrefix != "" {
		policy.ReturnPrefix = cfg.ReturnBatchPrefix
	}
	if cfg.AdjustBatchPrefix != "" {
		policy.AdjustPrefix = cfg.AdjustBatchPrefix
	}
	policy.Location = cfg.RestoreLocation
	return policy
}

// BatchLabel names a synthesized lot, e.g. "RETURN-12" or "ADJUST"
func (p RestorePolicy) BatchLabel(ref domain.Reference) string {
	prefix := p.AdjustPrefix
	if ref.Reason == domain.ReasonReturn {
		prefix = p.ReturnPrefix
	}
	if ref.PrescriptionID == 0 {
		return prefix
	}
	return fmt.Sprintf("%s-%d", prefix, ref.PrescriptionID)
}

// ReceiveRequest is a supplier delivery to book as a new lot
type ReceiveRequest struct {
	MedicineID  int64     `json:"medicine_id" validate:"required,gt=0"`
	SupplierID  int64     `json:"supplier_id" validate:"required,gt=0"`
	BatchNumber string    `json:"batch_number" validate:"required,max=100"`
	Quantity    int       `json:"quantity" validate:"required,gt=0"`
	ExpiryDate  time.Time `json:"expiry_date" validate:"required"`
	Location    string    `json:"location" validate:"max=100"`
}

// StockLedger owns the inventory lots of every medicine. Stock leaves the
// shelves soonest expiry first and comes back into the newest lot.
type StockLedger struct {
	db        Transactor
	lots      LotStore
	movements MovementStore
	catalog   Catalog
	publisher *events.StockEventPublisher
	policy    RestorePolicy
	clock     func() time.Time
	logger    *logger.Logger
}

// NewStockLedger creates a new stock ledger. A nil clock means time.Now.
// Calendar days (expiry checks, fallback expiry, reports) are read in the
// clock's location; timestamps are stored in UTC.
func NewStockLedger(
	db Transactor,
	lots LotStore,
	movements MovementStore,
	catalog Catalog,
	publisher *events.StockEventPublisher,
	policy RestorePolicy,
	clock func() time.Time,
	log *logger.Logger,
) *StockLedger {
	if clock == nil {
		clock = time.Now
	}
	return &StockLedger{
		db:        db,
		lots:      lots,
		movements: movements,
		catalog:   catalog,
		publisher: publisher,
		policy:    policy,
		clock:     clock,
		logger:    log.WithComponent("stock-ledger"),
	}
}

func (s *StockLedger) now() time.Time {
	return s.clock().UTC()
}

// today is the pharmacy's current calendar day
func (s *StockLedger) today() time.Time {
	return database.TruncateDate(s.clock())
}

// TotalStock returns the units of a medicine currently on the shelves
func (s *StockLedger) TotalStock(ctx context.Context, medicineID int64) (int, error) {
	return s.lots.TotalStock(ctx, medicineID)
}

// Consume takes quantity units of a medicine out of stock, soonest expiry
// first. Either the full quantity is taken or nothing changes.
func (s *StockLedger) Consume(ctx context.Context, medicineID int64, quantity int, ref domain.Reference) (*domain.ConsumedPlan, error) {
	if quantity <= 0 {
		return nil, errors.InvalidInput("quantity must be greater than zero")
	}

	var plan *domain.ConsumedPlan
	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		lots, err := s.lots.ListByMedicine(ctx, medicineID, true)
		if err != nil {
			return err
		}

		plan, err = domain.PlanConsumption(medicineID, lots, quantity)
		if err != nil {
			return err
		}

		byID := make(map[int64]*domain.InventoryLot, len(lots))
		for _, lot := range lots {
			byID[lot.ID] = lot
		}

		now := s.now()
		for _, a := range plan.Allocations {
			lot := byID[a.LotID]
			remaining := lot.CurrentQuantity - a.Quantity
			if err := s.lots.UpdateQuantity(ctx, lot.ID, remaining); err != nil {
				return err
			}
			if err := s.movements.Create(ctx, &domain.StockMovement{
				LotID:            lot.ID,
				MedicineID:       medicineID,
				MovementType:     domain.MovementConsume,
				Quantity:         a.Quantity,
				PreviousQuantity: lot.CurrentQuantity,
				NewQuantity:      remaining,
				Reference:        ref.String(),
				CreatedAt:        now,
			}); err != nil {
				return err
			}
			lot.CurrentQuantity = remaining

			s.logger.Debug().
				Int64("medicine_id", medicineID).
				Int64("lot_id", lot.ID).
				Int("quantity", a.Quantity).
				Int("remaining", remaining).
				Msg("stock consumed from lot")
		}

		database.AfterCommit(ctx, func() {
			s.publisher.PublishStockConsumed(ctx, plan, ref)
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrInsufficientStock) {
			s.logger.Warn().Int64("medicine_id", medicineID).Int("requested", quantity).Msg("consume rejected: insufficient stock")
		}
		return nil, err
	}

	return plan, nil
}

// Restore puts quantity units of a medicine back on the shelves and returns
// the lot that received them. Without any lot to return into, a new lot is
// synthesized from the restore policy.
func (s *StockLedger) Restore(ctx context.Context, medicineID int64, quantity int, ref domain.Reference) (int64, error) {
	if quantity <= 0 {
		return 0, errors.InvalidInput("quantity must be greater than zero")
	}

	var lotID int64
	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		lots, err := s.lots.ListByMedicine(ctx, medicineID, true)
		if err != nil {
			return err
		}

		now := s.now()
		target := domain.NewestLot(lots)
		synthesized := target == nil
		previous := 0

		if synthesized {
			target = &domain.InventoryLot{
				MedicineID:      medicineID,
				SupplierID:      s.policy.FallbackSupplierID,
				BatchNumber:     s.policy.BatchLabel(ref),
				QuantityAdded:   quantity,
				CurrentQuantity: quantity,
				ExpiryDate:      database.TruncateDate(s.today().Add(s.policy.FallbackExpiry)),
				DateAdded:       now,
				Location:        s.policy.Location,
			}
			if err := s.lots.Create(ctx, target); err != nil {
				return err
			}
		} else {
			previous = target.CurrentQuantity
			target.CurrentQuantity += quantity
			if err := s.lots.UpdateQuantity(ctx, target.ID, target.CurrentQuantity); err != nil {
				return err
			}
		}

		if err := s.movements.Create(ctx, &domain.StockMovement{
			LotID:            target.ID,
			MedicineID:       medicineID,
			MovementType:     domain.MovementRestore,
			Quantity:         quantity,
			PreviousQuantity: previous,
			NewQuantity:      target.CurrentQuantity,
			Reference:        ref.String(),
			CreatedAt:        now,
		}); err != nil {
			return err
		}

		s.logger.Debug().
			Int64("medicine_id", medicineID).
			Int64("lot_id", target.ID).
			Int("quantity", quantity).
			Bool("synthesized", synthesized).
			Msg("stock restored")

		lotID = target.ID
		restored := target
		database.AfterCommit(ctx, func() {
			s.publisher.PublishStockRestored(ctx, restored, quantity, ref, synthesized)
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	return lotID, nil
}

// Adjust corrects a medicine's stock by delta units
func (s *StockLedger) Adjust(ctx context.Context, medicineID int64, delta int) error {
	if delta == 0 {
		return errors.InvalidInput("adjustment must not be zero")
	}

	return s.db.WithinTx(ctx, func(ctx context.Context) error {
		exists, err := s.catalog.ExistsByID(ctx, medicineID)
		if err != nil {
			return err
		}
		if !exists {
			return errors.MedicineNotFound(medicineID)
		}

		if delta > 0 {
			_, err = s.Restore(ctx, medicineID, delta, domain.AdjustRef(0))
		} else {
			_, err = s.Consume(ctx, medicineID, -delta, domain.AdjustRef(0))
		}
		return err
	})
}

// ReceiveStock books a supplier delivery as a new lot
func (s *StockLedger) ReceiveStock(ctx context.Context, req ReceiveRequest) (*domain.InventoryLot, error) {
	if req.Quantity <= 0 {
		return nil, errors.InvalidInput("quantity must be greater than zero")
	}

	now := s.now()
	today := s.today()
	expiry := database.TruncateDate(req.ExpiryDate)
	if !expiry.After(today) {
		return nil, errors.InvalidInput("expiry date must be in the future").WithDetails(map[string]string{
			"expiry_date": database.DateParam(expiry),
			"today":       database.DateParam(today),
		})
	}

	lot := &domain.InventoryLot{
		MedicineID:      req.MedicineID,
		SupplierID:      req.SupplierID,
		BatchNumber:     strings.TrimSpace(req.BatchNumber),
		QuantityAdded:   req.Quantity,
		CurrentQuantity: req.Quantity,
		ExpiryDate:      expiry,
		DateAdded:       now,
		Location:        strings.TrimSpace(req.Location),
	}

	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		exists, err := s.catalog.ExistsByID(ctx, req.MedicineID)
		if err != nil {
			return err
		}
		if !exists {
			return errors.MedicineNotFound(req.MedicineID)
		}

		exists, err = s.catalog.SupplierExists(ctx, req.SupplierID)
		if err != nil {
			return err
		}
		if !exists {
			return errors.SupplierNotFound(req.SupplierID)
		}

		if err := s.lots.Create(ctx, lot); err != nil {
			return err
		}

		if err := s.movements.Create(ctx, &domain.StockMovement{
			LotID:            lot.ID,
			MedicineID:       lot.MedicineID,
			MovementType:     domain.MovementReceive,
			Quantity:         lot.QuantityAdded,
			PreviousQuantity: 0,
			NewQuantity:      lot.CurrentQuantity,
			Reference:        string(domain.ReasonReceive),
			CreatedAt:        now,
		}); err != nil {
			return err
		}

		database.AfterCommit(ctx, func() {
			s.publisher.PublishStockReceived(ctx, lot)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("lot_id", lot.ID).
		Int64("medicine_id", lot.MedicineID).
		Int("quantity", lot.QuantityAdded).
		Msg("stock received")

	return lot, nil
}

// GetLot gets a lot by ID
func (s *StockLedger) GetLot(ctx context.Context, id int64) (*domain.InventoryLot, error) {
	return s.lots.GetByID(ctx, id, false)
}

// ListLots lists a medicine's lots in consumption order
func (s *StockLedger) ListLots(ctx context.Context, medicineID int64) ([]*domain.InventoryLot, error) {
	return s.lots.ListByMedicine(ctx, medicineID, false)
}

// Movements lists the latest stock movements of a medicine
func (s *StockLedger) Movements(ctx context.Context, medicineID int64, limit int) ([]*domain.StockMovement, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.movements.ListByMedicine(ctx, medicineID, limit)
}

// TransferLot moves quantity units of a lot into a new lot at location.
// The new lot keeps the medicine, supplier, batch and expiry of its source.
func (s *StockLedger) TransferLot(ctx context.Context, lotID int64, location string, quantity int) (*domain.InventoryLot, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.InvalidInput("location is required")
	}
	if quantity <= 0 {
		return nil, errors.InvalidInput("quantity must be greater than zero")
	}

	var target *domain.InventoryLot
	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		source, err := s.lots.GetByID(ctx, lotID, true)
		if err != nil {
			return err
		}
		if quantity > source.CurrentQuantity {
			return errors.InsufficientStock(source.MedicineID, quantity, source.CurrentQuantity)
		}

		now := s.now()
		previous := source.CurrentQuantity
		source.CurrentQuantity -= quantity
		if err := s.lots.UpdateQuantity(ctx, source.ID, source.CurrentQuantity); err != nil {
			return err
		}

		target = &domain.InventoryLot{
			MedicineID:      source.MedicineID,
			SupplierID:      source.SupplierID,
			BatchNumber:     source.BatchNumber,
			QuantityAdded:   quantity,
			CurrentQuantity: quantity,
			ExpiryDate:      source.ExpiryDate,
			DateAdded:       now,
			Location:        location,
		}
		if err := s.lots.Create(ctx, target); err != nil {
			return err
		}

		ref := fmt.Sprintf("%s:%d", domain.ReasonTransfer, source.ID)
		for _, m := range []*domain.StockMovement{
			{LotID: source.ID, MovementType: domain.MovementTransferOut, PreviousQuantity: previous, NewQuantity: source.CurrentQuantity},
			{LotID: target.ID, MovementType: domain.MovementTransferIn, PreviousQuantity: 0, NewQuantity: quantity},
		} {
			m.MedicineID = source.MedicineID
			m.Quantity = quantity
			m.Reference = ref
			m.CreatedAt = now
			if err := s.movements.Create(ctx, m); err != nil {
				return err
			}
		}

		database.AfterCommit(ctx, func() {
			s.publisher.PublishLotTransferred(ctx, source, target)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("source_lot_id", lotID).
		Int64("target_lot_id", target.ID).
		Str("location", location).
		Int("quantity", quantity).
		Msg("lot transferred")

	return target, nil
}

// DeleteLot removes an empty lot. Lots still holding stock are kept so
// units never disappear without a movement.
func (s *StockLedger) DeleteLot(ctx context.Context, lotID int64) error {
	return s.db.WithinTx(ctx, func(ctx context.Context) error {
		lot, err := s.lots.GetByID(ctx, lotID, true)
		if err != nil {
			return err
		}
		if lot.CurrentQuantity > 0 {
			return errors.Conflict(fmt.Sprintf("lot %d still holds %d units", lot.ID, lot.CurrentQuantity))
		}

		if err := s.lots.Delete(ctx, lotID); err != nil {
			return err
		}

		return s.movements.Create(ctx, &domain.StockMovement{
			LotID:        lot.ID,
			MedicineID:   lot.MedicineID,
			MovementType: domain.MovementDelete,
			Reference:    lot.BatchNumber,
			CreatedAt:    s.now(),
		})
	})
}

// LowStock lists lots holding fewer than threshold units
func (s *StockLedger) LowStock(ctx context.Context, threshold int) ([]*domain.LotView, error) {
	if threshold <= 0 {
		return nil, errors.InvalidInput("threshold must be greater than zero")
	}
	return s.lots.ListLowStock(ctx, threshold)
}

// ExpiringSoon lists lots with stock expiring within days, soonest first
func (s *StockLedger) ExpiringSoon(ctx context.Context, days int) ([]*domain.ExpiringLot, error) {
	if days < 0 {
		return nil, errors.InvalidInput("days must not be negative")
	}

	today := s.today()
	lots, err := s.lots.ListExpiring(ctx, today, today.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}

	result := make([]*domain.ExpiringLot, len(lots))
	for i, lot := range lots {
		result[i] = &domain.ExpiringLot{LotView: *lot, DaysUntilExpiry: lot.DaysUntil(today)}
	}
	return result, nil
}

// Report summarizes stock per medicine
func (s *StockLedger) Report(ctx context.Context, expiringDays int) (*domain.InventoryReport, error) {
	lots, err := s.lots.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return domain.BuildReport(lots, s.clock(), expiringDays), nil
}
