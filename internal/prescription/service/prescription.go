package service

import (
	"context"
	"time"

	catalogdomain "github.com/medflow/pharmacy-backend/internal/catalog/domain"
	inventorydomain "github.com/medflow/pharmacy-backend/internal/inventory/domain"
	"github.com/medflow/pharmacy-backend/internal/prescription/domain"
	"github.com/medflow/pharmacy-backend/internal/prescription/events"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// Transactor runs work inside a database transaction, joining the one
// already carried by ctx if there is one.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store persists prescriptions and their lines
type Store interface {
	Create(ctx context.Context, p *domain.Prescription) error
	GetByID(ctx context.Context, id int64, lock bool) (*domain.Prescription, error)
	UpdateTotal(ctx context.Context, id int64, total decimal.Decimal) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*domain.Prescription, error)
	FindByDate(ctx context.Context, date time.Time) ([]*domain.Prescription, error)
	FindByAmountRange(ctx context.Context, minAmount, maxAmount decimal.Decimal) ([]*domain.Prescription, error)

	InsertLine(ctx context.Context, line *domain.LineItem) error
	GetLine(ctx context.Context, prescriptionID, medicineID int64) (*domain.LineItem, error)
	HasLine(ctx context.Context, prescriptionID, medicineID int64) (bool, error)
	UpdateLine(ctx context.Context, line *domain.LineItem) error
	DeleteLine(ctx context.Context, prescriptionID, medicineID int64) error
	DeleteLines(ctx context.Context, prescriptionID int64) error
	ListLines(ctx context.Context, prescriptionID int64) ([]*domain.LineItem, error)
	ListLineViews(ctx context.Context, prescriptionID int64) ([]*domain.LineView, error)
	SumLines(ctx context.Context, prescriptionID int64) (decimal.Decimal, error)
}

// Ledger moves stock on behalf of prescriptions
type Ledger interface {
	TotalStock(ctx context.Context, medicineID int64) (int, error)
	Consume(ctx context.Context, medicineID int64, quantity int, ref inventorydomain.Reference) (*inventorydomain.ConsumedPlan, error)
	Restore(ctx context.Context, medicineID int64, quantity int, ref inventorydomain.Reference) (int64, error)
}

// Catalog looks up medicines and their current prices
type Catalog interface {
	GetByID(ctx context.Context, id int64) (*catalogdomain.Medicine, error)
	GetPriceByID(ctx context.Context, id int64) (decimal.Decimal, error)
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// PrescriptionService bills prescriptions against the stock ledger. Every
// mutation moves stock and rewrites the header total in one transaction.
type PrescriptionService struct {
	db        Transactor
	store     Store
	ledger    Ledger
	catalog   Catalog
	publisher *events.PrescriptionEventPublisher
	clock     func() time.Time
	logger    *logger.Logger
}

// NewPrescriptionService creates a new prescription service. A nil clock means
// time.Now. Prescriptions are dated with the clock's local calendar day.
func NewPrescriptionService(
	db Transactor,
	store Store,
	ledger Ledger,
	catalog Catalog,
	publisher *events.PrescriptionEventPublisher,
	clock func() time.Time,
	log *logger.Logger,
) *PrescriptionService {
	if clock == nil {
		clock = time.Now
	}
	return &PrescriptionService{
		db:        db,
		store:     store,
		ledger:    ledger,
		catalog:   catalog,
		publisher: publisher,
		clock:     clock,
		logger:    log.WithComponent("prescription-service"),
	}
}

// Create writes a prescription dated today with the requested lines and
// returns its ID. Nothing is written unless every line can be filled.
func (s *PrescriptionService) Create(ctx context.Context, lines []domain.LineRequest) (int64, error) {
	if len(lines) == 0 {
		return 0, errors.InvalidInput("a prescription needs at least one line")
	}

	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return 0, errors.InvalidInput("quantity must be greater than zero")
		}
		if seen[line.MedicineID] {
			return 0, errors.DuplicateLine(0, line.MedicineID)
		}
		seen[line.MedicineID] = true
	}

	prescription := &domain.Prescription{Date: database.TruncateDate(s.clock())}
	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		medicines := make([]*catalogdomain.Medicine, len(lines))
		for i, line := range lines {
			medicine, err := s.catalog.GetByID(ctx, line.MedicineID)
			if err != nil {
				return err
			}

			available, err := s.ledger.TotalStock(ctx, line.MedicineID)
			if err != nil {
				return err
			}
			if available < line.Quantity {
				return errors.InsufficientStock(line.MedicineID, line.Quantity, available)
			}
			medicines[i] = medicine
		}

		if err := s.store.Create(ctx, prescription); err != nil {
			return err
		}

		for i, line := range lines {
			if _, err := s.ledger.Consume(ctx, line.MedicineID, line.Quantity, inventorydomain.SaleRef(prescription.ID)); err != nil {
				return err
			}
			if err := s.store.InsertLine(ctx, newLine(prescription.ID, medicines[i], line.Quantity)); err != nil {
				return err
			}
		}

		total, err := s.store.SumLines(ctx, prescription.ID)
		if err != nil {
			return err
		}
		if err := s.store.UpdateTotal(ctx, prescription.ID, total); err != nil {
			return err
		}
		prescription.TotalAmount = total

		database.AfterCommit(ctx, func() {
			s.publisher.PublishCreated(ctx, prescription, len(lines))
		})
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Int("lines", len(lines)).Msg("prescription rejected")
		return 0, err
	}

	s.logger.Info().
		Int64("prescription_id", prescription.ID).
		Int("lines", len(lines)).
		Str("total_amount", prescription.TotalAmount.StringFixed(2)).
		Msg("prescription created")

	return prescription.ID, nil
}

// AddLine dispenses quantity units of a medicine on an existing prescription
func (s *PrescriptionService) AddLine(ctx context.Context, prescriptionID, medicineID int64, quantity int) error {
	if quantity <= 0 {
		return errors.InvalidInput("quantity must be greater than zero")
	}

	return s.db.WithinTx(ctx, func(ctx context.Context) error {
		prescription, err := s.store.GetByID(ctx, prescriptionID, true)
		if err != nil {
			return err
		}

		medicine, err := s.catalog.GetByID(ctx, medicineID)
		if err != nil {
			return err
		}

		exists, err := s.store.HasLine(ctx, prescriptionID, medicineID)
		if err != nil {
			return err
		}
		if exists {
			return errors.DuplicateLine(prescriptionID, medicineID)
		}

		if _, err := s.ledger.Consume(ctx, medicineID, quantity, inventorydomain.SaleRef(prescriptionID)); err != nil {
			return err
		}

		line := newLine(prescriptionID, medicine, quantity)
		if err := s.store.InsertLine(ctx, line); err != nil {
			return err
		}

		prescription.TotalAmount = prescription.TotalAmount.Add(line.TotalPrice)
		if err := s.store.UpdateTotal(ctx, prescriptionID, prescription.TotalAmount); err != nil {
			return err
		}

		s.logger.Info().
			Int64("prescription_id", prescriptionID).
			Int64("medicine_id", medicineID).
			Int("quantity", quantity).
			Msg("prescription line added")

		database.AfterCommit(ctx, func() {
			s.publisher.PublishUpdated(ctx, prescription, medicineID, events.ChangeLineAdded)
		})
		return nil
	})
}

// RemoveLine takes a medicine off a prescription and returns its units to stock
func (s *PrescriptionService) RemoveLine(ctx context.Context, prescriptionID, medicineID int64) error {
	return s.db.WithinTx(ctx, func(ctx context.Context) error {
		prescription, err := s.store.GetByID(ctx, prescriptionID, true)
		if err != nil {
			return err
		}

		line, err := s.store.GetLine(ctx, prescriptionID, medicineID)
		if err != nil {
			return err
		}

		if err := s.store.DeleteLine(ctx, prescriptionID, medicineID); err != nil {
			return err
		}

		prescription.TotalAmount = prescription.TotalAmount.Sub(line.TotalPrice)
		if err := s.store.UpdateTotal(ctx, prescriptionID, prescription.TotalAmount); err != nil {
			return err
		}

		if _, err := s.ledger.Restore(ctx, medicineID, line.QuantityBought, inventorydomain.ReturnRef(prescriptionID)); err != nil {
			return err
		}

		s.logger.Info().
			Int64("prescription_id", prescriptionID).
			Int64("medicine_id", medicineID).
			Int("quantity", line.QuantityBought).
			Msg("prescription line removed")

		database.AfterCommit(ctx, func() {
			s.publisher.PublishUpdated(ctx, prescription, medicineID, events.ChangeLineRemoved)
		})
		return nil
	})
}

// UpdateLineQuantity changes the quantity of a line, moving only the
// difference in stock. The line is repriced at the current catalog price.
func (s *PrescriptionService) UpdateLineQuantity(ctx context.Context, prescriptionID, medicineID int64, quantity int) error {
	if quantity <= 0 {
		return errors.InvalidInput("quantity must be greater than zero")
	}

	return s.db.WithinTx(ctx, func(ctx context.Context) error {
		prescription, err := s.store.GetByID(ctx, prescriptionID, true)
		if err != nil {
			return err
		}

		line, err := s.store.GetLine(ctx, prescriptionID, medicineID)
		if err != nil {
			return err
		}

		delta := quantity - line.QuantityBought
		if delta == 0 {
			return nil
		}

		price, err := s.catalog.GetPriceByID(ctx, medicineID)
		if err != nil {
			return err
		}

		if delta > 0 {
			_, err = s.ledger.Consume(ctx, medicineID, delta, inventorydomain.SaleRef(prescriptionID))
		} else {
			_, err = s.ledger.Restore(ctx, medicineID, -delta, inventorydomain.AdjustRef(prescriptionID))
		}
		if err != nil {
			return err
		}

		oldTotal := line.TotalPrice
		line.QuantityBought = quantity
		line.UnitPrice = price
		line.TotalPrice = domain.LineTotal(price, quantity)
		if err := s.store.UpdateLine(ctx, line); err != nil {
			return err
		}

		prescription.TotalAmount = prescription.TotalAmount.Add(line.TotalPrice.Sub(oldTotal))
		if err := s.store.UpdateTotal(ctx, prescriptionID, prescription.TotalAmount); err != nil {
			return err
		}

		s.logger.Info().
			Int64("prescription_id", prescriptionID).
			Int64("medicine_id", medicineID).
			Int("delta", delta).
			Msg("prescription line quantity updated")

		database.AfterCommit(ctx, func() {
			s.publisher.PublishUpdated(ctx, prescription, medicineID, events.ChangeLineQuantity)
		})
		return nil
	})
}

// Delete removes a prescription and returns every line's units to stock
func (s *PrescriptionService) Delete(ctx context.Context, prescriptionID int64) error {
	return s.db.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetByID(ctx, prescriptionID, true); err != nil {
			return err
		}

		lines, err := s.store.ListLines(ctx, prescriptionID)
		if err != nil {
			return err
		}

		for _, line := range lines {
			if _, err := s.ledger.Restore(ctx, line.MedicineID, line.QuantityBought, inventorydomain.ReturnRef(prescriptionID)); err != nil {
				return err
			}
		}

		if err := s.store.DeleteLines(ctx, prescriptionID); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, prescriptionID); err != nil {
			return err
		}

		s.logger.Info().
			Int64("prescription_id", prescriptionID).
			Int("lines", len(lines)).
			Msg("prescription deleted")

		database.AfterCommit(ctx, func() {
			s.publisher.PublishDeleted(ctx, prescriptionID, len(lines))
		})
		return nil
	})
}

// GetByID gets a prescription with its lines
func (s *PrescriptionService) GetByID(ctx context.Context, prescriptionID int64) (*domain.PrescriptionWithLines, error) {
	prescription, err := s.store.GetByID(ctx, prescriptionID, false)
	if err != nil {
		return nil, err
	}

	lines, err := s.store.ListLineViews(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}

	return &domain.PrescriptionWithLines{Prescription: *prescription, Lines: lines}, nil
}

// FindByDate lists the prescriptions written on date
func (s *PrescriptionService) FindByDate(ctx context.Context, date time.Time) ([]*domain.Prescription, error) {
	return s.store.FindByDate(ctx, database.TruncateDate(date))
}

// FindByAmountRange lists prescriptions whose total lies within the
// inclusive range, cheapest first
func (s *PrescriptionService) FindByAmountRange(ctx context.Context, minAmount, maxAmount decimal.Decimal) ([]*domain.Prescription, error) {
	if minAmount.GreaterThan(maxAmount) {
		return nil, errors.InvalidInput("minimum amount must not exceed maximum amount")
	}
	return s.store.FindByAmountRange(ctx, minAmount, maxAmount)
}

// List lists prescriptions, newest first
func (s *PrescriptionService) List(ctx context.Context, limit, offset int) ([]*domain.Prescription, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}

// Availability returns the units of a medicine that can still be dispensed
func (s *PrescriptionService) Availability(ctx context.Context, medicineID int64) (int, error) {
	return s.ledger.TotalStock(ctx, medicineID)
}

func newLine(prescriptionID int64, medicine *catalogdomain.Medicine, quantity int) *domain.LineItem {
	return &domain.LineItem{
		PrescriptionID: prescriptionID,
		MedicineID:     medicine.ID,
		MedicineName:   medicine.Name,
		QuantityBought: quantity,
		UnitPrice:      medicine.Price,
		TotalPrice:     domain.LineTotal(medicine.Price, quantity),
	}
}
