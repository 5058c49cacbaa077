package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/medflow/pharmacy-backend/internal/inventory/domain"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/errors"
)

const lotColumns = `id, medicine_id, supplier_id, batch_number, quantity_added, current_quantity,
	expiry_date, date_added, location`

const lotViewColumns = `l.id, l.medicine_id, l.supplier_id, l.batch_number, l.quantity_added,
	l.current_quantity, l.expiry_date, l.date_added, l.location, m.name AS medicine_name`

// LotRepository handles inventory lot persistence
type LotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{db: db}
}

// Create inserts a lot and sets its ID
func (r *LotRepository) Create(ctx context.Context, lot *domain.InventoryLot) error {
	query := `
		INSERT INTO inventory_lots (
			medicine_id, supplier_id, batch_number, quantity_added, current_quantity,
			expiry_date, date_added, location
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query,
		lot.MedicineID, lot.SupplierID, lot.BatchNumber, lot.QuantityAdded, lot.CurrentQuantity,
		database.DateParam(lot.ExpiryDate), lot.DateAdded.UTC(), lot.Location,
	).Scan(&lot.ID)
	return database.Classify("create lot", err)
}

// GetByID gets a lot by ID. With lock set the row stays locked until the
// surrounding transaction ends.
func (r *LotRepository) GetByID(ctx context.Context, id int64, lock bool) (*domain.InventoryLot, error) {
	var lot domain.InventoryLot
	query := `SELECT ` + lotColumns + ` FROM inventory_lots WHERE id = ?`
	if lock {
		query += r.db.ForUpdate()
	}
	if err := r.db.GetContext(ctx, &lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.LotNotFound(id)
		}
		return nil, database.Classify("get lot", err)
	}
	return &lot, nil
}

// ListByMedicine lists every lot of a medicine in FIFO order, empty ones
// included. With lock set the rows stay locked until the surrounding
// transaction ends.
func (r *LotRepository) ListByMedicine(ctx context.Context, medicineID int64, lock bool) ([]*domain.InventoryLot, error) {
	lots := []*domain.InventoryLot{}
	query := `
		SELECT ` + lotColumns + ` FROM inventory_lots
		WHERE medicine_id = ?
		ORDER BY expiry_date, date_added, id
	`
	if lock {
		query += r.db.ForUpdate()
	}
	if err := r.db.SelectContext(ctx, &lots, query, medicineID); err != nil {
		return nil, database.Classify("list lots", err)
	}
	return lots, nil
}

// UpdateQuantity sets the current quantity of a lot
func (r *LotRepository) UpdateQuantity(ctx context.Context, id int64, quantity int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE inventory_lots SET current_quantity = ? WHERE id = ?`, quantity, id)
	if err != nil {
		return database.Classify("update lot quantity", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.LotNotFound(id)
	}
	return nil
}

// Delete deletes a lot
func (r *LotRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM inventory_lots WHERE id = ?`, id)
	if err != nil {
		return database.Classify("delete lot", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.LotNotFound(id)
	}
	return nil
}

// TotalStock sums the current quantity over a medicine's lots
func (r *LotRepository) TotalStock(ctx context.Context, medicineID int64) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(current_quantity) FROM inventory_lots WHERE medicine_id = ? AND current_quantity > 0`
	if err := r.db.GetContext(ctx, &total, query, medicineID); err != nil {
		return 0, database.Classify("sum stock", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// ListLowStock lists lots holding less than threshold units
func (r *LotRepository) ListLowStock(ctx context.Context, threshold int) ([]*domain.LotView, error) {
	lots := []*domain.LotView{}
	query := `
		SELECT ` + lotViewColumns + `
		FROM inventory_lots l
		JOIN medicines m ON m.id = l.medicine_id
		WHERE l.current_quantity < ?
		ORDER BY l.current_quantity, l.id
	`
	if err := r.db.SelectContext(ctx, &lots, query, threshold); err != nil {
		return nil, database.Classify("list low stock", err)
	}
	return lots, nil
}

// ListExpiring lists lots with stock that expire between from and to, inclusive
func (r *LotRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]*domain.LotView, error) {
	lots := []*domain.LotView{}
	query := `
		SELECT ` + lotViewColumns + `
		FROM inventory_lots l
		JOIN medicines m ON m.id = l.medicine_id
		WHERE l.current_quantity > 0 AND l.expiry_date BETWEEN ? AND ?
		ORDER BY l.expiry_date, l.id
	`
	if err := r.db.SelectContext(ctx, &lots, query, database.DateParam(from), database.DateParam(to)); err != nil {
		return nil, database.Classify("list expiring lots", err)
	}
	return lots, nil
}

// ListAll lists every lot with its medicine name
func (r *LotRepository) ListAll(ctx context.Context) ([]*domain.LotView, error) {
	lots := []*domain.LotView{}
	query := `
		SELECT ` + lotViewColumns + `
		FROM inventory_lots l
		JOIN medicines m ON m.id = l.medicine_id
		ORDER BY m.name, l.expiry_date, l.id
	`
	if err := r.db.SelectContext(ctx, &lots, query); err != nil {
		return nil, database.Classify("list lots", err)
	}
	return lots, nil
}
