package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/medflow/pharmacy-backend/internal/prescription/domain"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

const prescriptionColumns = `id, prescription_date, total_amount`

const lineColumns = `prescription_id, medicine_id, medicine_name, quantity_bought, unit_price, total_price`

// PrescriptionRepository handles prescription and line item persistence
type PrescriptionRepository struct {
	db *database.DB
}

// NewPrescriptionRepository creates a new prescription repository
func NewPrescriptionRepository(db *database.DB) *PrescriptionRepository {
	return &PrescriptionRepository{db: db}
}

// Create inserts a prescription header and sets its ID
func (r *PrescriptionRepository) Create(ctx context.Context, p *domain.Prescription) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO prescriptions (prescription_date, total_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query,
		database.DateParam(p.Date), p.TotalAmount.StringFixed(2), now, now,
	).Scan(&p.ID)
	return database.Classify("create prescription", err)
}

// GetByID gets a prescription header. With lock set the row stays locked
// until the surrounding transaction ends.
func (r *PrescriptionRepository) GetByID(ctx context.Context, id int64, lock bool) (*domain.Prescription, error) {
	var p domain.Prescription
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE id = ?`
	if lock {
		query += r.db.ForUpdate()
	}
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.PrescriptionNotFound(id)
		}
		return nil, database.Classify("get prescription", err)
	}
	return &p, nil
}

// UpdateTotal writes the header total
func (r *PrescriptionRepository) UpdateTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE prescriptions SET total_amount = ?, updated_at = ? WHERE id = ?`,
		total.StringFixed(2), time.Now().UTC(), id)
	if err != nil {
		return database.Classify("update prescription total", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.PrescriptionNotFound(id)
	}
	return nil
}

// Delete deletes a prescription header
func (r *PrescriptionRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM prescriptions WHERE id = ?`, id)
	if err != nil {
		return database.Classify("delete prescription", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.PrescriptionNotFound(id)
	}
	return nil
}

// List lists prescriptions, newest first
func (r *PrescriptionRepository) List(ctx context.Context, limit, offset int) ([]*domain.Prescription, error) {
	prescriptions := []*domain.Prescription{}
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions ORDER BY id DESC LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &prescriptions, query, limit, offset); err != nil {
		return nil, database.Classify("list prescriptions", err)
	}
	return prescriptions, nil
}

// FindByDate lists the prescriptions written on date
func (r *PrescriptionRepository) FindByDate(ctx context.Context, date time.Time) ([]*domain.Prescription, error) {
	prescriptions := []*domain.Prescription{}
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE prescription_date = ? ORDER BY id`
	if err := r.db.SelectContext(ctx, &prescriptions, query, database.DateParam(date)); err != nil {
		return nil, database.Classify("find prescriptions by date", err)
	}
	return prescriptions, nil
}

// FindByAmountRange lists prescriptions whose total lies within [minAmount, maxAmount]
func (r *PrescriptionRepository) FindByAmountRange(ctx context.Context, minAmount, maxAmount decimal.Decimal) ([]*domain.Prescription, error) {
	prescriptions := []*domain.Prescription{}
	query := `
		SELECT ` + prescriptionColumns + ` FROM prescriptions
		WHERE total_amount >= ? AND total_amount <= ?
		ORDER BY total_amount, id
	`
	if err := r.db.SelectContext(ctx, &prescriptions, query, minAmount.String(), maxAmount.String()); err != nil {
		return nil, database.Classify("find prescriptions by amount", err)
	}
	return prescriptions, nil
}

// InsertLine inserts a line item
func (r *PrescriptionRepository) InsertLine(ctx context.Context, line *domain.LineItem) error {
	query := `
		INSERT INTO prescription_items (` + lineColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		line.PrescriptionID, line.MedicineID, line.MedicineName, line.QuantityBought,
		line.UnitPrice.StringFixed(2), line.TotalPrice.StringFixed(2),
	)
	return database.Classify("insert prescription line", err)
}

// GetLine gets the line for a medicine on a prescription
func (r *PrescriptionRepository) GetLine(ctx context.Context, prescriptionID, medicineID int64) (*domain.LineItem, error) {
	var line domain.LineItem
	query := `SELECT ` + lineColumns + ` FROM prescription_items WHERE prescription_id = ? AND medicine_id = ?`
	if err := r.db.GetContext(ctx, &line, query, prescriptionID, medicineID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.LineNotFound(prescriptionID, medicineID)
		}
		return nil, database.Classify("get prescription line", err)
	}
	return &line, nil
}

// HasLine reports whether a prescription already has a line for a medicine
func (r *PrescriptionRepository) HasLine(ctx context.Context, prescriptionID, medicineID int64) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM prescription_items WHERE prescription_id = ? AND medicine_id = ?`
	if err := r.db.GetContext(ctx, &count, query, prescriptionID, medicineID); err != nil {
		return false, database.Classify("check prescription line", err)
	}
	return count > 0, nil
}

// UpdateLine rewrites the quantity and prices of a line
func (r *PrescriptionRepository) UpdateLine(ctx context.Context, line *domain.LineItem) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE prescription_items
		SET quantity_bought = ?, unit_price = ?, total_price = ?
		WHERE prescription_id = ? AND medicine_id = ?`,
		line.QuantityBought, line.UnitPrice.StringFixed(2), line.TotalPrice.StringFixed(2),
		line.PrescriptionID, line.MedicineID,
	)
	if err != nil {
		return database.Classify("update prescription line", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.LineNotFound(line.PrescriptionID, line.MedicineID)
	}
	return nil
}

// DeleteLine deletes the line for a medicine on a prescription
func (r *PrescriptionRepository) DeleteLine(ctx context.Context, prescriptionID, medicineID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM prescription_items WHERE prescription_id = ? AND medicine_id = ?`,
		prescriptionID, medicineID)
	if err != nil {
		return database.Classify("delete prescription line", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.LineNotFound(prescriptionID, medicineID)
	}
	return nil
}

// DeleteLines deletes every line of a prescription
func (r *PrescriptionRepository) DeleteLines(ctx context.Context, prescriptionID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM prescription_items WHERE prescription_id = ?`, prescriptionID)
	return database.Classify("delete prescription lines", err)
}

// ListLines lists the lines of a prescription ordered by medicine
func (r *PrescriptionRepository) ListLines(ctx context.Context, prescriptionID int64) ([]*domain.LineItem, error) {
	lines := []*domain.LineItem{}
	query := `SELECT ` + lineColumns + ` FROM prescription_items WHERE prescription_id = ? ORDER BY medicine_id`
	if err := r.db.SelectContext(ctx, &lines, query, prescriptionID); err != nil {
		return nil, database.Classify("list prescription lines", err)
	}
	return lines, nil
}

// ListLineViews lists the lines of a prescription with the current catalog
// name and price. Lines whose medicine left the catalog keep their snapshot.
func (r *PrescriptionRepository) ListLineViews(ctx context.Context, prescriptionID int64) ([]*domain.LineView, error) {
	lines := []*domain.LineView{}
	query := `
		SELECT i.prescription_id, i.medicine_id,
			COALESCE(m.name, i.medicine_name) AS medicine_name,
			i.quantity_bought, i.unit_price, i.total_price,
			m.price AS current_price
		FROM prescription_items i
		LEFT JOIN medicines m ON m.id = i.medicine_id
		WHERE i.prescription_id = ?
		ORDER BY i.medicine_id
	`
	if err := r.db.SelectContext(ctx, &lines, query, prescriptionID); err != nil {
		return nil, database.Classify("list prescription lines", err)
	}
	return lines, nil
}

// SumLines adds up the line totals of a prescription
func (r *PrescriptionRepository) SumLines(ctx context.Context, prescriptionID int64) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	query := `SELECT SUM(total_price) FROM prescription_items WHERE prescription_id = ?`
	if err := r.db.GetContext(ctx, &total, query, prescriptionID); err != nil {
		return decimal.Zero, database.Classify("sum prescription lines", err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal.Round(2), nil
}
