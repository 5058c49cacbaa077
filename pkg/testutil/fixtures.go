package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/medflow/pharmacy-backend/pkg/database"
)

// LotFixture represents test inventory lot data
type LotFixture struct {
	MedicineID  int64
	SupplierID  int64
	BatchNumber string
	Quantity    int
	ExpiryDate  time.Time
	DateAdded   time.Time
	Location    string
}

// Fixtures inserts rows straight into the store, bypassing the services
type Fixtures struct {
	db *database.DB
}

// NewFixtures creates a fixture factory on db
func NewFixtures(db *database.DB) *Fixtures {
	return &Fixtures{db: db}
}

// Date returns midnight UTC of the given day
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Supplier inserts a supplier and returns its id
func (f *Fixtures) Supplier(t *testing.T, name string) int64 {
	t.Helper()

	var id int64
	err := f.db.GetContext(context.Background(), &id,
		`INSERT INTO suppliers (name) VALUES (?) RETURNING id`, name)
	if err != nil {
		t.Fatalf("failed to insert supplier %q: %v", name, err)
	}
	return id
}

// Medicine inserts a medicine priced at price (e.g. "10.00") and returns its id
func (f *Fixtures) Medicine(t *testing.T, name, price string) int64 {
	t.Helper()

	var id int64
	err := f.db.GetContext(context.Background(), &id,
		`INSERT INTO medicines (name, price) VALUES (?, ?) RETURNING id`, name, price)
	if err != nil {
		t.Fatalf("failed to insert medicine %q: %v", name, err)
	}
	return id
}

// SetPrice changes a medicine's catalog price
func (f *Fixtures) SetPrice(t *testing.T, medicineID int64, price string) {
	t.Helper()

	_, err := f.db.ExecContext(context.Background(),
		`UPDATE medicines SET price = ? WHERE id = ?`, price, medicineID)
	if err != nil {
		t.Fatalf("failed to update price: %v", err)
	}
}

// Lot inserts an inventory lot and returns its id. Zero dates default to an
// expiry one year out and a date added of now.
func (f *Fixtures) Lot(t *testing.T, lot LotFixture) int64 {
	t.Helper()

	if lot.ExpiryDate.IsZero() {
		lot.ExpiryDate = time.Now().UTC().AddDate(1, 0, 0)
	}
	if lot.DateAdded.IsZero() {
		lot.DateAdded = time.Now().UTC()
	}
	if lot.BatchNumber == "" {
		lot.BatchNumber = "B-TEST"
	}

	var id int64
	err := f.db.GetContext(context.Background(), &id, `
		INSERT INTO inventory_lots
			(medicine_id, supplier_id, batch_number, quantity_added, current_quantity, expiry_date, date_added, location)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		lot.MedicineID, lot.SupplierID, lot.BatchNumber, lot.Quantity, lot.Quantity,
		database.DateParam(lot.ExpiryDate), lot.DateAdded.UTC(), lot.Location,
	)
	if err != nil {
		t.Fatalf("failed to insert lot: %v", err)
	}
	return id
}

// LotQuantity returns the current quantity of a lot
func (f *Fixtures) LotQuantity(t *testing.T, lotID int64) int {
	t.Helper()

	var qty int
	err := f.db.GetContext(context.Background(), &qty,
		`SELECT current_quantity FROM inventory_lots WHERE id = ?`, lotID)
	if err != nil {
		t.Fatalf("failed to read lot %d: %v", lotID, err)
	}
	return qty
}

// Count returns the number of rows in table
func (f *Fixtures) Count(t *testing.T, table string) int {
	t.Helper()

	var n int
	if err := f.db.GetContext(context.Background(), &n, `SELECT COUNT(*) FROM `+table); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}
