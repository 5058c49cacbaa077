package domain

import (
	"sort"
	"time"

	"github.com/medflow/pharmacy-backend/pkg/errors"
)

// InventoryLot is one physical batch of a medicine on the shelves.
// CurrentQuantity never drops below zero; QuantityAdded is the historical
// receipt and may be exceeded after restores.
type InventoryLot struct {
	ID              int64     `db:"id" json:"id"`
	MedicineID      int64     `db:"medicine_id" json:"medicine_id"`
	SupplierID      int64     `db:"supplier_id" json:"supplier_id"`
	BatchNumber     string    `db:"batch_number" json:"batch_number"`
	QuantityAdded   int       `db:"quantity_added" json:"quantity_added"`
	CurrentQuantity int       `db:"current_quantity" json:"current_quantity"`
	ExpiryDate      time.Time `db:"expiry_date" json:"expiry_date"`
	DateAdded       time.Time `db:"date_added" json:"date_added"`
	Location        string    `db:"location" json:"location"`
}

// Allocation is the quantity taken from a single lot
type Allocation struct {
	LotID    int64 `json:"lot_id"`
	Quantity int   `json:"quantity"`
}

// ConsumedPlan lists the lots a consumption draws from, oldest expiry first
type ConsumedPlan struct {
	MedicineID  int64        `json:"medicine_id"`
	Requested   int          `json:"requested"`
	Allocations []Allocation `json:"allocations"`
}

// TotalStock sums the current quantity of lots
func TotalStock(lots []*InventoryLot) int {
	total := 0
	for _, lot := range lots {
		if lot.CurrentQuantity > 0 {
			total += lot.CurrentQuantity
		}
	}
	return total
}

// SortFIFO orders lots by expiry date, then date added, then id
func SortFIFO(lots []*InventoryLot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		if !a.DateAdded.Equal(b.DateAdded) {
			return a.DateAdded.Before(b.DateAdded)
		}
		return a.ID < b.ID
	})
}

// PlanConsumption allocates quantity across lots, soonest expiry first.
// The input slice is not modified. When the lots hold less than quantity
// no allocation is produced and an InsufficientStock error is returned.
func PlanConsumption(medicineID int64, lots []*InventoryLot, quantity int) (*ConsumedPlan, error) {
	if quantity <= 0 {
		return nil, errors.InvalidInput("quantity must be greater than zero")
	}

	available := TotalStock(lots)
	if available < quantity {
		return nil, errors.InsufficientStock(medicineID, quantity, available)
	}

	ordered := make([]*InventoryLot, len(lots))
	copy(ordered, lots)
	SortFIFO(ordered)

	plan := &ConsumedPlan{MedicineID: medicineID, Requested: quantity}
	remaining := quantity
	for _, lot := range ordered {
		if remaining == 0 {
			break
		}
		if lot.CurrentQuantity <= 0 {
			continue
		}

		take := min(lot.CurrentQuantity, remaining)
		plan.Allocations = append(plan.Allocations, Allocation{LotID: lot.ID, Quantity: take})
		remaining -= take
	}

	return plan, nil
}

// NewestLot returns the most recently added lot, or nil when there is none.
// Ties on DateAdded go to the higher id.
func NewestLot(lots []*InventoryLot) *InventoryLot {
	var newest *InventoryLot
	for _, lot := range lots {
		if newest == nil ||
			lot.DateAdded.After(newest.DateAdded) ||
			(lot.DateAdded.Equal(newest.DateAdded) && lot.ID > newest.ID) {
			newest = lot
		}
	}
	return newest
}

// DaysUntil counts whole days from today until the lot expires. Expired lots
// give a negative number.
func (l *InventoryLot) DaysUntil(today time.Time) int {
	return int(truncate(l.ExpiryDate).Sub(truncate(today)).Hours() / 24)
}

func truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
