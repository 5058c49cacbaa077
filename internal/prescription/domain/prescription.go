package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Prescription is a billed prescription header. TotalAmount always equals
// the sum of its line totals.
type Prescription struct {
	ID          int64           `db:"id" json:"id"`
	Date        time.Time       `db:"prescription_date" json:"date"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
}

// LineItem is one medicine on a prescription. MedicineName and UnitPrice
// are the catalog values at the time the line was written.
type LineItem struct {
	PrescriptionID int64           `db:"prescription_id" json:"prescription_id"`
	MedicineID     int64           `db:"medicine_id" json:"medicine_id"`
	MedicineName   string          `db:"medicine_name" json:"medicine_name"`
	QuantityBought int             `db:"quantity_bought" json:"quantity_bought"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice     decimal.Decimal `db:"total_price" json:"total_price"`
}

// LineRequest asks for quantity units of a medicine
type LineRequest struct {
	MedicineID int64 `json:"medicine_id" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"required,gt=0"`
}

// LineView is a line joined with the current catalog entry. CurrentPrice
// is nil when the medicine has left the catalog.
type LineView struct {
	LineItem
	CurrentPrice *decimal.Decimal `db:"current_price" json:"current_price,omitempty"`
}

// PrescriptionWithLines is a prescription with its lines
type PrescriptionWithLines struct {
	Prescription
	Lines []*LineView `json:"lines"`
}

// LineTotal prices quantity units at price, rounded to cents
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// SumLines adds up the line totals
func SumLines(lines []*LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.TotalPrice)
	}
	return total
}
