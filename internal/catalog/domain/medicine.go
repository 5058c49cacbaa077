package domain

import (
	"github.com/shopspring/decimal"
)

// Medicine is a catalog entry. Price is the current unit price.
type Medicine struct {
	ID                   int64           `db:"id" json:"id"`
	Name                 string          `db:"name" json:"name"`
	Manufacturer         string          `db:"manufacturer" json:"manufacturer"`
	Category             string          `db:"category" json:"category"`
	Description          string          `db:"description" json:"description"`
	Dosage               string          `db:"dosage" json:"dosage"`
	Price                decimal.Decimal `db:"price" json:"price"`
	RequiresPrescription bool            `db:"requires_prescription" json:"requires_prescription"`
}

// Supplier delivers inventory lots
type Supplier struct {
	ID            int64  `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	ContactPerson string `db:"contact_person" json:"contact_person"`
	Phone         string `db:"phone" json:"phone"`
	Email         string `db:"email" json:"email"`
	Address       string `db:"address" json:"address"`
}
