package domain

import (
	"strconv"
	"time"
)

// MovementType classifies a stock movement
type MovementType string

const (
	MovementReceive     MovementType = "receive"
	MovementConsume     MovementType = "consume"
	MovementRestore     MovementType = "restore"
	MovementTransferOut MovementType = "transfer_out"
	MovementTransferIn  MovementType = "transfer_in"
	MovementDelete      MovementType = "delete"
)

// StockMovement is the audit record of one change to a lot's quantity
type StockMovement struct {
	ID               int64        `db:"id" json:"id"`
	LotID            int64        `db:"lot_id" json:"lot_id"`
	MedicineID       int64        `db:"medicine_id" json:"medicine_id"`
	MovementType     MovementType `db:"movement_type" json:"movement_type"`
	Quantity         int          `db:"quantity" json:"quantity"`
	PreviousQuantity int          `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity      int          `db:"new_quantity" json:"new_quantity"`
	Reference        string       `db:"reference" json:"reference"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
}

// Reason says why stock moves
type Reason string

const (
	ReasonSale     Reason = "sale"
	ReasonReturn   Reason = "return"
	ReasonAdjust   Reason = "adjust"
	ReasonReceive  Reason = "receive"
	ReasonTransfer Reason = "transfer"
)

// Reference ties a movement to its cause. PrescriptionID is zero for
// movements that do not originate from a prescription.
type Reference struct {
	Reason         Reason
	PrescriptionID int64
}

// SaleRef is the reference for stock dispensed on a prescription
func SaleRef(prescriptionID int64) Reference {
	return Reference{Reason: ReasonSale, PrescriptionID: prescriptionID}
}

// ReturnRef is the reference for stock returned from a prescription
func ReturnRef(prescriptionID int64) Reference {
	return Reference{Reason: ReasonReturn, PrescriptionID: prescriptionID}
}

// AdjustRef is the reference for quantity corrections. prescriptionID may be zero.
func AdjustRef(prescriptionID int64) Reference {
	return Reference{Reason: ReasonAdjust, PrescriptionID: prescriptionID}
}

// String renders the reference as stored on movements, e.g. "return:12"
func (r Reference) String() string {
	if r.PrescriptionID == 0 {
		return string(r.Reason)
	}
	return string(r.Reason) + ":" + strconv.FormatInt(r.PrescriptionID, 10)
}
