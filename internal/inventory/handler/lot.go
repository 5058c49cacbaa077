package handler

import (
	"net/http"
	"time"

	"github.com/medflow/pharmacy-backend/internal/inventory/service"
	"github.com/medflow/pharmacy-backend/pkg/config"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// LotHandler handles stock ledger endpoints
type LotHandler struct {
	ledger *service.StockLedger
	cfg    config.InventoryConfig
	logger *logger.Logger
}

// NewLotHandler creates a new lot handler
func NewLotHandler(ledger *service.StockLedger, cfg config.InventoryConfig, log *logger.Logger) *LotHandler {
	return &LotHandler{
		ledger: ledger,
		cfg:    cfg,
		logger: log,
	}
}

// ReceiveLotRequest is the body of a stock delivery
type ReceiveLotRequest struct {
	MedicineID  int64  `json:"medicine_id" validate:"required,gt=0"`
	SupplierID  int64  `json:"supplier_id" validate:"required,gt=0"`
	BatchNumber string `json:"batch_number" validate:"required,max=100"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	ExpiryDate  string `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	Location    string `json:"location" validate:"max=100"`
}

// TransferLotRequest moves part of a lot to another location
type TransferLotRequest struct {
	Location string `json:"location" validate:"required,max=100"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// AdjustStockRequest corrects a medicine's stock by delta units
type AdjustStockRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// StockResponse reports a medicine's stock on hand
type StockResponse struct {
	MedicineID int64 `json:"medicine_id"`
	TotalStock int   `json:"total_stock"`
}

// Stock returns the total stock of a medicine
func (h *LotHandler) Stock(w http.ResponseWriter, r *http.Request) {
	medicineID, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	total, err := h.ledger.TotalStock(r.Context(), medicineID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, StockResponse{MedicineID: medicineID, TotalStock: total})
}

// ListByMedicine lists a medicine's lots in consumption order
func (h *LotHandler) ListByMedicine(w http.ResponseWriter, r *http.Request) {
	medicineID, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	lots, err := h.ledger.ListLots(r.Context(), medicineID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// Movements lists the latest stock movements of a medicine
func (h *LotHandler) Movements(w http.ResponseWriter, r *http.Request) {
	medicineID, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	limit, err := httputil.QueryInt(r, "limit", 50)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	movements, err := h.ledger.Movements(r.Context(), medicineID, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, movements)
}

// Adjust corrects a medicine's stock
func (h *LotHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	medicineID, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req AdjustStockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.ledger.Adjust(r.Context(), medicineID, req.Delta); err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().Int64("medicine_id", medicineID).Int("delta", req.Delta).Msg("stock adjusted")

	httputil.NoContent(w)
}

// Receive books a supplier delivery as a new lot
func (h *LotHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req ReceiveLotRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	expiry, err := time.Parse(httputil.DateLayout, req.ExpiryDate)
	if err != nil {
		httputil.Error(w, errors.Validation(map[string]string{"ExpiryDate": "must be a date formatted as " + httputil.DateLayout}))
		return
	}

	lot, err := h.ledger.ReceiveStock(r.Context(), service.ReceiveRequest{
		MedicineID:  req.MedicineID,
		SupplierID:  req.SupplierID,
		BatchNumber: req.BatchNumber,
		Quantity:    req.Quantity,
		ExpiryDate:  expiry,
		Location:    req.Location,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, lot)
}

// Get gets a lot by ID
func (h *LotHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	lot, err := h.ledger.GetLot(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// Transfer moves part of a lot to another location
func (h *LotHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req TransferLotRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	lot, err := h.ledger.TransferLot(r.Context(), id, req.Location, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, lot)
}

// Delete deletes an empty lot
func (h *LotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.ledger.DeleteLot(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// LowStock lists lots below the threshold query parameter
func (h *LotHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := httputil.QueryInt(r, "threshold", h.cfg.LowStockThreshold)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	lots, err := h.ledger.LowStock(r.Context(), threshold)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// Expiring lists lots expiring within the days query parameter
func (h *LotHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	days, err := httputil.QueryInt(r, "days", h.cfg.ExpiringWithinDays)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	lots, err := h.ledger.ExpiringSoon(r.Context(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// Report returns the per-medicine stock report
func (h *LotHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Report(r.Context(), h.cfg.ExpiringWithinDays)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}
