package handler

import (
	"net/http"

	"github.com/medflow/pharmacy-backend/internal/prescription/domain"
	"github.com/medflow/pharmacy-backend/internal/prescription/service"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// PrescriptionHandler handles prescription endpoints
type PrescriptionHandler struct {
	service *service.PrescriptionService
	logger  *logger.Logger
}

// NewPrescriptionHandler creates a new prescription handler
func NewPrescriptionHandler(svc *service.PrescriptionService, log *logger.Logger) *PrescriptionHandler {
	return &PrescriptionHandler{
		service: svc,
		logger:  log,
	}
}

// CreatePrescriptionRequest is the body of a new prescription
type CreatePrescriptionRequest struct {
	Lines []domain.LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// AddLineRequest adds a medicine to a prescription
type AddLineRequest struct {
	MedicineID int64 `json:"medicine_id" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"required,gt=0"`
}

// UpdateLineRequest changes the quantity of a line
type UpdateLineRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

// CreatedResponse carries the ID of a new prescription
type CreatedResponse struct {
	ID int64 `json:"id"`
}

// AvailabilityResponse reports how many units can be dispensed
type AvailabilityResponse struct {
	MedicineID int64 `json:"medicine_id"`
	Available  int   `json:"available"`
}

// List lists prescriptions. A date query parameter filters by day; the
// min_amount and max_amount parameters filter by total.
func (h *PrescriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	date, byDate, err := httputil.QueryDate(r, "date")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	query := r.URL.Query()
	var prescriptions []*domain.Prescription
	switch {
	case byDate:
		prescriptions, err = h.service.FindByDate(r.Context(), date)

	case query.Has("min_amount") || query.Has("max_amount"):
		minAmount, maxAmount, parseErr := amountRange(query.Get("min_amount"), query.Get("max_amount"))
		if parseErr != nil {
			httputil.Error(w, parseErr)
			return
		}
		prescriptions, err = h.service.FindByAmountRange(r.Context(), minAmount, maxAmount)

	default:
		limit, limitErr := httputil.QueryInt(r, "limit", 50)
		if limitErr != nil {
			httputil.Error(w, limitErr)
			return
		}
		offset, offsetErr := httputil.QueryInt(r, "offset", 0)
		if offsetErr != nil {
			httputil.Error(w, offsetErr)
			return
		}
		prescriptions, err = h.service.List(r.Context(), limit, offset)
	}
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, prescriptions)
}

// amountRange parses the bounds of an amount filter. A missing minimum is
// zero; a missing maximum is the minimum.
func amountRange(rawMin, rawMax string) (decimal.Decimal, decimal.Decimal, error) {
	minAmount := decimal.Zero
	if rawMin != "" {
		parsed, err := decimal.NewFromString(rawMin)
		if err != nil {
			return decimal.Zero, decimal.Zero, errors.BadRequest("invalid min_amount")
		}
		minAmount = parsed
	}

	if rawMax == "" {
		return minAmount, minAmount, nil
	}
	maxAmount, err := decimal.NewFromString(rawMax)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.BadRequest("invalid max_amount")
	}
	return minAmount, maxAmount, nil
}

// Create creates a prescription
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePrescriptionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	id, err := h.service.Create(r.Context(), req.Lines)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, CreatedResponse{ID: id})
}

// Get gets a prescription with its lines
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	prescription, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, prescription)
}

// Delete deletes a prescription and returns its stock
func (h *PrescriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// AddLine adds a medicine to a prescription
func (h *PrescriptionHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req AddLineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.AddLine(r.Context(), id, req.MedicineID, req.Quantity); err != nil {
		httputil.Error(w, err)
		return
	}

	h.writePrescription(w, r, id)
}

// UpdateLine changes the quantity of a line
func (h *PrescriptionHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	medicineID, err := httputil.URLParamID(r, "medicineID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req UpdateLineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.UpdateLineQuantity(r.Context(), id, medicineID, req.Quantity); err != nil {
		httputil.Error(w, err)
		return
	}

	h.writePrescription(w, r, id)
}

// RemoveLine removes a medicine from a prescription
func (h *PrescriptionHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	medicineID, err := httputil.URLParamID(r, "medicineID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.RemoveLine(r.Context(), id, medicineID); err != nil {
		httputil.Error(w, err)
		return
	}

	h.writePrescription(w, r, id)
}

// Availability reports how many units of a medicine can be dispensed
func (h *PrescriptionHandler) Availability(w http.ResponseWriter, r *http.Request) {
	medicineID, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	available, err := h.service.Availability(r.Context(), medicineID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, AvailabilityResponse{MedicineID: medicineID, Available: available})
}

func (h *PrescriptionHandler) writePrescription(w http.ResponseWriter, r *http.Request, id int64) {
	prescription, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, prescription)
}
