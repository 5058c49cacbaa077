package handler

import (
	"net/http"
	"strings"

	"github.com/medflow/pharmacy-backend/internal/catalog/domain"
	"github.com/medflow/pharmacy-backend/internal/catalog/repository"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// CatalogHandler handles medicine and supplier endpoints
type CatalogHandler struct {
	repo   *repository.Repository
	logger *logger.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(repo *repository.Repository, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		repo:   repo,
		logger: log,
	}
}

// CreateMedicineRequest is the body of a new catalog entry
type CreateMedicineRequest struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Manufacturer         string `json:"manufacturer" validate:"max=255"`
	Category             string `json:"category" validate:"max=100"`
	Description          string `json:"description"`
	Dosage               string `json:"dosage" validate:"max=100"`
	Price                string `json:"price" validate:"required"`
	RequiresPrescription bool   `json:"requires_prescription"`
}

// CreateSupplierRequest is the body of a new supplier
type CreateSupplierRequest struct {
	Name          string `json:"name" validate:"required,max=255"`
	ContactPerson string `json:"contact_person" validate:"max=255"`
	Phone         string `json:"phone" validate:"max=50"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address"`
}

// ListMedicines lists the catalog ordered by name
func (h *CatalogHandler) ListMedicines(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 100)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	offset, err := httputil.QueryInt(r, "offset", 0)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	medicines, err := h.repo.List(r.Context(), limit, offset)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, medicines, &httputil.Meta{
		Page:    offset/limit + 1,
		PerPage: limit,
	})
}

// GetMedicine gets a medicine by ID
func (h *CatalogHandler) GetMedicine(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	medicine, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, medicine)
}

// LookupMedicine finds a medicine by name, ignoring case
func (h *CatalogHandler) LookupMedicine(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		httputil.Error(w, errors.BadRequest("name is required"))
		return
	}

	id, found, err := h.repo.GetIDByName(r.Context(), name)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if !found {
		httputil.Error(w, errors.NotFound("medicine"))
		return
	}

	medicine, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, medicine)
}

// CreateMedicine adds a medicine to the catalog
func (h *CatalogHandler) CreateMedicine(w http.ResponseWriter, r *http.Request) {
	var req CreateMedicineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		httputil.Error(w, errors.Validation(map[string]string{"Price": "must be a non-negative amount"}))
		return
	}

	medicine := &domain.Medicine{
		Name:                 strings.TrimSpace(req.Name),
		Manufacturer:         req.Manufacturer,
		Category:             req.Category,
		Description:          req.Description,
		Dosage:               req.Dosage,
		Price:                price.Round(2),
		RequiresPrescription: req.RequiresPrescription,
	}
	if err := h.repo.CreateMedicine(r.Context(), medicine); err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().Int64("medicine_id", medicine.ID).Str("name", medicine.Name).Msg("medicine created")

	httputil.Created(w, medicine)
}

// CreateSupplier registers a supplier
func (h *CatalogHandler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req CreateSupplierRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	supplier := &domain.Supplier{
		Name:          strings.TrimSpace(req.Name),
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Email:         req.Email,
		Address:       req.Address,
	}
	if err := h.repo.CreateSupplier(r.Context(), supplier); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, supplier)
}
