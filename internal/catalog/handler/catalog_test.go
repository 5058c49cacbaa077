package handler_test

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/pharmacy-backend/internal/catalog/domain"
	"github.com/medflow/pharmacy-backend/internal/catalog/handler"
	"github.com/medflow/pharmacy-backend/internal/catalog/repository"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogRouter(t *testing.T) http.Handler {
	t.Helper()

	db := testutil.NewSQLiteDB(t)
	h := handler.NewCatalogHandler(repository.NewRepository(db), logger.Nop())

	r := chi.NewRouter()
	r.Get("/medicines", h.ListMedicines)
	r.Post("/medicines", h.CreateMedicine)
	r.Get("/medicines/lookup", h.LookupMedicine)
	r.Get("/medicines/{id}", h.GetMedicine)
	r.Post("/suppliers", h.CreateSupplier)
	return r
}

type medicineEnvelope struct {
	Data domain.Medicine `json:"data"`
}

func TestCatalogHandler_CreateAndLookup(t *testing.T) {
	router := newCatalogRouter(t)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/medicines", map[string]interface{}{
		"name":  "Amoxicillin",
		"price": "8.40",
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var created medicineEnvelope
	testutil.ParseJSONBody(t, rr, &created)
	require.NotZero(t, created.Data.ID)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/medicines/lookup?name=AMOXICILLIN", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var found medicineEnvelope
	testutil.ParseJSONBody(t, rr, &found)
	assert.Equal(t, created.Data.ID, found.Data.ID)
	testutil.AssertDecimal(t, "8.40", found.Data.Price)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/medicines", map[string]interface{}{
		"name":  "amoxicillin",
		"price": "1.00",
	}))
	testutil.AssertStatus(t, rr, http.StatusConflict)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/medicines", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, "Amoxicillin")
}

func TestCatalogHandler_Errors(t *testing.T) {
	router := newCatalogRouter(t)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/medicines/77", nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
	testutil.AssertBodyContains(t, rr, "MEDICINE_NOT_FOUND")

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/medicines/lookup?name=nothing", nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/medicines", map[string]interface{}{
		"name":  "Broken",
		"price": "-1",
	}))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/suppliers", map[string]interface{}{
		"name":  "Acme",
		"email": "not-an-email",
	}))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "Email")
}
