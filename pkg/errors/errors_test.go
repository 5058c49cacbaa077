package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsufficientStock(t *testing.T) {
	err := errors.InsufficientStock(7, 15, 10)

	assert.Equal(t, errors.CodeInsufficientStock, err.Code)
	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	available, ok := errors.AvailableStock(err)
	require.True(t, ok)
	assert.Equal(t, 10, available)
}

func TestAvailableStock_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("add line: %w", errors.InsufficientStock(1, 5, 2))

	available, ok := errors.AvailableStock(wrapped)
	require.True(t, ok)
	assert.Equal(t, 2, available)

	_, ok = errors.AvailableStock(errors.MedicineNotFound(1))
	assert.False(t, ok)
}

func TestNotFoundConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *errors.AppError
		code string
	}{
		{"medicine", errors.MedicineNotFound(3), errors.CodeMedicineNotFound},
		{"supplier", errors.SupplierNotFound(3), errors.CodeSupplierNotFound},
		{"lot", errors.LotNotFound(3), errors.CodeLotNotFound},
		{"prescription", errors.PrescriptionNotFound(3), errors.CodePrescriptionNotFound},
		{"line", errors.LineNotFound(3, 4), errors.CodeLineNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, http.StatusNotFound, tt.err.StatusCode)
			assert.True(t, errors.Is(tt.err, errors.ErrNotFound))
			assert.True(t, errors.HasCode(tt.err, tt.code))
		})
	}
}

func TestDuplicateLine(t *testing.T) {
	err := errors.DuplicateLine(12, 4)

	assert.True(t, errors.Is(err, errors.ErrConflict))
	assert.Equal(t, "12", err.Details["prescription_id"])
	assert.Equal(t, "4", err.Details["medicine_id"])
}

func TestPersistence_KeepsDriverError(t *testing.T) {
	driverErr := stderrors.New("connection reset")
	err := errors.Persistence("update lot", driverErr)

	assert.True(t, errors.Is(err, errors.ErrPersistence))
	assert.True(t, errors.Is(err, driverErr))
	assert.Contains(t, err.Error(), "update lot")
}
