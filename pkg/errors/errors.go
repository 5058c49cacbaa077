package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Standard error types
var (
	ErrNotFound          = errors.New("resource not found")
	ErrBadRequest        = errors.New("bad request")
	ErrConflict          = errors.New("resource conflict")
	ErrInternal          = errors.New("internal server error")
	ErrValidation        = errors.New("validation error")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPersistence       = errors.New("persistence error")
)

// Error codes returned to callers
const (
	CodeNotFound             = "NOT_FOUND"
	CodeMedicineNotFound     = "MEDICINE_NOT_FOUND"
	CodeSupplierNotFound     = "SUPPLIER_NOT_FOUND"
	CodeLotNotFound          = "LOT_NOT_FOUND"
	CodePrescriptionNotFound = "PRESCRIPTION_NOT_FOUND"
	CodeLineNotFound         = "LINE_NOT_FOUND"
	CodeDuplicateLine        = "DUPLICATE_LINE"
	CodeInsufficientStock    = "INSUFFICIENT_STOCK"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeBadRequest           = "BAD_REQUEST"
	CodeConflict             = "CONFLICT"
	CodeValidation           = "VALIDATION_ERROR"
	CodeInternal             = "INTERNAL_ERROR"
	CodePersistence          = "PERSISTENCE_ERROR"
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Details:    map[string]string{"resource": resource},
	}
}

func notFoundWithID(code, resource string, id int64) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       code,
		Message:    fmt.Sprintf("%s %d not found", resource, id),
		StatusCode: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": strconv.FormatInt(id, 10)},
	}
}

func MedicineNotFound(id int64) *AppError {
	return notFoundWithID(CodeMedicineNotFound, "medicine", id)
}

func SupplierNotFound(id int64) *AppError {
	return notFoundWithID(CodeSupplierNotFound, "supplier", id)
}

func LotNotFound(id int64) *AppError {
	return notFoundWithID(CodeLotNotFound, "inventory lot", id)
}

func PrescriptionNotFound(id int64) *AppError {
	return notFoundWithID(CodePrescriptionNotFound, "prescription", id)
}

// LineNotFound reports that a medicine is not a line item of the prescription.
func LineNotFound(prescriptionID, medicineID int64) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       CodeLineNotFound,
		Message:    fmt.Sprintf("medicine %d is not on prescription %d", medicineID, prescriptionID),
		StatusCode: http.StatusNotFound,
		Details: map[string]string{
			"prescription_id": strconv.FormatInt(prescriptionID, 10),
			"medicine_id":     strconv.FormatInt(medicineID, 10),
		},
	}
}

// DuplicateLine reports a second line for the same medicine on one prescription.
func DuplicateLine(prescriptionID, medicineID int64) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       CodeDuplicateLine,
		Message:    fmt.Sprintf("medicine %d is already on prescription %d", medicineID, prescriptionID),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"prescription_id": strconv.FormatInt(prescriptionID, 10),
			"medicine_id":     strconv.FormatInt(medicineID, 10),
		},
	}
}

// InsufficientStock reports that fewer units are on hand than requested.
// The available amount is carried in Details and can be read back with
// AvailableStock.
func InsufficientStock(medicineID int64, requested, available int) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       CodeInsufficientStock,
		Message:    fmt.Sprintf("not enough stock for medicine %d: requested %d, available %d", medicineID, requested, available),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"medicine_id": strconv.FormatInt(medicineID, 10),
			"requested":   strconv.Itoa(requested),
			"available":   strconv.Itoa(available),
		},
	}
}

// AvailableStock extracts the available amount from an InsufficientStock error.
func AvailableStock(err error) (int, bool) {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != CodeInsufficientStock {
		return 0, false
	}
	available, convErr := strconv.Atoi(appErr.Details["available"])
	if convErr != nil {
		return 0, false
	}
	return available, true
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       CodeInvalidInput,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       CodeBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       CodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       CodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       CodeValidation,
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Persistence wraps a storage failure. The driver error stays reachable
// through errors.Is / errors.As.
func Persistence(op string, err error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %w", ErrPersistence, err),
		Code:       CodePersistence,
		Message:    op,
		StatusCode: http.StatusInternalServerError,
	}
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
