package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/medflow/pharmacy-backend/internal/prescription/domain"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrescriptionRepository_GetByID_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT id, prescription_date, total_amount FROM prescriptions WHERE id = $1").
		WithArgs(int64(3)).
		WillReturnRows(testutil.MockRows("id", "prescription_date", "total_amount"))

	_, err := NewPrescriptionRepository(mockDB.Database()).GetByID(context.Background(), 3, false)
	assert.True(t, errors.HasCode(err, errors.CodePrescriptionNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestPrescriptionRepository_UpdateTotal_WritesFixedPoint(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec("UPDATE prescriptions SET total_amount = $1, updated_at = $2 WHERE id = $3").
		WithArgs("70.00", testutil.AnyTime{}, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewPrescriptionRepository(mockDB.Database()).UpdateTotal(context.Background(), 4, decimal.NewFromInt(70))
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestPrescriptionRepository_DeleteLine_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec("DELETE FROM prescription_items WHERE prescription_id = $1 AND medicine_id = $2").
		WithArgs(int64(4), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewPrescriptionRepository(mockDB.Database()).DeleteLine(context.Background(), 4, 9)
	assert.True(t, errors.HasCode(err, errors.CodeLineNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestPrescriptionRepository_SQLiteRoundTrip(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	fixtures := testutil.NewFixtures(db)
	repo := NewPrescriptionRepository(db)
	ctx := context.Background()

	aspirin := fixtures.Medicine(t, "Aspirin", "10.00")
	ibuprofen := fixtures.Medicine(t, "Ibuprofen", "4.25")

	p := &domain.Prescription{Date: testutil.Date(2025, 6, 1)}
	require.NoError(t, repo.Create(ctx, p))
	require.NotZero(t, p.ID)

	lines := []*domain.LineItem{
		{PrescriptionID: p.ID, MedicineID: aspirin, MedicineName: "Aspirin", QuantityBought: 3,
			UnitPrice: decimal.RequireFromString("10.00"), TotalPrice: decimal.RequireFromString("30.00")},
		{PrescriptionID: p.ID, MedicineID: ibuprofen, MedicineName: "Ibuprofen", QuantityBought: 2,
			UnitPrice: decimal.RequireFromString("4.25"), TotalPrice: decimal.RequireFromString("8.50")},
	}
	for _, line := range lines {
		require.NoError(t, repo.InsertLine(ctx, line))
	}

	t.Run("duplicate line violates the key", func(t *testing.T) {
		err := repo.InsertLine(ctx, lines[0])
		assert.True(t, errors.Is(err, errors.ErrConflict), "got %v", err)
	})

	total, err := repo.SumLines(ctx, p.ID)
	require.NoError(t, err)
	testutil.AssertDecimal(t, "38.50", total)
	require.NoError(t, repo.UpdateTotal(ctx, p.ID, total))

	got, err := repo.GetByID(ctx, p.ID, false)
	require.NoError(t, err)
	testutil.AssertDecimal(t, "38.50", got.TotalAmount)
	assert.True(t, got.Date.Equal(testutil.Date(2025, 6, 1)), "date %s", got.Date)

	has, err := repo.HasLine(ctx, p.ID, ibuprofen)
	require.NoError(t, err)
	assert.True(t, has)

	fixtures.SetPrice(t, aspirin, "12.00")
	views, err := repo.ListLineViews(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Aspirin", views[0].MedicineName)
	testutil.AssertDecimal(t, "10.00", views[0].UnitPrice)
	require.NotNil(t, views[0].CurrentPrice)
	testutil.AssertDecimal(t, "12.00", *views[0].CurrentPrice)

	byDate, err := repo.FindByDate(ctx, testutil.Date(2025, 6, 1))
	require.NoError(t, err)
	require.Len(t, byDate, 1)

	byAmount, err := repo.FindByAmountRange(ctx, decimal.RequireFromString("38.50"), decimal.RequireFromString("38.50"))
	require.NoError(t, err)
	require.Len(t, byAmount, 1)

	byAmount, err = repo.FindByAmountRange(ctx, decimal.RequireFromString("38.51"), decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Empty(t, byAmount)

	require.NoError(t, repo.DeleteLines(ctx, p.ID))
	require.NoError(t, repo.Delete(ctx, p.ID))
	assert.Equal(t, 0, fixtures.Count(t, "prescription_items"))
	assert.Equal(t, 0, fixtures.Count(t, "prescriptions"))
}
