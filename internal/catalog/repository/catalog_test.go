package repository

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/medflow/pharmacy-backend/internal/catalog/domain"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_MedicineLookups(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	medicine := &domain.Medicine{
		Name:         "Paracetamol 500mg",
		Manufacturer: "Generic Labs",
		Category:     "analgesic",
		Price:        decimal.RequireFromString("4.25"),
	}
	require.NoError(t, repo.CreateMedicine(ctx, medicine))
	require.NotZero(t, medicine.ID)

	t.Run("get by id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, medicine.ID)
		require.NoError(t, err)
		assert.Equal(t, "Paracetamol 500mg", got.Name)
		assert.Equal(t, "Generic Labs", got.Manufacturer)
		testutil.AssertDecimal(t, "4.25", got.Price)
	})

	t.Run("price", func(t *testing.T) {
		price, err := repo.GetPriceByID(ctx, medicine.ID)
		require.NoError(t, err)
		testutil.AssertDecimal(t, "4.25", price)
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := repo.ExistsByID(ctx, medicine.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ExistsByID(ctx, medicine.ID+100)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("name lookup ignores case", func(t *testing.T) {
		id, found, err := repo.GetIDByName(ctx, "  PARACETAMOL 500MG ")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, medicine.ID, id)

		_, found, err = repo.GetIDByName(ctx, "Aspirin")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("unknown medicine", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 999)
		assert.True(t, errors.HasCode(err, errors.CodeMedicineNotFound))

		_, err = repo.GetPriceByID(ctx, 999)
		assert.True(t, errors.HasCode(err, errors.CodeMedicineNotFound))
	})

	t.Run("duplicate name", func(t *testing.T) {
		err := repo.CreateMedicine(ctx, &domain.Medicine{Name: "paracetamol 500mg", Price: decimal.NewFromInt(1)})
		assert.True(t, errors.Is(err, errors.ErrConflict))
	})
}

func TestRepository_Suppliers(t *testing.T) {
	repo := NewRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	supplier := &domain.Supplier{Name: "MedSupply", Phone: "555-0100"}
	require.NoError(t, repo.CreateSupplier(ctx, supplier))

	ok, err := repo.SupplierExists(ctx, supplier.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SupplierExists(ctx, supplier.ID+1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_List(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	fixtures := testutil.NewFixtures(db)
	fixtures.Medicine(t, "Zinc", "1.00")
	fixtures.Medicine(t, "Aspirin", "2.00")
	fixtures.Medicine(t, "Ibuprofen", "3.00")

	medicines, err := NewRepository(db).List(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, medicines, 2)
	assert.Equal(t, "Aspirin", medicines[0].Name)
	assert.Equal(t, "Ibuprofen", medicines[1].Name)
}

func TestRepository_GetPriceByID_StorageFailure(t *testing.T) {
	suite := testutil.NewUnitTestSuite(t)
	defer suite.Cleanup()

	suite.MockDB.ExpectQuery("SELECT price FROM medicines WHERE id = $1").
		WithArgs(int64(4)).
		WillReturnError(stderrors.New("connection refused"))

	_, err := NewRepository(suite.MockDB.Database()).GetPriceByID(context.Background(), 4)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodePersistence))
}

func TestRepository_GetPriceByID_ScansNumeric(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT price FROM medicines WHERE id = $1").
		WithArgs(int64(4)).
		WillReturnRows(testutil.MockRows("price").AddRow([]byte("12.50")))

	price, err := NewRepository(mockDB.Database()).GetPriceByID(context.Background(), 4)
	require.NoError(t, err)
	testutil.AssertDecimal(t, "12.50", price)
	mockDB.ExpectationsWereMet(t)
}
