package service_test

import (
	"context"
	stderrors "errors"
	"strconv"
	"testing"
	"time"

	catalogrepo "github.com/medflow/pharmacy-backend/internal/catalog/repository"
	inventoryevents "github.com/medflow/pharmacy-backend/internal/inventory/events"
	inventoryrepo "github.com/medflow/pharmacy-backend/internal/inventory/repository"
	inventoryservice "github.com/medflow/pharmacy-backend/internal/inventory/service"
	"github.com/medflow/pharmacy-backend/internal/prescription/domain"
	"github.com/medflow/pharmacy-backend/internal/prescription/events"
	"github.com/medflow/pharmacy-backend/internal/prescription/repository"
	"github.com/medflow/pharmacy-backend/internal/prescription/service"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
	"github.com/medflow/pharmacy-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	fixtures  *testutil.Fixtures
	service   *service.PrescriptionService
	ledger    *inventoryservice.StockLedger
	store     *repository.PrescriptionRepository
	publisher *testutil.MockPublisher
	supplier  int64
}

type envConfig struct {
	clock     func() time.Time
	wrapStore func(service.Store) service.Store
}

type envOption func(*envConfig)

func withClock(clock func() time.Time) envOption {
	return func(c *envConfig) { c.clock = clock }
}

// withStore hands the service a wrapped store; env.store stays the real one
func withStore(wrap func(service.Store) service.Store) envOption {
	return func(c *envConfig) { c.wrapStore = wrap }
}

func newTestEnv(t *testing.T, db *database.DB, opts ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{clock: func() time.Time { return today }}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := logger.Nop()
	clock := cfg.clock
	publisher := testutil.NewMockPublisher()
	catalog := catalogrepo.NewRepository(db)

	ledger := inventoryservice.NewStockLedger(
		db,
		inventoryrepo.NewLotRepository(db),
		inventoryrepo.NewMovementRepository(db),
		catalog,
		inventoryevents.NewStockEventPublisher(publisher, log),
		inventoryservice.DefaultRestorePolicy(),
		clock,
		log,
	)

	store := repository.NewPrescriptionRepository(db)
	var serviceStore service.Store = store
	if cfg.wrapStore != nil {
		serviceStore = cfg.wrapStore(store)
	}

	svc := service.NewPrescriptionService(
		db,
		serviceStore,
		ledger,
		catalog,
		events.NewPrescriptionEventPublisher(publisher, log),
		clock,
		log,
	)

	fixtures := testutil.NewFixtures(db)
	return &testEnv{
		fixtures:  fixtures,
		service:   svc,
		ledger:    ledger,
		store:     store,
		publisher: publisher,
		supplier:  fixtures.Supplier(t, "Acme Pharma"),
	}
}

func newSQLiteEnv(t *testing.T, opts ...envOption) *testEnv {
	return newTestEnv(t, testutil.NewSQLiteDB(t), opts...)
}

// failingStore fails the line writes it has an error for and passes
// everything else through
type failingStore struct {
	service.Store
	insertLineErr  error
	deleteLinesErr error
}

func (s *failingStore) InsertLine(ctx context.Context, line *domain.LineItem) error {
	if s.insertLineErr != nil {
		return s.insertLineErr
	}
	return s.Store.InsertLine(ctx, line)
}

func (s *failingStore) DeleteLines(ctx context.Context, prescriptionID int64) error {
	if s.deleteLinesErr != nil {
		return s.deleteLinesErr
	}
	return s.Store.DeleteLines(ctx, prescriptionID)
}

func newFailingEnv(t *testing.T) (*testEnv, *failingStore) {
	failing := &failingStore{}
	env := newSQLiteEnv(t, withStore(func(s service.Store) service.Store {
		failing.Store = s
		return failing
	}))
	return env, failing
}

// stocked adds a medicine with a single lot of qty units
func (e *testEnv) stocked(t *testing.T, name, price string, qty int) int64 {
	t.Helper()
	id := e.fixtures.Medicine(t, name, price)
	e.fixtures.Lot(t, testutil.LotFixture{
		MedicineID: id,
		SupplierID: e.supplier,
		Quantity:   qty,
		ExpiryDate: testutil.Date(2026, 1, 1),
		DateAdded:  today.Add(-24 * time.Hour),
	})
	return id
}

func (e *testEnv) stock(t *testing.T, medicineID int64) int {
	t.Helper()
	total, err := e.ledger.TotalStock(context.Background(), medicineID)
	require.NoError(t, err)
	return total
}

// assertTotalMatchesLines checks the header total against the sum of its lines
func (e *testEnv) assertTotalMatchesLines(t *testing.T, prescriptionID int64) {
	t.Helper()
	ctx := context.Background()

	p, err := e.store.GetByID(ctx, prescriptionID, false)
	require.NoError(t, err)
	lines, err := e.store.ListLines(ctx, prescriptionID)
	require.NoError(t, err)

	testutil.AssertDecimal(t, domain.SumLines(lines).StringFixed(2), p.TotalAmount)
}

func TestCreate(t *testing.T) {
	env := newSQLiteEnv(t)
	ctx := context.Background()

	aspirin := env.stocked(t, "Aspirin", "10.00", 20)
	ibuprofen := env.stocked(t, "Ibuprofen", "4.25", 10)

	id, err := env.service.Create(ctx, []domain.LineRequest{
		{MedicineID: aspirin, Quantity: 3},
		{MedicineID: ibuprofen, Quantity: 2},
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	p, err := env.service.GetByID(ctx, id)
	require.NoError(t, err)
	testutil.AssertDecimal(t, "38.50", p.TotalAmount)
	assert.True(t, p.Date.Equal(testutil.Date(2025, 6, 1)), "date %s", p.Date)
	require.Len(t, p.Lines, 2)
	assert.Equal(t, "Aspirin", p.Lines[0].MedicineName)
	assert.Equal(t, 3, p.Lines[0].QuantityBought)
	testutil.AssertDecimal(t, "30.00", p.Lines[0].TotalPrice)

	assert.Equal(t, 17, env.stock(t, aspirin))
	assert.Equal(t, 8, env.stock(t, ibuprofen))
	env.assertTotalMatchesLines(t, id)
	env.publisher.AssertEventPublished(t, messaging.EventPrescriptionCreated)
}

func TestCreate_IsAllOrNothing(t *testing.T) {
	env := newSQLiteEnv(t)
	ctx := context.Background()

	ids := []int64{
		env.stocked(t, "A", "1.00", 10),
		env.stocked(t, "B", "1.00", 10),
		env.stocked(t, "C", "1.00", 2),
		env.stocked(t, "D", "1.00", 10),
		env.stocked(t, "E", "1.00", 10),
	}

	requests := make([]domain.LineRequest, len(ids))
	for i, id := range ids {
		requests[i] = domain.LineRequest{MedicineID: id, Quantity: 5}
	}

	_, err := env.service.Create(ctx, requests)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInsufficientStock))
	available, ok := errors.AvailableStock(err)
	require.True(t, ok)
	assert.Equal(t, 2, available)

	for i, id := range ids {
		want := 10
		if i == 2 {
			want = 2
		}
		assert.Equal(t, want, env.stock(t, id), "medicine %d", id)
	}
	assert.Equal(t, 0, env.fixtures.Count(t, "prescriptions"))
	assert.Equal(t, 0, env.fixtures.Count(t, "prescription_items"))
	env.publisher.AssertNoEventsPublished(t)
}

func TestCreate_Validation(t *testing.T) {
	env := newSQLiteEnv(t)
	ctx := context.Background()
	aspirin := env.stocked(t, "Aspirin", "10.00", 20)

	tests := []struct {
		name     string
		requests []domain.LineRequest
		code     string
	}{
		{"no lines", nil, errors.CodeInvalidInput},
		{"zero quantity", []domain.LineRequest{{MedicineID: aspirin, Quantity: 0}}, errors.CodeInvalidInput},
		{"repeated medicine", []domain.LineRequest{
			{MedicineID: aspirin, Quantity: 1},
			{MedicineID: aspirin, Quantity: 2},
		}, errors.CodeDuplicateLine},
		{"unknown medicine", []domain.LineRequest{{MedicineID: 999, Quantity: 1}}, errors.CodeMedicineNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Create(ctx, tt.requests)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}

	assert.Equal(t, 20, env.stock(t, aspirin))
}

func TestAddLine(t *testing.T) {
	env := newSQLiteEnv(t)
	ctx := context.Background()

	aspirin := env.stocked(t, "Aspirin", "10.00", 20)
	ibuprofen := env.stocked(t, "Ibuprofen", "4.25", 3)

	id, err := env.service.Create(ctx, []domain.LineRequest{{MedicineID: aspirin, Quantity: 1}})
	require.NoError(t, err)

	require.NoError(t, env.service.AddLine(ctx, id, ibuprofen, 2))
	env.assertTotalMatchesLines(t, id)
	assert.Equal(t, 1, env.stock(t, ibuprofen))

	t.Run("duplicate line", func(t *testing.T) {
		err := env.service.AddLine(ctx, id, ibuprofen, 1)
		assert.True(t, errors.HasCode(err, errors.CodeDuplicateLine))
		assert.Equal(t, 1, env.stock(t, ibuprofen))
	})

	t.Run("insufficient stock", func(t *testing.T) {
		other := env.stocked(t, "Naproxen", "6.00", 1)
		err := env.service.AddLine(ctx, id, other, 2)
		assert.True(t, errors.HasCode(err, errors.CodeInsufficientStock))
		has, hasErr := env.store.HasLine(ctx, id, other)
		require.NoError(t, hasErr)
		assert.False(t, has)
		env.assertTotalMatchesLines(t, id)
	})

	t.Run("unknown prescription", func(t *testing.T) {
		err := env.service.AddLine(ctx, 999, aspirin, 1)
		assert.True(t, errors.HasCode(err, errors.CodePrescriptionNotFound))
	})

	t.Run("unknown medicine", func(t *testing.T) {
		err := env.service.AddLine(ctx, id, 999, 1)
		assert.True(t, errors.HasCode(err, errors.CodeMedicineNotFound))
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		err := env.service.AddLine(ctx, id, aspirin, 0)
		assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
	})
}

func TestAddThenRemoveLine_RoundTrips(t *testing.T) {
	env := newSQLiteEnv(t)
	ctx := context.Background()

	aspirin := env.stocked(t, "Aspirin", "10.00", 20)
	ibuprofen := env.stocked(t, "Ibuprofen", "4.25", 10)

	id, err := env.service.Create(ctx, []domain.LineRequest{{MedicineID: aspirin, Quantity: 2}})
	require.NoError(t, err)
	before, err := env.service.GetByID(ctx, id)
	require.NoError(t, err)

	require.NoError(t, env.service.AddLine(ctx, id, ibuprofen, 5))
	assert.Equal(t, 5, env.stock(t, ibuprofen))

	require.NoError(t, env.service.RemoveLine(ctx, id, ibuprofen))
	assert.Equal(t, 10, env.stock(t, ibuprofen))

	after, err := env.service.GetByID(ctx, id)
	require.NoError(t, err)
	testutil.AssertDecimal(t, before.TotalAmount.StringFixed(2), after.TotalAmount)
	env.assertTotalMatchesLines(t, id)

	err = env.service.RemoveLine(ctx, id, ibuprofen)
	assert.True(t, errors.HasCode(err, errors.CodeLineNotFound))
}

func TestRemoveLine_SynthesizesReturnLot(t *testing.T) {
	env := newSQLiteEnv(t)
	ctx := context.Background()

	aspirin := env.fixtures.Medicine(t, "Aspirin", "10.00")
	lot := env.fixtures.Lot(t, testutil.LotFixture{MedicineID: aspirin, SupplierID: env.supplier, Quantity: 4})

	id, err := env.service.Create(ctx, []domain.LineRequest{{MedicineID: aspirin, Quantity: 4}})
	require.NoError(t, err)

	require.NoError(t, env.ledger.DeleteLot(ctx, lot))
	require.NoError(t, env.service.RemoveLine(ctx, id, aspirin))

	lots, err := env.ledger.ListLots(ctx, aspirin)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "RETURN-"+strconv.FormatInt(id, 10), lots[0].BatchNumber)
	assert.Equal(t, 4, lots[0].CurrentQuantity)
}

func TestUpdateLineQuantity(t *testing.T) {
	env := newSQLiteEnv(t)
	ctx := context.Background()

	aspirin := env.stocked(t, "Aspirin", "10.00", 10)

	id, err := env.service.Create(ctx, []domain.LineRequest{{MedicineID: aspirin, Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, 7, env.stock(t, aspirin))

	t.Run("increase consumes the difference", func(t *testing.T) {
		require.NoError(t, env.service.UpdateLineQuantity(ctx, id, aspirin, 5))
		assert.Equal(t, 5, env.stock(t, aspirin))

		line, err := env.store.GetLine(ctx, id, aspirin)
		require.NoError(t, err)
		testutil.AssertDecimal(t, "50.00", line.TotalPrice)

		p, err := env.service.GetByID(ctx, id)
		require.NoError(t, err)
		testutil.AssertDecimal(t, "50.00", p.TotalAmount)
	})

	t.Run("same quantity is a no-op", func(t *testing.T) {
		require.NoError(t, env.service.UpdateLineQuantity(ctx, id, aspirin, 5))
		assert.Equal(t, 5, env.stock(t, aspirin))
	})

	t.Run("decrease restores the difference", func(t *testing.T) {
		require.NoError(t, env.service.UpdateLineQuantity(ctx, id, aspirin, 1))
		assert.Equal(t, 9, env.stock(t, aspirin))
		env.assertTotalMatchesLines(t, id)
	})

	t.Run("shortfall leaves the line untouched", func(t *testing.T) {
		err := env.service.UpdateLineQuantity(ctx, id, aspirin, 20)
		assert.True(t, errors.HasCode(err, errors.CodeInsufficientStock))

		line, err := env.store.GetLine(ctx, id, aspirin)
		require.NoError(t, err)
		assert.Equal(t, 1, line.QuantityBought)
		assert.Equal(t, 9, env.stock(t, aspirin))
	})

	t.Run("reprices at the current catalog price", func(t *testing.T) {
		env.fixtures.SetPrice(t, aspirin, "12.00")
		require.NoError(t, env.service.UpdateLineQuantity(ctx, id, aspirin, 2))

		line, err := env.store.GetLine(ctx, id, aspirin)
		require.NoError(t, err)
		testutil.AssertDecimal(t, "24.00", line.TotalPrice)
		env.assertTotalMatchesLines(t, id)
	})

	t.Run("missing line", func(t *testing.T) {
		err := env.service.UpdateLineQuantity(ctx, id, 999, 2)
		assert.True(t, errors.HasCode(err, errors.CodeLineNotFound))
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		err := env.service.UpdateLineQuantity(ctx, id, aspirin, 0)
		assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
	})
}

func TestDelete_RestoresEveryLine(t *testing.T) {
	env := newSQLiteEnv(t)
	ctx := context.Background()

	ids := []int64{
		env.stocked(t, "Aspirin", "10.00", 10),
		env.stocked(t, "Ibuprofen", "4.25", 10),
		env.stocked(t, "Naproxen", "6.00", 10),
	}

	pid, err := env.service.Create(ctx, []domain.LineRequest{
		{MedicineID: ids[0], Quantity: 1},
		{MedicineID: ids[1], Quantity: 2},
		{MedicineID: ids[2], Quantity: 3},
	})
	require.NoError(t, err)

	require.NoError(t, env.service.Delete(ctx, pid))

	for _, id := range ids {
		assert.Equal(t, 10, env.stock(t, id))
	}
	assert.Equal(t, 0, env.fixtures.Count(t, "prescriptions"))
	assert.Equal(t, 0, env.fixtures.Count(t, "prescription_items"))
	env.publisher.AssertEventPublished(t, messaging.EventPrescriptionDeleted)

	_, err = env.service.GetByID(ctx, pid)
	assert.True(t, errors.HasCode(err, errors.CodePrescriptionNotFound))

	err = env.service.Delete(ctx, pid)
	assert.True(t, errors.HasCode(err, errors.CodePrescriptionNotFound))
}

func TestFindByDateAndAmount(t *testing.T) {
	env := newSQLiteEnv(t)
	ctx := context.Background()

	aspirin := env.stocked(t, "Aspirin", "10.00", 50)

	var ids []int64
	for _, qty := range []int{1, 2, 5} {
		id, err := env.service.Create(ctx, []domain.LineRequest{{MedicineID: aspirin, Quantity: qty}})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	byDate, err := env.service.FindByDate(ctx, time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, byDate, 3)

	byDate, err = env.service.FindByDate(ctx, testutil.Date(2025, 6, 2))
	require.NoError(t, err)
	assert.Empty(t, byDate)

	byAmount, err := env.service.FindByAmountRange(ctx, decimal.NewFromInt(10), decimal.NewFromInt(20))
	require.NoError(t, err)
	require.Len(t, byAmount, 2)
	assert.Equal(t, ids[0], byAmount[0].ID)
	assert.Equal(t, ids[1], byAmount[1].ID)

	_, err = env.service.FindByAmountRange(ctx, decimal.NewFromInt(20), decimal.NewFromInt(10))
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	list, err := env.service.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)

	available, err := env.service.Availability(ctx, aspirin)
	require.NoError(t, err)
	assert.Equal(t, 42, available)
}

func TestFIFOAcrossPrescriptions(t *testing.T) {
	env := newSQLiteEnv(t)
	ctx := context.Background()

	aspirin := env.fixtures.Medicine(t, "Aspirin", "10.00")
	a := env.fixtures.Lot(t, testutil.LotFixture{
		MedicineID: aspirin, SupplierID: env.supplier, Quantity: 5, ExpiryDate: testutil.Date(2025, 7, 1),
	})
	b := env.fixtures.Lot(t, testutil.LotFixture{
		MedicineID: aspirin, SupplierID: env.supplier, Quantity: 5, ExpiryDate: testutil.Date(2025, 8, 1),
	})

	_, err := env.service.Create(ctx, []domain.LineRequest{{MedicineID: aspirin, Quantity: 7}})
	require.NoError(t, err)

	assert.Equal(t, 0, env.fixtures.LotQuantity(t, a))
	assert.Equal(t, 3, env.fixtures.LotQuantity(t, b))
}

func TestAddLine_StorageFailureAfterConsumeRollsBack(t *testing.T) {
	env, failing := newFailingEnv(t)
	ctx := context.Background()

	aspirin := env.stocked(t, "Aspirin", "10.00", 20)
	ibuprofen := env.stocked(t, "Ibuprofen", "4.25", 5)

	id, err := env.service.Create(ctx, []domain.LineRequest{{MedicineID: aspirin, Quantity: 1}})
	require.NoError(t, err)

	movements := env.fixtures.Count(t, "stock_movements")
	env.publisher.Reset()
	failing.insertLineErr = errors.Persistence("insert prescription line", stderrors.New("disk I/O error"))

	err = env.service.AddLine(ctx, id, ibuprofen, 2)
	assert.True(t, errors.HasCode(err, errors.CodePersistence), "got %v", err)

	assert.Equal(t, 5, env.stock(t, ibuprofen))
	assert.Equal(t, movements, env.fixtures.Count(t, "stock_movements"))
	has, err := env.store.HasLine(ctx, id, ibuprofen)
	require.NoError(t, err)
	assert.False(t, has)

	p, err := env.store.GetByID(ctx, id, false)
	require.NoError(t, err)
	testutil.AssertDecimal(t, "10.00", p.TotalAmount)
	env.publisher.AssertNoEventsPublished(t)
}

func TestDelete_StorageFailureAfterRestoreRollsBack(t *testing.T) {
	env, failing := newFailingEnv(t)
	ctx := context.Background()

	aspirin := env.stocked(t, "Aspirin", "10.00", 20)
	ibuprofen := env.stocked(t, "Ibuprofen", "4.25", 5)

	id, err := env.service.Create(ctx, []domain.LineRequest{
		{MedicineID: aspirin, Quantity: 3},
		{MedicineID: ibuprofen, Quantity: 2},
	})
	require.NoError(t, err)

	lots := env.fixtures.Count(t, "inventory_lots")
	movements := env.fixtures.Count(t, "stock_movements")
	env.publisher.Reset()
	failing.deleteLinesErr = errors.Persistence("delete prescription lines", stderrors.New("disk I/O error"))

	err = env.service.Delete(ctx, id)
	assert.True(t, errors.HasCode(err, errors.CodePersistence), "got %v", err)

	assert.Equal(t, 17, env.stock(t, aspirin))
	assert.Equal(t, 3, env.stock(t, ibuprofen))
	assert.Equal(t, lots, env.fixtures.Count(t, "inventory_lots"))
	assert.Equal(t, movements, env.fixtures.Count(t, "stock_movements"))

	p, err := env.service.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Len(t, p.Lines, 2)
	env.assertTotalMatchesLines(t, id)
	env.publisher.AssertNoEventsPublished(t)
}

func TestCreate_DatesByClockZone(t *testing.T) {
	// 02:00 on June 1st in UTC+5 is still May 31st in UTC
	karachi := time.FixedZone("PKT", 5*60*60)
	env := newSQLiteEnv(t, withClock(func() time.Time { return time.Date(2025, 6, 1, 2, 0, 0, 0, karachi) }))
	ctx := context.Background()

	aspirin := env.stocked(t, "Aspirin", "10.00", 10)
	id, err := env.service.Create(ctx, []domain.LineRequest{{MedicineID: aspirin, Quantity: 1}})
	require.NoError(t, err)

	p, err := env.service.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, p.Date.Equal(testutil.Date(2025, 6, 1)), "date %s", p.Date)

	byDate, err := env.service.FindByDate(ctx, time.Date(2025, 6, 1, 0, 0, 0, 0, karachi))
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, id, byDate[0].ID)

	byDate, err = env.service.FindByDate(ctx, testutil.Date(2025, 5, 31))
	require.NoError(t, err)
	assert.Empty(t, byDate)
}
