package domain

import (
	"testing"
	"time"

	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestPlanConsumption_TakesSoonestExpiryFirst(t *testing.T) {
	lots := []*InventoryLot{
		{ID: 2, ExpiryDate: day(2025, 2, 1), CurrentQuantity: 5},
		{ID: 1, ExpiryDate: day(2025, 1, 1), CurrentQuantity: 5},
	}

	plan, err := PlanConsumption(9, lots, 7)
	require.NoError(t, err)

	assert.Equal(t, int64(9), plan.MedicineID)
	assert.Equal(t, 7, plan.Requested)
	assert.Equal(t, []Allocation{{LotID: 1, Quantity: 5}, {LotID: 2, Quantity: 2}}, plan.Allocations)

	// input order is left alone
	assert.Equal(t, int64(2), lots[0].ID)
}

func TestPlanConsumption_TieBreaks(t *testing.T) {
	expiry := day(2026, 6, 1)
	added := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	lots := []*InventoryLot{
		{ID: 7, ExpiryDate: expiry, DateAdded: added, CurrentQuantity: 1},
		{ID: 5, ExpiryDate: expiry, DateAdded: added.Add(time.Hour), CurrentQuantity: 1},
		{ID: 6, ExpiryDate: expiry, DateAdded: added, CurrentQuantity: 1},
	}

	plan, err := PlanConsumption(1, lots, 3)
	require.NoError(t, err)

	var order []int64
	for _, a := range plan.Allocations {
		order = append(order, a.LotID)
	}
	assert.Equal(t, []int64{6, 7, 5}, order)
}

func TestPlanConsumption_SkipsEmptyLots(t *testing.T) {
	lots := []*InventoryLot{
		{ID: 1, ExpiryDate: day(2025, 1, 1), CurrentQuantity: 0},
		{ID: 2, ExpiryDate: day(2025, 2, 1), CurrentQuantity: 4},
	}

	plan, err := PlanConsumption(1, lots, 4)
	require.NoError(t, err)
	assert.Equal(t, []Allocation{{LotID: 2, Quantity: 4}}, plan.Allocations)
}

func TestPlanConsumption_InsufficientStock(t *testing.T) {
	lots := []*InventoryLot{
		{ID: 1, ExpiryDate: day(2025, 1, 1), CurrentQuantity: 6},
		{ID: 2, ExpiryDate: day(2025, 2, 1), CurrentQuantity: 4},
	}

	plan, err := PlanConsumption(3, lots, 15)
	assert.Nil(t, plan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	available, ok := errors.AvailableStock(err)
	require.True(t, ok)
	assert.Equal(t, 10, available)
}

func TestPlanConsumption_RejectsNonPositiveQuantity(t *testing.T) {
	for _, qty := range []int{0, -3} {
		_, err := PlanConsumption(1, nil, qty)
		assert.True(t, errors.HasCode(err, errors.CodeInvalidInput), "qty %d", qty)
	}
}

func TestPlanConsumption_ExactStock(t *testing.T) {
	lots := []*InventoryLot{{ID: 1, CurrentQuantity: 3}}

	plan, err := PlanConsumption(1, lots, 3)
	require.NoError(t, err)
	assert.Equal(t, []Allocation{{LotID: 1, Quantity: 3}}, plan.Allocations)
}

func TestTotalStock(t *testing.T) {
	assert.Equal(t, 0, TotalStock(nil))
	assert.Equal(t, 9, TotalStock([]*InventoryLot{
		{CurrentQuantity: 4},
		{CurrentQuantity: 0},
		{CurrentQuantity: 5},
	}))
}

func TestNewestLot(t *testing.T) {
	assert.Nil(t, NewestLot(nil))

	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	lots := []*InventoryLot{
		{ID: 1, DateAdded: base},
		{ID: 3, DateAdded: base.Add(time.Minute)},
		{ID: 2, DateAdded: base.Add(time.Minute)},
	}

	newest := NewestLot(lots)
	require.NotNil(t, newest)
	assert.Equal(t, int64(3), newest.ID)
}

func TestDaysUntil(t *testing.T) {
	lot := &InventoryLot{ExpiryDate: day(2025, 3, 11)}
	today := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, 10, lot.DaysUntil(today))
	assert.Equal(t, -1, lot.DaysUntil(day(2025, 3, 12)))

	// early morning east of UTC is already the next local day
	local := time.Date(2025, 3, 2, 2, 0, 0, 0, time.FixedZone("PKT", 5*60*60))
	assert.Equal(t, 9, lot.DaysUntil(local))
}

func TestReference_String(t *testing.T) {
	assert.Equal(t, "sale:12", SaleRef(12).String())
	assert.Equal(t, "return:4", ReturnRef(4).String())
	assert.Equal(t, "adjust", AdjustRef(0).String())
}

func TestBuildReport(t *testing.T) {
	today := day(2025, 1, 1)
	lots := []*LotView{
		{MedicineName: "Paracetamol", InventoryLot: InventoryLot{MedicineID: 1, BatchNumber: "P1", CurrentQuantity: 10, ExpiryDate: day(2025, 6, 1), Location: "A1"}},
		{MedicineName: "Paracetamol", InventoryLot: InventoryLot{MedicineID: 1, BatchNumber: "P2", CurrentQuantity: 5, ExpiryDate: day(2025, 1, 20), Location: "A2"}},
		{MedicineName: "Amoxicillin", InventoryLot: InventoryLot{MedicineID: 2, BatchNumber: "X1", CurrentQuantity: 3, ExpiryDate: day(2026, 1, 1), Location: "B1"}},
		{MedicineName: "Ibuprofen", InventoryLot: InventoryLot{MedicineID: 3, BatchNumber: "I1", CurrentQuantity: 0, ExpiryDate: day(2025, 1, 2)}},
	}

	report := BuildReport(lots, today, 30)

	assert.Equal(t, 18, report.Summary.TotalItems)
	assert.Equal(t, 2, report.Summary.UniqueMedicines)
	assert.Equal(t, 1, report.Summary.ExpiringSoon)

	require.Len(t, report.Medicines, 2)
	assert.Equal(t, "Amoxicillin", report.Medicines[0].MedicineName)

	para := report.Medicines[1]
	assert.Equal(t, 15, para.TotalQuantity)
	assert.Equal(t, 2, para.BatchCount)
	assert.Equal(t, []string{"A1", "A2"}, para.Locations)
	require.NotNil(t, para.EarliestExpiry)
	assert.True(t, para.EarliestExpiry.Equal(day(2025, 1, 20)))
}

func TestBuildReport_OrdersByQuantityThenName(t *testing.T) {
	lots := []*LotView{
		{MedicineName: "Aspirin", InventoryLot: InventoryLot{MedicineID: 1, CurrentQuantity: 40, ExpiryDate: day(2026, 1, 1)}},
		{MedicineName: "Zinc", InventoryLot: InventoryLot{MedicineID: 2, CurrentQuantity: 2, ExpiryDate: day(2026, 1, 1)}},
		{MedicineName: "Morphine", InventoryLot: InventoryLot{MedicineID: 3, CurrentQuantity: 7, ExpiryDate: day(2026, 1, 1)}},
		{MedicineName: "Codeine", InventoryLot: InventoryLot{MedicineID: 4, CurrentQuantity: 7, ExpiryDate: day(2026, 1, 1)}},
	}

	report := BuildReport(lots, day(2025, 1, 1), 30)

	names := make([]string, len(report.Medicines))
	for i, m := range report.Medicines {
		names[i] = m.MedicineName
	}
	assert.Equal(t, []string{"Zinc", "Codeine", "Morphine", "Aspirin"}, names)
}
