package domain

import (
	"sort"
	"time"
)

// LotView is a lot joined with its medicine's name
type LotView struct {
	InventoryLot
	MedicineName string `db:"medicine_name" json:"medicine_name"`
}

// ExpiringLot is a lot with the days left before it expires
type ExpiringLot struct {
	LotView
	DaysUntilExpiry int `json:"days_until_expiry"`
}

// MedicineStock aggregates the lots of one medicine
type MedicineStock struct {
	MedicineID     int64      `json:"medicine_id"`
	MedicineName   string     `json:"medicine_name"`
	TotalQuantity  int        `json:"total_quantity"`
	BatchCount     int        `json:"batch_count"`
	EarliestExpiry *time.Time `json:"earliest_expiry,omitempty"`
	Locations      []string   `json:"locations"`
}

// ReportSummary holds the headline numbers of an inventory report
type ReportSummary struct {
	TotalItems      int `json:"total_items"`
	UniqueMedicines int `json:"unique_medicines"`
	ExpiringSoon    int `json:"expiring_soon"`
}

// InventoryReport is the per-medicine stock overview
type InventoryReport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Summary     ReportSummary   `json:"summary"`
	Medicines   []MedicineStock `json:"medicines"`
}

// BuildReport aggregates lots per medicine. Only lots holding stock count.
// A medicine is expiring soon when its earliest expiry falls within
// expiringDays of today.
func BuildReport(lots []*LotView, today time.Time, expiringDays int) *InventoryReport {
	byMedicine := make(map[int64]*MedicineStock)
	batches := make(map[int64]map[string]bool)
	locations := make(map[int64]map[string]bool)

	for _, lot := range lots {
		if lot.CurrentQuantity <= 0 {
			continue
		}

		entry, ok := byMedicine[lot.MedicineID]
		if !ok {
			entry = &MedicineStock{MedicineID: lot.MedicineID, MedicineName: lot.MedicineName}
			byMedicine[lot.MedicineID] = entry
			batches[lot.MedicineID] = make(map[string]bool)
			locations[lot.MedicineID] = make(map[string]bool)
		}

		entry.TotalQuantity += lot.CurrentQuantity
		batches[lot.MedicineID][lot.BatchNumber] = true
		if lot.Location != "" {
			locations[lot.MedicineID][lot.Location] = true
		}
		if entry.EarliestExpiry == nil || lot.ExpiryDate.Before(*entry.EarliestExpiry) {
			expiry := lot.ExpiryDate
			entry.EarliestExpiry = &expiry
		}
	}

	report := &InventoryReport{
		GeneratedAt: today,
		Medicines:   make([]MedicineStock, 0, len(byMedicine)),
	}

	limit := truncate(today).AddDate(0, 0, expiringDays)
	for id, entry := range byMedicine {
		entry.BatchCount = len(batches[id])
		entry.Locations = make([]string, 0, len(locations[id]))
		for loc := range locations[id] {
			entry.Locations = append(entry.Locations, loc)
		}
		sort.Strings(entry.Locations)

		report.Summary.TotalItems += entry.TotalQuantity
		if entry.EarliestExpiry != nil && !entry.EarliestExpiry.After(limit) {
			report.Summary.ExpiringSoon++
		}
		report.Medicines = append(report.Medicines, *entry)
	}
	report.Summary.UniqueMedicines = len(report.Medicines)

	// Scarcest medicines first; ties by name
	sort.Slice(report.Medicines, func(i, j int) bool {
		a, b := report.Medicines[i], report.Medicines[j]
		if a.TotalQuantity != b.TotalQuantity {
			return a.TotalQuantity < b.TotalQuantity
		}
		return a.MedicineName < b.MedicineName
	})

	return report
}
