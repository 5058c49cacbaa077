package seed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/medflow/pharmacy-backend/internal/catalog/domain"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// CatalogWriter stores seeded catalog rows
type CatalogWriter interface {
	GetIDByName(ctx context.Context, name string) (int64, bool, error)
	CreateMedicine(ctx context.Context, m *domain.Medicine) error
	CreateSupplier(ctx context.Context, s *domain.Supplier) error
}

// Loader ingests catalog CSV files
type Loader struct {
	catalog CatalogWriter
	logger  *logger.Logger
}

// NewLoader creates a new catalog loader
func NewLoader(catalog CatalogWriter, log *logger.Logger) *Loader {
	return &Loader{
		catalog: catalog,
		logger:  log.WithComponent("seed"),
	}
}

// LoadMedicines reads medicines from CSV with the header
// name,manufacturer,category,dosage,price,requires_prescription.
// Names already in the catalog are skipped, as are malformed rows.
// It returns the number of medicines created.
func (l *Loader) LoadMedicines(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("failed to read medicine header: %w", err)
	}

	created := 0
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			l.logger.Warn().Err(err).Int("line", line).Msg("skipping unreadable medicine row")
			continue
		}
		if len(record) < 5 {
			l.logger.Warn().Int("line", line).Msg("skipping short medicine row")
			continue
		}

		medicine, err := parseMedicine(record)
		if err != nil {
			l.logger.Warn().Err(err).Int("line", line).Msg("skipping invalid medicine row")
			continue
		}

		_, exists, err := l.catalog.GetIDByName(ctx, medicine.Name)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		if err := l.catalog.CreateMedicine(ctx, medicine); err != nil {
			return created, err
		}
		created++
	}

	l.logger.Info().Int("rows", created).Msg("seeded medicine catalog")
	return created, nil
}

// LoadSuppliers reads suppliers from CSV with the header
// name,contact_person,phone,email,address and returns how many were created.
func (l *Loader) LoadSuppliers(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("failed to read supplier header: %w", err)
	}

	created := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			l.logger.Warn().Err(err).Msg("skipping unreadable supplier row")
			continue
		}

		supplier := &domain.Supplier{
			Name:          field(record, 0),
			ContactPerson: field(record, 1),
			Phone:         field(record, 2),
			Email:         field(record, 3),
			Address:       field(record, 4),
		}
		if supplier.Name == "" {
			continue
		}

		if err := l.catalog.CreateSupplier(ctx, supplier); err != nil {
			return created, err
		}
		created++
	}

	l.logger.Info().Int("rows", created).Msg("seeded suppliers")
	return created, nil
}

func parseMedicine(record []string) (*domain.Medicine, error) {
	name := field(record, 0)
	if name == "" {
		return nil, fmt.Errorf("name is empty")
	}

	price, err := decimal.NewFromString(field(record, 4))
	if err != nil {
		return nil, fmt.Errorf("invalid price %q", field(record, 4))
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("negative price %s", price)
	}

	requiresPrescription := false
	if raw := field(record, 5); raw != "" {
		requiresPrescription, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid requires_prescription %q", raw)
		}
	}

	return &domain.Medicine{
		Name:                 name,
		Manufacturer:         field(record, 1),
		Category:             field(record, 2),
		Dosage:               field(record, 3),
		Price:                price.Round(2),
		RequiresPrescription: requiresPrescription,
	}, nil
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
