package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/medflow/pharmacy-backend/internal/catalog/domain"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

const medicineColumns = `id, name, manufacturer, category, description, dosage, price, requires_prescription`

// Repository reads the medicine catalog and the supplier registry.
// Both are maintained elsewhere; the create methods exist for seeding.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new catalog repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// GetByID gets a medicine by ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Medicine, error) {
	var medicine domain.Medicine
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE id = ?`
	if err := r.db.GetContext(ctx, &medicine, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.MedicineNotFound(id)
		}
		return nil, database.Classify("get medicine", err)
	}
	return &medicine, nil
}

// GetPriceByID returns the current unit price of a medicine
func (r *Repository) GetPriceByID(ctx context.Context, id int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	if err := r.db.GetContext(ctx, &price, `SELECT price FROM medicines WHERE id = ?`, id); err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, errors.MedicineNotFound(id)
		}
		return decimal.Zero, database.Classify("get medicine price", err)
	}
	return price, nil
}

// ExistsByID reports whether a medicine exists
func (r *Repository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM medicines WHERE id = ?`, id); err != nil {
		return false, database.Classify("check medicine", err)
	}
	return count > 0, nil
}

// GetIDByName looks a medicine up by name, ignoring case
func (r *Repository) GetIDByName(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	query := `SELECT id FROM medicines WHERE LOWER(name) = ?`
	if err := r.db.GetContext(ctx, &id, query, strings.ToLower(strings.TrimSpace(name))); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, database.Classify("find medicine by name", err)
	}
	return id, true, nil
}

// List lists medicines ordered by name
func (r *Repository) List(ctx context.Context, limit, offset int) ([]*domain.Medicine, error) {
	medicines := []*domain.Medicine{}
	query := `SELECT ` + medicineColumns + ` FROM medicines ORDER BY name, id LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &medicines, query, limit, offset); err != nil {
		return nil, database.Classify("list medicines", err)
	}
	return medicines, nil
}

// SupplierExists reports whether a supplier exists
func (r *Repository) SupplierExists(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM suppliers WHERE id = ?`, id); err != nil {
		return false, database.Classify("check supplier", err)
	}
	return count > 0, nil
}

// CreateMedicine inserts a medicine and sets its ID
func (r *Repository) CreateMedicine(ctx context.Context, m *domain.Medicine) error {
	query := `
		INSERT INTO medicines (name, manufacturer, category, description, dosage, price, requires_prescription)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := r.db.QueryRowxContext(ctx, query,
		m.Name, m.Manufacturer, m.Category, m.Description, m.Dosage,
		m.Price.StringFixed(2), m.RequiresPrescription,
	).Scan(&m.ID)
	return database.Classify("create medicine", err)
}

// CreateSupplier inserts a supplier and sets its ID
func (r *Repository) CreateSupplier(ctx context.Context, s *domain.Supplier) error {
	query := `
		INSERT INTO suppliers (name, contact_person, phone, email, address)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`
	err := r.db.QueryRowxContext(ctx, query,
		s.Name, s.ContactPerson, s.Phone, s.Email, s.Address,
	).Scan(&s.ID)
	return database.Classify("create supplier", err)
}
