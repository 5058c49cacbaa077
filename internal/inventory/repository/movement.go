package repository

import (
	"context"

	"github.com/medflow/pharmacy-backend/internal/inventory/domain"
	"github.com/medflow/pharmacy-backend/pkg/database"
)

// MovementRepository records the stock audit trail
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Create records a movement and sets its ID
func (r *MovementRepository) Create(ctx context.Context, m *domain.StockMovement) error {
	query := `
		INSERT INTO stock_movements (
			lot_id, medicine_id, movement_type, quantity, previous_quantity,
			new_quantity, reference, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query,
		m.LotID, m.MedicineID, m.MovementType, m.Quantity, m.PreviousQuantity,
		m.NewQuantity, m.Reference, m.CreatedAt.UTC(),
	).Scan(&m.ID)
	return database.Classify("record stock movement", err)
}

// ListByMedicine lists the most recent movements of a medicine, newest first
func (r *MovementRepository) ListByMedicine(ctx context.Context, medicineID int64, limit int) ([]*domain.StockMovement, error) {
	movements := []*domain.StockMovement{}
	query := `
		SELECT id, lot_id, medicine_id, movement_type, quantity, previous_quantity,
			new_quantity, reference, created_at
		FROM stock_movements
		WHERE medicine_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	if err := r.db.SelectContext(ctx, &movements, query, medicineID, limit); err != nil {
		return nil, database.Classify("list stock movements", err)
	}
	return movements, nil
}
