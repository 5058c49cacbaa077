package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Migration is one versioned schema change. Statements are written once
// for both drivers; the column type tokens are expanded per dialect.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

var dialects = map[string]*strings.Replacer{
	"sqlite": strings.NewReplacer(
		"{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{timestamp}}", "TIMESTAMP",
	),
	"postgres": strings.NewReplacer(
		"{{id}}", "BIGSERIAL PRIMARY KEY",
		"{{timestamp}}", "TIMESTAMPTZ",
	),
}

// Migrations returns the pharmacy schema in apply order
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "catalog",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS suppliers (
					id {{id}},
					name VARCHAR(255) NOT NULL,
					contact_person VARCHAR(255) NOT NULL DEFAULT '',
					phone VARCHAR(50) NOT NULL DEFAULT '',
					email VARCHAR(255) NOT NULL DEFAULT '',
					address TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE TABLE IF NOT EXISTS medicines (
					id {{id}},
					name VARCHAR(255) NOT NULL,
					manufacturer VARCHAR(255) NOT NULL DEFAULT '',
					category VARCHAR(100) NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					dosage VARCHAR(100) NOT NULL DEFAULT '',
					price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
					requires_prescription BOOLEAN NOT NULL DEFAULT FALSE
				)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS medicines_name_lower_key ON medicines (LOWER(name))`,
			},
		},
		{
			Version: 2,
			Name:    "inventory",
			Statements: []string{
				// supplier_id carries no foreign key: restores book synthesized
				// lots against a configured fallback supplier.
				`CREATE TABLE IF NOT EXISTS inventory_lots (
					id {{id}},
					medicine_id BIGINT NOT NULL REFERENCES medicines(id),
					supplier_id BIGINT NOT NULL,
					batch_number VARCHAR(100) NOT NULL,
					quantity_added INTEGER NOT NULL CHECK (quantity_added >= 0),
					current_quantity INTEGER NOT NULL CHECK (current_quantity >= 0),
					expiry_date DATE NOT NULL,
					date_added {{timestamp}} NOT NULL,
					location VARCHAR(100) NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX IF NOT EXISTS idx_inventory_lots_fifo ON inventory_lots (medicine_id, expiry_date, date_added)`,
				`CREATE TABLE IF NOT EXISTS stock_movements (
					id {{id}},
					lot_id BIGINT NOT NULL,
					medicine_id BIGINT NOT NULL,
					movement_type VARCHAR(20) NOT NULL,
					quantity INTEGER NOT NULL,
					previous_quantity INTEGER NOT NULL,
					new_quantity INTEGER NOT NULL,
					reference VARCHAR(100) NOT NULL DEFAULT '',
					created_at {{timestamp}} NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_stock_movements_medicine ON stock_movements (medicine_id, created_at)`,
			},
		},
		{
			Version: 3,
			Name:    "prescriptions",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS prescriptions (
					id {{id}},
					prescription_date DATE NOT NULL,
					total_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
					created_at {{timestamp}} NOT NULL,
					updated_at {{timestamp}} NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_prescriptions_date ON prescriptions (prescription_date)`,
				`CREATE TABLE IF NOT EXISTS prescription_items (
					prescription_id BIGINT NOT NULL REFERENCES prescriptions(id) ON DELETE CASCADE,
					medicine_id BIGINT NOT NULL REFERENCES medicines(id),
					medicine_name VARCHAR(255) NOT NULL DEFAULT '',
					quantity_bought INTEGER NOT NULL CHECK (quantity_bought > 0),
					unit_price NUMERIC(12,2) NOT NULL,
					total_price NUMERIC(12,2) NOT NULL,
					PRIMARY KEY (prescription_id, medicine_id)
				)`,
			},
		},
	}
}

// Migrate applies every migration not yet recorded in schema_migrations
// and returns how many were applied.
func (db *DB) Migrate(ctx context.Context) (int, error) {
	replacer, ok := dialects[db.driver]
	if !ok {
		return 0, fmt.Errorf("no migrations for driver %q", db.driver)
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		applied_at `+replacer.Replace("{{timestamp}}")+` NOT NULL
	)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var versions []int
	if err := db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations`); err != nil {
		return 0, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	count := 0
	for _, m := range Migrations() {
		if applied[m.Version] {
			continue
		}

		err := db.WithinTx(ctx, func(ctx context.Context) error {
			for _, stmt := range m.Statements {
				if _, err := db.ExecContext(ctx, replacer.Replace(stmt)); err != nil {
					return err
				}
			}
			_, err := db.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				m.Version, m.Name, time.Now().UTC(),
			)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}

		db.logger.Info().Int("version", m.Version).Str("name", m.Name).Msg("migration applied")
		count++
	}

	return count, nil
}
