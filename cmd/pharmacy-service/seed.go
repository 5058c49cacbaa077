package main

import (
	"errors"
	"fmt"
	"os"

	catalogRepo "github.com/medflow/pharmacy-backend/internal/catalog/repository"
	"github.com/medflow/pharmacy-backend/internal/seed"
	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	var medicinesPath, suppliersPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the medicine catalog and suppliers from CSV files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if medicinesPath == "" && suppliersPath == "" {
				return errors.New("nothing to seed: pass --medicines and/or --suppliers")
			}

			_, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()

			if _, err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			loader := seed.NewLoader(catalogRepo.NewRepository(db), log)

			if suppliersPath != "" {
				f, err := os.Open(suppliersPath)
				if err != nil {
					return fmt.Errorf("failed to open suppliers file: %w", err)
				}
				defer f.Close()

				if _, err := loader.LoadSuppliers(cmd.Context(), f); err != nil {
					return err
				}
			}

			if medicinesPath != "" {
				f, err := os.Open(medicinesPath)
				if err != nil {
					return fmt.Errorf("failed to open medicines file: %w", err)
				}
				defer f.Close()

				if _, err := loader.LoadMedicines(cmd.Context(), f); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&medicinesPath, "medicines", "", "CSV file of medicines")
	cmd.Flags().StringVar(&suppliersPath, "suppliers", "", "CSV file of suppliers")
	return cmd
}
