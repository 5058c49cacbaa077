package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	catalogHandler "github.com/medflow/pharmacy-backend/internal/catalog/handler"
	catalogRepo "github.com/medflow/pharmacy-backend/internal/catalog/repository"
	inventoryConsumers "github.com/medflow/pharmacy-backend/internal/inventory/consumers"
	inventoryEvents "github.com/medflow/pharmacy-backend/internal/inventory/events"
	inventoryHandler "github.com/medflow/pharmacy-backend/internal/inventory/handler"
	inventoryRepo "github.com/medflow/pharmacy-backend/internal/inventory/repository"
	inventoryService "github.com/medflow/pharmacy-backend/internal/inventory/service"
	prescriptionEvents "github.com/medflow/pharmacy-backend/internal/prescription/events"
	prescriptionHandler "github.com/medflow/pharmacy-backend/internal/prescription/handler"
	prescriptionRepo "github.com/medflow/pharmacy-backend/internal/prescription/repository"
	prescriptionService "github.com/medflow/pharmacy-backend/internal/prescription/service"
	"github.com/medflow/pharmacy-backend/pkg/config"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
	"github.com/spf13/cobra"
)

const serviceName = "pharmacy-service"

func main() {
	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Pharmacy back office: stock ledger and prescriptions",
	}

	rootCmd.AddCommand(serveCmd(), migrateCmd(), seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and opens the store shared by every command
func bootstrap() (*config.Config, *logger.Logger, *database.DB, error) {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("configuration error: %w", err)
	}

	log := logger.New(serviceName, cfg.Server.Environment).SetLevel(cfg.Server.LogLevel)

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return cfg, log, db, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := db.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Int("applied", applied).Msg("migrations complete")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()

			log.Info().Str("driver", db.Driver()).Msg("starting Pharmacy Service")
			return serve(cfg, log, db, !skipMigrate)
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply schema migrations on startup")
	return cmd
}

func serve(cfg *config.Config, log *logger.Logger, db *database.DB, migrate bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if migrate {
		if _, err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	// Event publishing is optional; a standalone counter runs without a broker
	var (
		rmq                   *messaging.RabbitMQ
		stockPublisher        *inventoryEvents.StockEventPublisher
		prescriptionPublisher *prescriptionEvents.PrescriptionEventPublisher
	)
	if cfg.RabbitMQ.Enabled {
		var err error
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer rmq.Close()

		publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, serviceName, log)
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		stockPublisher = inventoryEvents.NewStockEventPublisher(publisher, log)
		prescriptionPublisher = prescriptionEvents.NewPrescriptionEventPublisher(publisher, log)

		go rmq.Watch(ctx)
	}

	loc, err := cfg.Server.Location()
	if err != nil {
		return err
	}
	clock := func() time.Time { return time.Now().In(loc) }

	// Initialize repositories
	catalog := catalogRepo.NewRepository(db)
	lotRepo := inventoryRepo.NewLotRepository(db)
	movementRepo := inventoryRepo.NewMovementRepository(db)
	prescriptionStore := prescriptionRepo.NewPrescriptionRepository(db)

	// Initialize services
	ledger := inventoryService.NewStockLedger(
		db,
		lotRepo,
		movementRepo,
		catalog,
		stockPublisher,
		inventoryService.PolicyFromConfig(cfg.Inventory),
		clock,
		log,
	)
	prescriptions := prescriptionService.NewPrescriptionService(
		db,
		prescriptionStore,
		ledger,
		catalog,
		prescriptionPublisher,
		clock,
		log,
	)

	if cfg.Inventory.ScanInterval > 0 {
		scheduler := inventoryService.NewStockScanScheduler(
			ledger,
			cfg.Inventory.ScanInterval,
			cfg.Inventory.LowStockThreshold,
			cfg.Inventory.ExpiringWithinDays,
			log,
		)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	if rmq != nil {
		alerts, err := inventoryConsumers.NewStockAlertConsumer(rmq, ledger, cfg.Inventory.LowStockThreshold, log)
		if err != nil {
			return fmt.Errorf("failed to create stock alert consumer: %w", err)
		}
		if err := alerts.Start(ctx); err != nil {
			return fmt.Errorf("failed to start stock alert consumer: %w", err)
		}
	}

	// Initialize handlers
	catalogH := catalogHandler.NewCatalogHandler(catalog, log)
	lotH := inventoryHandler.NewLotHandler(ledger, cfg.Inventory, log)
	prescriptionH := prescriptionHandler.NewPrescriptionHandler(prescriptions, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/medicines", func(r chi.Router) {
			r.Get("/", catalogH.ListMedicines)
			r.Post("/", catalogH.CreateMedicine)
			r.Get("/lookup", catalogH.LookupMedicine)
			r.Get("/{id}", catalogH.GetMedicine)
			r.Get("/{id}/stock", lotH.Stock)
			r.Get("/{id}/lots", lotH.ListByMedicine)
			r.Get("/{id}/movements", lotH.Movements)
			r.Post("/{id}/adjust", lotH.Adjust)
			r.Get("/{id}/availability", prescriptionH.Availability)
		})

		r.Post("/suppliers", catalogH.CreateSupplier)

		r.Route("/lots", func(r chi.Router) {
			r.Post("/", lotH.Receive)
			r.Get("/{id}", lotH.Get)
			r.Delete("/{id}", lotH.Delete)
			r.Post("/{id}/transfer", lotH.Transfer)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/low-stock", lotH.LowStock)
			r.Get("/expiring", lotH.Expiring)
			r.Get("/report", lotH.Report)
		})

		r.Route("/prescriptions", func(r chi.Router) {
			r.Get("/", prescriptionH.List)
			r.Post("/", prescriptionH.Create)
			r.Get("/{id}", prescriptionH.Get)
			r.Delete("/{id}", prescriptionH.Delete)
			r.Post("/{id}/lines", prescriptionH.AddLine)
			r.Put("/{id}/lines/{medicineID}", prescriptionH.UpdateLine)
			r.Delete("/{id}/lines/{medicineID}", prescriptionH.RemoveLine)
		})
	})

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
