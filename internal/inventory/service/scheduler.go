package service

import (
	"context"
	"time"

	"github.com/medflow/pharmacy-backend/internal/inventory/domain"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// StockScanner reports lots that need attention
type StockScanner interface {
	LowStock(ctx context.Context, threshold int) ([]*domain.LotView, error)
	ExpiringSoon(ctx context.Context, days int) ([]*domain.ExpiringLot, error)
}

// ScanResult counts what one scan cycle found
type ScanResult struct {
	LowStock int
	Expiring int
}

// StockScanScheduler periodically logs low-stock and soon-to-expire lots
type StockScanScheduler struct {
	scanner            StockScanner
	interval           time.Duration
	lowStockThreshold  int
	expiringWithinDays int
	logger             *logger.Logger
	cancel             context.CancelFunc
}

// NewStockScanScheduler creates a new stock scan scheduler
func NewStockScanScheduler(scanner StockScanner, interval time.Duration, lowStockThreshold, expiringWithinDays int, log *logger.Logger) *StockScanScheduler {
	return &StockScanScheduler{
		scanner:            scanner,
		interval:           interval,
		lowStockThreshold:  lowStockThreshold,
		expiringWithinDays: expiringWithinDays,
		logger:             log.WithComponent("stock-scan"),
	}
}

// Start runs a scan immediately and then once per interval in a background
// goroutine until ctx is cancelled or Stop is called.
func (s *StockScanScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("stock scan scheduler started")

		s.RunOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("stock scan scheduler stopped")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine
func (s *StockScanScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// RunOnce performs a single scan cycle. Failures are logged and counted as zero.
func (s *StockScanScheduler) RunOnce(ctx context.Context) ScanResult {
	start := time.Now()
	var result ScanResult

	if s.lowStockThreshold > 0 {
		lots, err := s.scanner.LowStock(ctx, s.lowStockThreshold)
		if err != nil {
			s.logger.Error().Err(err).Msg("low stock scan failed")
		}
		for _, lot := range lots {
			s.logger.Warn().
				Int64("lot_id", lot.ID).
				Int64("medicine_id", lot.MedicineID).
				Str("medicine", lot.MedicineName).
				Int("quantity", lot.CurrentQuantity).
				Msg("lot below low stock threshold")
		}
		result.LowStock = len(lots)
	}

	lots, err := s.scanner.ExpiringSoon(ctx, s.expiringWithinDays)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry scan failed")
	}
	for _, lot := range lots {
		s.logger.Warn().
			Int64("lot_id", lot.ID).
			Str("medicine", lot.MedicineName).
			Str("batch", lot.BatchNumber).
			Int("days_until_expiry", lot.DaysUntilExpiry).
			Msg("lot expiring soon")
	}
	result.Expiring = len(lots)

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("low_stock", result.LowStock).
		Int("expiring", result.Expiring).
		Msg("stock scan completed")

	return result
}
