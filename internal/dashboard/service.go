package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
)

// API abstracts the endpoints the dashboard reads.
type API interface {
	ListProducts(ctx context.Context) ([]catalogapi.Product, error)
	LowStock(ctx context.Context) ([]catalogapi.Product, error)
	Stats(ctx context.Context) (catalogapi.Stats, error)
}

// Service assembles the statistics panel, the low-stock report and the sync action.
type Service struct {
	api    API
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(api API, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, logger: logger, now: time.Now}
}

// Stats fetches the statistics. Nothing is cached; every call reflects the server state.
func (s *Service) Stats(ctx context.Context) (StatsView, error) {
	stats, err := s.api.Stats(ctx)
	if err != nil {
		return StatsView{}, fmt.Errorf("dashboard: stats: %w", err)
	}
	return s.statsView(ctx, stats)
}

func (s *Service) statsView(ctx context.Context, stats catalogapi.Stats) (StatsView, error) {
	lowStock := 0
	if stats.LowStockCount == nil {
		products, err := s.api.LowStock(ctx)
		if err != nil {
			return StatsView{}, fmt.Errorf("dashboard: low stock count: %w", err)
		}
		lowStock = len(NewLowStockReport(products, time.Time{}).Items)
	}
	return NewStatsView(stats, lowStock, s.now()), nil
}

// LowStock builds the low-stock report.
func (s *Service) LowStock(ctx context.Context) (LowStockReport, error) {
	products, err := s.api.LowStock(ctx)
	if err != nil {
		return LowStockReport{}, fmt.Errorf("dashboard: low stock: %w", err)
	}
	return NewLowStockReport(products, s.now()), nil
}

// SyncResult is the freshly fetched product list and statistics.
type SyncResult struct {
	Products []catalogapi.Product
	Stats    StatsView
}

// Sync re-fetches the product list and the statistics concurrently. Both must succeed; a
// single failure fails the whole sync.
func (s *Service) Sync(ctx context.Context) (SyncResult, error) {
	var (
		products []catalogapi.Product
		stats    catalogapi.Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.api.ListProducts(gctx)
		if err != nil {
			return fmt.Errorf("products: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stats, err = s.api.Stats(gctx)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("sync failed", slog.Any("error", err))
		return SyncResult{}, fmt.Errorf("dashboard: sync: %w", err)
	}
	view, err := s.statsView(ctx, stats)
	if err != nil {
		return SyncResult{}, fmt.Errorf("dashboard: sync: %w", err)
	}
	s.logger.Info("catalog synced", slog.Int("products", len(products)))
	return SyncResult{Products: products, Stats: view}, nil
}
