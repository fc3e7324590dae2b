package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"optikpos/backend/internal/domain"
	"optikpos/backend/internal/report"
	"optikpos/backend/internal/store"
)

// dashboardBuildTimeout bounds a shared build once it is detached from the
// request that started it.
const dashboardBuildTimeout = 30 * time.Second

// Dashboard returns the bucketed sales, expense and profit series for period.
// An empty period means day. Identical concurrent builds share one load; the
// load runs on its own context, so a caller that goes away only abandons its
// own wait.
func (s *Service) Dashboard(ctx context.Context, rawPeriod string) (domain.BucketSeries, error) {
	if rawPeriod == "" {
		rawPeriod = string(domain.PeriodDay)
	}
	period, ok := domain.ParsePeriod(rawPeriod)
	if !ok {
		return domain.BucketSeries{}, store.ErrInvalidPeriod
	}
	window, err := report.NewWindow(period, s.now())
	if err != nil {
		return domain.BucketSeries{}, err
	}

	cached, version, hit, err := s.dashboard.Get(ctx, period, window.Anchor())
	if err != nil {
		s.logger.Warn("dashboard cache read failed", slog.String("period", string(period)), slog.Any("error", err))
	} else if hit {
		return *cached, nil
	}

	key := fmt.Sprintf("%s|%s|%d", period, window.Anchor(), version)
	resultCh := s.builds.DoChan(key, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dashboardBuildTimeout)
		defer cancel()
		return s.buildDashboard(buildCtx, window, version)
	})
	select {
	case <-ctx.Done():
		return domain.BucketSeries{}, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return domain.BucketSeries{}, res.Err
		}
		return res.Val.(domain.BucketSeries), nil
	}
}

// buildDashboard stores the series under the cache version observed before the
// load started. A checkout that bumps the version mid-build leaves the result
// under the old version, where no reader will look for it.
func (s *Service) buildDashboard(ctx context.Context, window report.Window, version int64) (domain.BucketSeries, error) {
	sales, err := s.repo.OrderTotals(ctx, window.Range())
	if err != nil {
		return domain.BucketSeries{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, window.Range())
	if err != nil {
		return domain.BucketSeries{}, err
	}

	series := report.Aggregate(window, sales, expenses)
	if err := s.dashboard.Set(ctx, window.Period, window.Anchor(), version, &series, s.cacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", slog.String("period", string(window.Period)), slog.Any("error", err))
	}
	return series, nil
}

func (s *Service) SalesReport(ctx context.Context, rng domain.DateRange) (domain.SalesSummary, error) {
	if err := validateRange(rng); err != nil {
		return domain.SalesSummary{}, err
	}
	return s.repo.SalesSummary(ctx, rng)
}

func (s *Service) ExpenseReport(ctx context.Context, rng domain.DateRange) (domain.ExpenseSummary, error) {
	if err := validateRange(rng); err != nil {
		return domain.ExpenseSummary{}, err
	}
	return s.repo.ExpenseSummary(ctx, rng)
}

// ProfitReport is sales minus expenses over the same range.
func (s *Service) ProfitReport(ctx context.Context, rng domain.DateRange) (domain.ProfitSummary, error) {
	sales, err := s.SalesReport(ctx, rng)
	if err != nil {
		return domain.ProfitSummary{}, err
	}
	expenses, err := s.ExpenseReport(ctx, rng)
	if err != nil {
		return domain.ProfitSummary{}, err
	}
	return domain.ProfitSummary{
		TotalSales:   sales.TotalSales,
		TotalExpense: expenses.TotalExpense,
		Profit:       sales.TotalSales - expenses.TotalExpense,
	}, nil
}
