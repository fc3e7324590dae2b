package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"optikpos/backend/internal/cache"
	"optikpos/backend/internal/domain"
	"optikpos/backend/internal/invoice"
	"optikpos/backend/internal/jobs"
	"optikpos/backend/internal/store"
)

type Options struct {
	// Sequencer defaults to counters kept in the repository.
	Sequencer      invoice.Sequencer
	DashboardCache cache.DashboardCache
	CacheTTL       time.Duration
	LowStock       jobs.LowStockNotifier
	Logger         *slog.Logger
	Now            func() time.Time
}

type Service struct {
	repo      store.Repository
	invoices  *invoice.Generator
	dashboard cache.DashboardCache
	cacheTTL  time.Duration
	lowStock  jobs.LowStockNotifier
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
	builds    singleflight.Group
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sequencer == nil {
		opts.Sequencer = invoice.NewStoreSequencer(repo)
	}
	if opts.DashboardCache == nil {
		opts.DashboardCache = cache.NoopDashboardCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.LowStock == nil {
		opts.LowStock = jobs.NoopNotifier{}
	}

	return &Service{
		repo:      repo,
		invoices:  invoice.NewGenerator(opts.Sequencer, repo, opts.Now),
		dashboard: opts.DashboardCache,
		cacheTTL:  opts.CacheTTL,
		lowStock:  opts.LowStock,
		validate:  newValidator(),
		logger:    opts.Logger.With(slog.String("component", "service")),
		now:       opts.Now,
	}
}

// NextInvoiceNumber consumes and returns the next order number.
func (s *Service) NextInvoiceNumber(ctx context.Context) (string, error) {
	return s.invoices.Next(ctx)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct reports tag violations as ErrValidation, naming each field by
// its JSON path, e.g. "items[1].qty must be gte 1".
func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += " " + fe.Param()
		}
		problems = append(problems, fmt.Sprintf("%s must be %s", path, rule))
	}
	return fmt.Errorf("%w: %s", store.ErrValidation, strings.Join(problems, "; "))
}

func validateRange(rng domain.DateRange) error {
	if rng.From != nil && rng.To != nil && rng.From.After(*rng.To) {
		return fmt.Errorf("%w: from must not be after to", store.ErrValidation)
	}
	return nil
}

// invalidateDashboard drops cached series after writes that change totals.
func (s *Service) invalidateDashboard(ctx context.Context) {
	if err := s.dashboard.Bump(ctx); err != nil {
		s.logger.Warn("dashboard cache bump failed", slog.Any("error", err))
	}
}

// notifyLowStock queues an alert for each product at or below its reorder
// level. Failures are logged; the write that triggered them already succeeded.
func (s *Service) notifyLowStock(ctx context.Context, products []domain.Product) {
	seen := make(map[string]struct{}, len(products))
	for i := len(products) - 1; i >= 0; i-- {
		product := products[i]
		if _, dup := seen[product.ID]; dup {
			continue
		}
		seen[product.ID] = struct{}{}
		if !product.LowStock() {
			continue
		}
		if err := s.lowStock.NotifyLowStock(ctx, product); err != nil {
			s.logger.Warn("low stock notification failed",
				slog.String("sku", product.SKU),
				slog.Any("error", err),
			)
		}
	}
}
