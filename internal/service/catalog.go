package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"optikpos/backend/internal/domain"
	"optikpos/backend/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Service) ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 {
		query.Limit = defaultPageSize
	}
	if query.Limit > maxPageSize {
		query.Limit = maxPageSize
	}
	if query.Page-1 > math.MaxInt/query.Limit {
		return nil, fmt.Errorf("%w: page is out of range", store.ErrValidation)
	}
	query.Search = strings.TrimSpace(query.Search)
	return s.repo.ListProducts(ctx, query)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.SKU = normalizeSKU(req.SKU)
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}
	category, err := domain.ParseProductCategory(req.Category)
	if err != nil {
		return domain.Product{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	if _, err := s.repo.GetProductBySKU(ctx, req.SKU); err == nil {
		return domain.Product{}, fmt.Errorf("%w: SKU already exists", store.ErrDuplicateKey)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Product{}, err
	}

	reorder := domain.DefaultReorderLevel
	if req.ReorderLevel != nil {
		reorder = *req.ReorderLevel
	}
	now := s.now()
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:         req.Name,
		SKU:          req.SKU,
		Category:     category,
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		StockQty:     req.StockQty,
		ReorderLevel: reorder,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return domain.Product{}, fmt.Errorf("%w: SKU already exists", store.ErrDuplicateKey)
		}
		return domain.Product{}, err
	}

	s.logger.Info("product created", slog.String("sku", created.SKU), slog.Int("stockQty", created.StockQty))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}
	existing, err := s.repo.GetProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name must not be blank", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.SKU != nil {
		sku := normalizeSKU(*req.SKU)
		if sku == "" {
			return domain.Product{}, fmt.Errorf("%w: sku must not be blank", store.ErrValidation)
		}
		if sku != existing.SKU {
			if _, err := s.repo.GetProductBySKU(ctx, sku); err == nil {
				return domain.Product{}, fmt.Errorf("%w: SKU already exists", store.ErrDuplicateKey)
			} else if !errors.Is(err, store.ErrNotFound) {
				return domain.Product{}, err
			}
		}
		updated.SKU = sku
	}
	if req.Category != nil {
		category, err := domain.ParseProductCategory(*req.Category)
		if err != nil {
			return domain.Product{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
		updated.Category = category
	}
	if req.CostPrice != nil {
		updated.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		updated.SellingPrice = *req.SellingPrice
	}
	if req.ReorderLevel != nil {
		updated.ReorderLevel = *req.ReorderLevel
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return domain.Product{}, fmt.Errorf("%w: SKU already exists", store.ErrDuplicateKey)
		}
		return domain.Product{}, err
	}
	return *saved, nil
}

// AdjustStock applies a signed quantity change. A change that would leave the
// product below zero is rejected with ErrInsufficientStock and nothing is written.
func (s *Service) AdjustStock(ctx context.Context, id string, req domain.StockAdjustRequest) (domain.Product, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}
	updated, err := s.repo.AdjustStock(ctx, strings.TrimSpace(id), req.QtyChange)
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("stock adjusted",
		slog.String("sku", updated.SKU),
		slog.Int("qtyChange", req.QtyChange),
		slog.Int("stockQty", updated.StockQty),
	)
	if req.QtyChange < 0 {
		s.notifyLowStock(ctx, []domain.Product{*updated})
	}
	return *updated, nil
}

func normalizeSKU(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
