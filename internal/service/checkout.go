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
	"optikpos/backend/internal/xid"
)

// Checkout records a sale for actorID.
//
// Lines are handled strictly in request order: each product is looked up,
// checked for stock and decremented before the next line is read. Lines are
// not rolled back. If line k fails, lines before k stay decremented and no
// order is written. The decrement is conditional on the stock still covering
// qty, so concurrent checkouts cannot oversell.
func (s *Service) Checkout(ctx context.Context, actorID string, req domain.CheckoutRequest) (domain.Order, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.Order{}, err
	}
	subtotal, total, balance, err := orderAmounts(req)
	if err != nil {
		return domain.Order{}, err
	}

	lines := make([]domain.OrderItem, 0, len(req.Items))
	touched := make([]domain.Product, 0, len(req.Items))

	for _, item := range req.Items {
		product, err := s.repo.GetProductByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Order{}, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
			}
			return domain.Order{}, err
		}
		if product.StockQty < item.Qty {
			return domain.Order{}, insufficientStock(product.Name)
		}

		updated, err := s.repo.AdjustStock(ctx, product.ID, -item.Qty)
		if err != nil {
			if errors.Is(err, store.ErrInsufficientStock) {
				return domain.Order{}, insufficientStock(product.Name)
			}
			return domain.Order{}, err
		}
		touched = append(touched, *updated)

		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = product.Name
		}
		lines = append(lines, domain.OrderItem{
			ProductID: product.ID,
			Name:      name,
			Qty:       item.Qty,
			Price:     item.Price,
		})
	}

	number, err := s.invoices.Next(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	customer := strings.TrimSpace(req.CustomerName)
	if customer == "" {
		customer = domain.DefaultCustomerName
	}
	now := s.now()
	order := domain.Order{
		ID:            xid.New(""),
		OrderNumber:   number,
		CustomerName:  customer,
		Color:         strings.TrimSpace(req.Color),
		OrderDate:     now,
		DeliveryDate:  req.DeliveryDate,
		Items:         lines,
		Subtotal:      subtotal,
		Discount:      req.Discount,
		Total:         total,
		PaidAmount:    req.PaidAmount,
		BalanceAmount: balance,
		PaymentStatus: domain.DerivePaymentStatus(balance, req.PaidAmount),
		CreatedBy:     actorID,
		CreatedAt:     now,
	}

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.Info("order created",
		slog.String("orderNumber", created.OrderNumber),
		slog.Int64("total", created.Total),
		slog.String("paymentStatus", string(created.PaymentStatus)),
		slog.Int("lines", len(created.Items)),
	)
	s.invalidateDashboard(ctx)
	s.notifyLowStock(ctx, touched)

	return *created, nil
}

// orderAmounts computes subtotal, total and balance for req, rejecting any
// request whose amounts do not fit in int64. It runs before stock is touched.
func orderAmounts(req domain.CheckoutRequest) (subtotal, total, balance int64, err error) {
	for i, item := range req.Items {
		qty := int64(item.Qty)
		if item.Price > 0 && qty > math.MaxInt64/item.Price {
			return 0, 0, 0, fmt.Errorf("%w: items[%d] amount is too large", store.ErrValidation, i)
		}
		line := qty * item.Price
		if subtotal > math.MaxInt64-line {
			return 0, 0, 0, fmt.Errorf("%w: subtotal is too large", store.ErrValidation)
		}
		subtotal += line
	}
	// subtotal and discount are both non-negative, so the difference fits.
	total = subtotal - req.Discount
	if total < math.MinInt64+req.PaidAmount {
		return 0, 0, 0, fmt.Errorf("%w: paidAmount is too large", store.ErrValidation)
	}
	balance = total - req.PaidAmount
	return subtotal, total, balance, nil
}

func insufficientStock(name string) error {
	return fmt.Errorf("%w for %s", store.ErrInsufficientStock, name)
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// ListOrders returns orders whose order date lies in rng, newest first.
func (s *Service) ListOrders(ctx context.Context, rng domain.DateRange) ([]domain.Order, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}
	return s.repo.ListOrders(ctx, rng)
}
