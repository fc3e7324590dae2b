package store

import (
	"context"
	"errors"
	"time"

	"optikpos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrInvalidPeriod     = errors.New("invalid period. Use day, week, month, or year")
	ErrValidation        = errors.New("validation failed")
	ErrStorage           = errors.New("storage failure")
)

type ProductStore interface {
	ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	// UpdateProduct replaces the descriptive fields. Stock is only changed through AdjustStock.
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// AdjustStock applies delta to the stock quantity only if the result stays
	// non-negative, returning ErrInsufficientStock otherwise.
	AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error)
}

type OrderStore interface {
	// CreateOrder fails with ErrDuplicateKey when the order number is taken.
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	// LatestOrderNumber returns the number of the most recently created order.
	LatestOrderNumber(ctx context.Context) (string, error)
	ListOrders(ctx context.Context, rng domain.DateRange) ([]domain.Order, error)
	// OrderTotals lists the date and total of every order in rng without
	// loading line items.
	OrderTotals(ctx context.Context, rng domain.DateRange) ([]domain.OrderTotal, error)
	SalesSummary(ctx context.Context, rng domain.DateRange) (domain.SalesSummary, error)
}

type ExpenseStore interface {
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, rng domain.DateRange) ([]domain.Expense, error)
	ExpenseSummary(ctx context.Context, rng domain.DateRange) (domain.ExpenseSummary, error)
}

type CounterStore interface {
	// NextOrderSequence atomically increments and returns the counter for year.
	// A missing counter is created starting from seed.
	NextOrderSequence(ctx context.Context, year int, seed int) (int, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error
	// ConsumeRefreshToken revokes an unexpired, unrevoked token and returns it.
	ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error)
}

type Repository interface {
	ProductStore
	OrderStore
	ExpenseStore
	CounterStore
	UserStore
}
