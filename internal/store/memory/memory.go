package memory

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"optikpos/backend/internal/domain"
	"optikpos/backend/internal/store"
	"optikpos/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	products      map[string]domain.Product
	productBySKU  map[string]string
	orders        []*domain.Order
	ordersByID    map[string]*domain.Order
	orderNumbers  map[string]struct{}
	expenses      []domain.Expense
	counters      map[int]int
	usersByID     map[string]domain.UserAccount
	userByEmail   map[string]string
	refreshTokens map[string]domain.RefreshToken
}

// New returns an empty store.
func New() *Store {
	return &Store{
		products:      make(map[string]domain.Product),
		productBySKU:  make(map[string]string),
		orders:        make([]*domain.Order, 0, 64),
		ordersByID:    make(map[string]*domain.Order),
		orderNumbers:  make(map[string]struct{}),
		expenses:      make([]domain.Expense, 0, 32),
		counters:      make(map[int]int),
		usersByID:     make(map[string]domain.UserAccount),
		userByEmail:   make(map[string]string),
		refreshTokens: make(map[string]domain.RefreshToken),
	}
}

// NewSeeded returns a store with a demo catalog and an admin and a staff account.
// Passwords come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD, falling back
// to dev defaults with a warning.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	catalog := []domain.Product{
		{Name: "Rayban Classic Frame", SKU: "FRM-RB-001", Category: domain.CategoryFrame, CostPrice: 2500, SellingPrice: 4500, StockQty: 12},
		{Name: "Titanium Half Rim", SKU: "FRM-TI-002", Category: domain.CategoryFrame, CostPrice: 3200, SellingPrice: 6000, StockQty: 8},
		{Name: "Single Vision Lens 1.56", SKU: "LNS-SV-156", Category: domain.CategoryLens, CostPrice: 800, SellingPrice: 1800, StockQty: 40},
		{Name: "Progressive Lens 1.67", SKU: "LNS-PG-167", Category: domain.CategoryLens, CostPrice: 4200, SellingPrice: 8200, StockQty: 10},
		{Name: "Reading Glasses +1.5", SKU: "GLS-RD-150", Category: domain.CategoryGlasses, CostPrice: 600, SellingPrice: 1500, StockQty: 25},
		{Name: "BTE Hearing Aid", SKU: "HRA-BTE-01", Category: domain.CategoryHearingAid, CostPrice: 18000, SellingPrice: 32000, StockQty: 4},
		{Name: "Lens Solution 360ml", SKU: "LWT-360", Category: domain.CategoryLensWater, CostPrice: 300, SellingPrice: 650, StockQty: 60},
		{Name: "Microfiber Cloth", SKU: "ACC-CLOTH", Category: domain.CategoryAccessory, CostPrice: 50, SellingPrice: 150, StockQty: 200},
		{Name: "Polarized Aviator", SKU: "SUN-AV-01", Category: domain.CategorySunglass, CostPrice: 2000, SellingPrice: 3900, StockQty: 15},
		{Name: "Eye Test", SKU: "EYE-TEST", Category: domain.CategoryEyeTesting, CostPrice: 0, SellingPrice: 500, StockQty: 9999},
	}
	for _, p := range catalog {
		p.ID = xid.New("")
		p.ReorderLevel = domain.DefaultReorderLevel
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.productBySKU[p.SKU] = p.ID
	}

	for _, u := range seedUsers(now) {
		s.usersByID[u.ID] = u
		s.userByEmail[u.Email] = u.ID
	}
	return s
}

func seedUsers(now time.Time) []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin12345")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff12345")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		slog.Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct {
		name     string
		email    string
		password string
		role     string
	}{
		{"Admin", "admin@optikpos.local", adminPwd, domain.RoleAdmin},
		{"Staff", "staff@optikpos.local", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("hash seed password", slog.String("email", u.email), slog.Any("error", err))
			continue
		}
		users = append(users, domain.UserAccount{
			ID:           xid.New(""),
			Name:         u.name,
			Email:        u.email,
			PasswordHash: string(hash),
			Role:         u.role,
			Active:       true,
			CreatedAt:    now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(query.Search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if query.Category != "" && p.Category != query.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	if query.Page < 1 || query.Limit < 1 || query.Page-1 > len(products)/query.Limit {
		return []domain.Product{}, nil
	}
	offset := (query.Page - 1) * query.Limit
	if offset >= len(products) {
		return []domain.Product{}, nil
	}
	end := min(offset+query.Limit, len(products))
	return products[offset:end], nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productBySKU[product.SKU]; exists {
		return nil, store.ErrDuplicateKey
	}
	if product.ID == "" {
		product.ID = xid.New("")
	}
	s.products[product.ID] = product
	s.productBySKU[product.SKU] = product.ID
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.productBySKU[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	product := s.products[id]
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.SKU != existing.SKU {
		if _, taken := s.productBySKU[product.SKU]; taken {
			return nil, store.ErrDuplicateKey
		}
		delete(s.productBySKU, existing.SKU)
		s.productBySKU[product.SKU] = product.ID
	}
	product.StockQty = existing.StockQty
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.StockQty+delta < 0 {
		return nil, store.ErrInsufficientStock
	}
	product.StockQty += delta
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	return &product, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.orderNumbers[order.OrderNumber]; taken {
		return nil, store.ErrDuplicateKey
	}
	if order.ID == "" {
		order.ID = xid.New("")
	}
	saved := cloneOrder(&order)
	s.orders = append(s.orders, saved)
	s.ordersByID[saved.ID] = saved
	s.orderNumbers[saved.OrderNumber] = struct{}{}
	return cloneOrder(saved), nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.ordersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) LatestOrderNumber(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Order
	for _, order := range s.orders {
		if latest == nil || !order.CreatedAt.Before(latest.CreatedAt) {
			latest = order
		}
	}
	if latest == nil {
		return "", store.ErrNotFound
	}
	return latest.OrderNumber, nil
}

func (s *Store) ListOrders(_ context.Context, rng domain.DateRange) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for i := len(s.orders) - 1; i >= 0; i-- {
		order := s.orders[i]
		if !rng.Contains(order.OrderDate) {
			continue
		}
		orders = append(orders, *cloneOrder(order))
	}
	slices.SortStableFunc(orders, func(a, b domain.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return orders, nil
}

func (s *Store) OrderTotals(_ context.Context, rng domain.DateRange) ([]domain.OrderTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make([]domain.OrderTotal, 0, len(s.orders))
	for _, order := range s.orders {
		if rng.Contains(order.OrderDate) {
			totals = append(totals, domain.OrderTotal{OrderDate: order.OrderDate, Total: order.Total})
		}
	}
	return totals, nil
}

func (s *Store) SalesSummary(_ context.Context, rng domain.DateRange) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary domain.SalesSummary
	for _, order := range s.orders {
		if !rng.Contains(order.OrderDate) {
			continue
		}
		summary.TotalSales += order.Total
		summary.TotalPaid += order.PaidAmount
		summary.TotalBalance += order.BalanceAmount
		summary.OrdersCount++
	}
	return summary, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("")
	}
	s.expenses = append(s.expenses, expense)
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, rng domain.DateRange) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, len(s.expenses))
	for _, expense := range s.expenses {
		if rng.Contains(expense.ExpenseDate) {
			expenses = append(expenses, expense)
		}
	}
	slices.SortStableFunc(expenses, func(a, b domain.Expense) int {
		return b.ExpenseDate.Compare(a.ExpenseDate)
	})
	return expenses, nil
}

func (s *Store) ExpenseSummary(_ context.Context, rng domain.DateRange) (domain.ExpenseSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary domain.ExpenseSummary
	for _, expense := range s.expenses {
		if rng.Contains(expense.ExpenseDate) {
			summary.TotalExpense += expense.Amount
		}
	}
	return summary, nil
}

func (s *Store) NextOrderSequence(_ context.Context, year int, seed int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.counters[year]
	if !exists {
		current = seed
	}
	current++
	s.counters[year] = current
	return current, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if _, exists := s.userByEmail[email]; exists {
		return store.ErrDuplicateKey
	}
	if user.ID == "" {
		user.ID = xid.New("")
	}
	user.Email = email
	s.usersByID[user.ID] = user
	s.userByEmail[email] = user.ID
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.userByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !exists {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) CreateRefreshToken(_ context.Context, token domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.refreshTokens[token.TokenHash]; exists {
		return store.ErrDuplicateKey
	}
	s.refreshTokens[token.TokenHash] = token
	return nil
}

func (s *Store) ConsumeRefreshToken(_ context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, exists := s.refreshTokens[tokenHash]
	if !exists || token.Revoked || !now.Before(token.ExpiresAt) {
		return nil, store.ErrNotFound
	}
	token.Revoked = true
	s.refreshTokens[tokenHash] = token
	return &token, nil
}

func cloneOrder(src *domain.Order) *domain.Order {
	dst := *src
	dst.Items = slices.Clone(src.Items)
	if src.DeliveryDate != nil {
		d := *src.DeliveryDate
		dst.DeliveryDate = &d
	}
	return &dst
}
