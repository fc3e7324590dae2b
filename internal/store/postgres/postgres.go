package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"optikpos/backend/internal/domain"
	"optikpos/backend/internal/invoice"
	"optikpos/backend/internal/store"
	"optikpos/backend/internal/xid"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables and indexes. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return storageErr("migrate", err)
	}
	return nil
}

// withTx runs fn in a transaction, rolling back unless fn and the commit succeed.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit tx", err)
	}
	return nil
}

const productColumns = `id, name, sku, category, cost_price, selling_price, stock_qty, reorder_level, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var category string
	if err := row.Scan(&p.ID, &p.Name, &p.SKU, &category, &p.CostPrice, &p.SellingPrice,
		&p.StockQty, &p.ReorderLevel, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Category = domain.ProductCategory(category)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	where := []string{"is_active = true"}
	args := make([]any, 0, 4)
	if query.Category != "" {
		args = append(args, string(query.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if query.Search != "" {
		args = append(args, "%"+escapeLike(query.Search)+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	args = append(args, query.Limit, (query.Page-1)*query.Limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM products
		WHERE %s
		ORDER BY created_at DESC, name ASC
		LIMIT $%d OFFSET $%d
	`, productColumns, strings.Join(where, " AND "), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, storageErr("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, query.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, storageErr("scan product", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list products", err)
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.ID, product.Name, product.SKU, string(product.Category), product.CostPrice, product.SellingPrice,
		product.StockQty, product.ReorderLevel, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, storageErr("create product", err)
	}
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	return s.getProduct(ctx, "id", id)
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return s.getProduct(ctx, "sku", sku)
}

func (s *Store) getProduct(ctx context.Context, column string, value string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE `+column+` = $1`, value)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr("get product", err)
	}
	return product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, sku = $3, category = $4, cost_price = $5, selling_price = $6,
			reorder_level = $7, is_active = $8, updated_at = $9
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.SKU, string(product.Category), product.CostPrice, product.SellingPrice,
		product.ReorderLevel, product.Active, product.UpdatedAt)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, storageErr("update product", err)
	}
	return updated, nil
}

// AdjustStock is a single conditional UPDATE so concurrent decrements never
// drive stock below zero.
func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock_qty = stock_qty + $2, updated_at = now()
		WHERE id = $1 AND stock_qty + $2 >= 0
		RETURNING `+productColumns, id, delta)
	updated, err := scanProduct(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, storageErr("adjust stock", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, storageErr("adjust stock", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrInsufficientStock
}

const orderColumns = `id, order_number, customer_name, color, order_date, delivery_date, subtotal, discount, total,
	paid_amount, balance_amount, payment_status, created_by, created_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o        domain.Order
		delivery sql.NullTime
		status   string
	)
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.Color, &o.OrderDate, &delivery,
		&o.Subtotal, &o.Discount, &o.Total, &o.PaidAmount, &o.BalanceAmount, &status, &o.CreatedBy, &o.CreatedAt); err != nil {
		return nil, err
	}
	if delivery.Valid {
		d := delivery.Time.UTC()
		o.DeliveryDate = &d
	}
	o.PaymentStatus = domain.PaymentStatus(status)
	o.OrderDate = o.OrderDate.UTC()
	o.CreatedAt = o.CreatedAt.UTC()
	o.Items = []domain.OrderItem{}
	return &o, nil
}

// CreateOrder writes the order, its lines and the year's counter high-water
// mark in one transaction.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		order.ID = xid.New("")
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`, order.ID, order.OrderNumber, order.CustomerName, order.Color, order.OrderDate, nullTime(order.DeliveryDate),
			order.Subtotal, order.Discount, order.Total, order.PaidAmount, order.BalanceAmount,
			string(order.PaymentStatus), order.CreatedBy, order.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicateKey
			}
			return storageErr("insert order", err)
		}

		for i, item := range order.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, line_no, product_id, name, qty, price)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, order.ID, i+1, item.ProductID, item.Name, item.Qty, item.Price); err != nil {
				return storageErr("insert order item", err)
			}
		}

		if year, seq, err := invoice.Parse(order.OrderNumber); err == nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_counters (year, seq) VALUES ($1, $2)
				ON CONFLICT (year) DO UPDATE SET seq = GREATEST(order_counters.seq, EXCLUDED.seq)
			`, year, seq); err != nil {
				return storageErr("sync order counter", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created := order
	created.Items = append([]domain.OrderItem(nil), order.Items...)
	return &created, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr("get order", err)
	}
	if err := s.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) LatestOrderNumber(ctx context.Context) (string, error) {
	var number string
	err := s.db.QueryRowContext(ctx, `
		SELECT order_number
		FROM orders
		ORDER BY created_at DESC, order_number DESC
		LIMIT 1
	`).Scan(&number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", storageErr("latest order number", err)
	}
	return number, nil
}

func (s *Store) ListOrders(ctx context.Context, rng domain.DateRange) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1::timestamptz IS NULL OR order_date >= $1)
			AND ($2::timestamptz IS NULL OR order_date <= $2)
		ORDER BY created_at DESC, order_number DESC
	`, nullTime(rng.From), nullTime(rng.To))
	if err != nil {
		return nil, storageErr("list orders", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0, 64)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, storageErr("scan order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list orders", err)
	}
	_ = rows.Close()

	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	result := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, *order)
	}
	return result, nil
}

func (s *Store) OrderTotals(ctx context.Context, rng domain.DateRange) ([]domain.OrderTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_date, total
		FROM orders
		WHERE ($1::timestamptz IS NULL OR order_date >= $1)
			AND ($2::timestamptz IS NULL OR order_date <= $2)
	`, nullTime(rng.From), nullTime(rng.To))
	if err != nil {
		return nil, storageErr("order totals", err)
	}
	defer rows.Close()

	totals := make([]domain.OrderTotal, 0, 64)
	for rows.Next() {
		var t domain.OrderTotal
		if err := rows.Scan(&t.OrderDate, &t.Total); err != nil {
			return nil, storageErr("scan order total", err)
		}
		t.OrderDate = t.OrderDate.UTC()
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("order totals", err)
	}
	return totals, nil
}

func (s *Store) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	byID := make(map[string]*domain.Order, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
		byID[order.ID] = order
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, qty, price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no
	`, ids)
	if err != nil {
		return storageErr("list order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Qty, &item.Price); err != nil {
			return storageErr("scan order item", err)
		}
		if order, ok := byID[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("list order items", err)
	}
	return nil
}

func (s *Store) SalesSummary(ctx context.Context, rng domain.DateRange) (domain.SalesSummary, error) {
	var summary domain.SalesSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0), COALESCE(SUM(paid_amount), 0), COALESCE(SUM(balance_amount), 0), COUNT(*)
		FROM orders
		WHERE ($1::timestamptz IS NULL OR order_date >= $1)
			AND ($2::timestamptz IS NULL OR order_date <= $2)
	`, nullTime(rng.From), nullTime(rng.To)).Scan(&summary.TotalSales, &summary.TotalPaid, &summary.TotalBalance, &summary.OrdersCount)
	if err != nil {
		return domain.SalesSummary{}, storageErr("sales summary", err)
	}
	return summary, nil
}

func (s *Store) NextOrderSequence(ctx context.Context, year int, seed int) (int, error) {
	var seq int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO order_counters (year, seq) VALUES ($1, $2 + 1)
		ON CONFLICT (year) DO UPDATE SET seq = order_counters.seq + 1
		RETURNING seq
	`, year, seed).Scan(&seq)
	if err != nil {
		return 0, storageErr("next order sequence", err)
	}
	return seq, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, title, amount, category, expense_date, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, expense.ID, expense.Title, expense.Amount, string(expense.Category), expense.ExpenseDate, expense.CreatedBy, expense.CreatedAt)
	if err != nil {
		return nil, storageErr("create expense", err)
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, rng domain.DateRange) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, amount, category, expense_date, created_by, created_at
		FROM expenses
		WHERE ($1::timestamptz IS NULL OR expense_date >= $1)
			AND ($2::timestamptz IS NULL OR expense_date <= $2)
		ORDER BY expense_date DESC, created_at DESC
	`, nullTime(rng.From), nullTime(rng.To))
	if err != nil {
		return nil, storageErr("list expenses", err)
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var e domain.Expense
		var category string
		if err := rows.Scan(&e.ID, &e.Title, &e.Amount, &category, &e.ExpenseDate, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, storageErr("scan expense", err)
		}
		e.Category = domain.ExpenseCategory(category)
		e.ExpenseDate = e.ExpenseDate.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list expenses", err)
	}
	return expenses, nil
}

func (s *Store) ExpenseSummary(ctx context.Context, rng domain.DateRange) (domain.ExpenseSummary, error) {
	var summary domain.ExpenseSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE ($1::timestamptz IS NULL OR expense_date >= $1)
			AND ($2::timestamptz IS NULL OR expense_date <= $2)
	`, nullTime(rng.From), nullTime(rng.To)).Scan(&summary.TotalExpense)
	if err != nil {
		return domain.ExpenseSummary{}, storageErr("expense summary", err)
	}
	return summary, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.ID == "" {
		user.ID = xid.New("")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.Name, strings.ToLower(strings.TrimSpace(user.Email)), user.PasswordHash, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		return storageErr("create user", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	return s.getUser(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	return s.getUser(ctx, "id", id)
}

func (s *Store) getUser(ctx context.Context, column string, value string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, is_active, created_at
		FROM users
		WHERE `+column+` = $1
	`, value).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr("get user", err)
	}
	return &u, nil
}

func (s *Store) CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	if token.ID == "" {
		token.ID = xid.New("")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.Revoked, token.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		return storageErr("create refresh token", err)
	}
	return nil
}

func (s *Store) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := s.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = true
		WHERE token_hash = $1 AND revoked = false AND expires_at > $2
		RETURNING id, user_id, token_hash, expires_at, revoked, created_at
	`, tokenHash, now).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr("consume refresh token", err)
	}
	return &t, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", store.ErrStorage, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func escapeLike(val string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(val)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}
