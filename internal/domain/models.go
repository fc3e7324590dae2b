package domain

import (
	"fmt"
	"strings"
	"time"
)

// Money amounts are integer minor units of the shop currency.

type ProductCategory string

const (
	CategoryFrame      ProductCategory = "FRAME"
	CategoryLens       ProductCategory = "LENS"
	CategoryGlasses    ProductCategory = "GLASSES"
	CategoryHearingAid ProductCategory = "HEARING_AID"
	CategoryLensWater  ProductCategory = "LENS_WATER"
	CategoryAccessory  ProductCategory = "ACCESSORY"
	CategorySunglass   ProductCategory = "SUNGLASS"
	CategoryEyeTesting ProductCategory = "EYE_TESTING"
)

func ParseProductCategory(raw string) (ProductCategory, error) {
	switch c := ProductCategory(strings.ToUpper(strings.TrimSpace(raw))); c {
	case CategoryFrame, CategoryLens, CategoryGlasses, CategoryHearingAid,
		CategoryLensWater, CategoryAccessory, CategorySunglass, CategoryEyeTesting:
		return c, nil
	default:
		return "", fmt.Errorf("unknown product category %q", raw)
	}
}

type ExpenseCategory string

const (
	ExpenseRent        ExpenseCategory = "RENT"
	ExpenseElectricity ExpenseCategory = "ELECTRICITY"
	ExpenseInternet    ExpenseCategory = "INTERNET"
	ExpensePurchase    ExpenseCategory = "PURCHASE"
	ExpenseSalary      ExpenseCategory = "SALARY"
	ExpenseMaintenance ExpenseCategory = "MAINTENANCE"
	ExpenseOther       ExpenseCategory = "OTHER"
)

func ParseExpenseCategory(raw string) (ExpenseCategory, error) {
	switch c := ExpenseCategory(strings.ToUpper(strings.TrimSpace(raw))); c {
	case ExpenseRent, ExpenseElectricity, ExpenseInternet, ExpensePurchase,
		ExpenseSalary, ExpenseMaintenance, ExpenseOther:
		return c, nil
	default:
		return "", fmt.Errorf("unknown expense category %q", raw)
	}
}

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "PAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentUnpaid  PaymentStatus = "UNPAID"
)

// DerivePaymentStatus classifies settlement from the outstanding balance and the amount paid.
func DerivePaymentStatus(balance int64, paid int64) PaymentStatus {
	switch {
	case balance <= 0:
		return PaymentPaid
	case paid > 0:
		return PaymentPartial
	default:
		return PaymentUnpaid
	}
}

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

func ParsePeriod(raw string) (Period, bool) {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, true
	default:
		return "", false
	}
}

const (
	DefaultCustomerName = "Walk-in Customer"
	DefaultReorderLevel = 5
)

type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	Category     ProductCategory `json:"category"`
	CostPrice    int64           `json:"costPrice"`
	SellingPrice int64           `json:"sellingPrice"`
	StockQty     int             `json:"stockQty"`
	ReorderLevel int             `json:"reorderLevel"`
	Active       bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// LowStock reports whether the product has reached its reorder level.
func (p Product) LowStock() bool {
	return p.StockQty <= p.ReorderLevel
}

type ProductCreateRequest struct {
	Name         string `json:"name" validate:"required"`
	SKU          string `json:"sku" validate:"required"`
	Category     string `json:"category" validate:"required"`
	CostPrice    int64  `json:"costPrice" validate:"gte=0"`
	SellingPrice int64  `json:"sellingPrice" validate:"gte=0"`
	StockQty     int    `json:"stockQty" validate:"gte=0"`
	ReorderLevel *int   `json:"reorderLevel,omitempty" validate:"omitempty,gte=0"`
}

type ProductUpdateRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=1"`
	SKU          *string `json:"sku,omitempty" validate:"omitempty,min=1"`
	Category     *string `json:"category,omitempty"`
	CostPrice    *int64  `json:"costPrice,omitempty" validate:"omitempty,gte=0"`
	SellingPrice *int64  `json:"sellingPrice,omitempty" validate:"omitempty,gte=0"`
	ReorderLevel *int    `json:"reorderLevel,omitempty" validate:"omitempty,gte=0"`
	Active       *bool   `json:"isActive,omitempty"`
}

type StockAdjustRequest struct {
	QtyChange int `json:"qtyChange" validate:"ne=0"`
}

type ProductQuery struct {
	Page     int
	Limit    int
	Category ProductCategory
	Search   string
}

type OrderItem struct {
	ProductID string `json:"productId" validate:"required"`
	Name      string `json:"name"`
	Qty       int    `json:"qty" validate:"gte=1"`
	Price     int64  `json:"price" validate:"gte=0"`
}

type Order struct {
	ID            string        `json:"id"`
	OrderNumber   string        `json:"orderNumber"`
	CustomerName  string        `json:"customerName"`
	Color         string        `json:"color,omitempty"`
	OrderDate     time.Time     `json:"orderDate"`
	DeliveryDate  *time.Time    `json:"deliveryDate,omitempty"`
	Items         []OrderItem   `json:"items"`
	Subtotal      int64         `json:"subtotal"`
	Discount      int64         `json:"discount"`
	Total         int64         `json:"total"`
	PaidAmount    int64         `json:"paidAmount"`
	BalanceAmount int64         `json:"balanceAmount"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	CreatedBy     string        `json:"createdBy"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// OrderTotal is the slice of an order the dashboard buckets: when it was sold
// and for how much.
type OrderTotal struct {
	OrderDate time.Time
	Total     int64
}

type CheckoutRequest struct {
	CustomerName string      `json:"customerName,omitempty"`
	Color        string      `json:"color,omitempty"`
	DeliveryDate *time.Time  `json:"deliveryDate,omitempty"`
	Discount     int64       `json:"discount" validate:"gte=0"`
	PaidAmount   int64       `json:"paidAmount" validate:"gte=0"`
	Items        []OrderItem `json:"items" validate:"required,min=1,dive"`
}

type Expense struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Amount      int64           `json:"amount"`
	Category    ExpenseCategory `json:"category"`
	ExpenseDate time.Time       `json:"expenseDate"`
	CreatedBy   string          `json:"createdBy"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type ExpenseCreateRequest struct {
	Title       string     `json:"title" validate:"required"`
	Amount      int64      `json:"amount" validate:"gte=0"`
	Category    string     `json:"category" validate:"required"`
	ExpenseDate *time.Time `json:"expenseDate,omitempty"`
}

// DateRange bounds are inclusive; a nil bound is open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

type BucketSeries struct {
	Labels   []string `json:"labels"`
	Sales    []int64  `json:"sales"`
	Expenses []int64  `json:"expenses"`
	Profit   []int64  `json:"profit"`
}

type SalesSummary struct {
	TotalSales   int64 `json:"totalSales"`
	TotalPaid    int64 `json:"totalPaid"`
	TotalBalance int64 `json:"totalBalance"`
	OrdersCount  int64 `json:"ordersCount"`
}

type ExpenseSummary struct {
	TotalExpense int64 `json:"totalExpense"`
}

type ProfitSummary struct {
	TotalSales   int64 `json:"totalSales"`
	TotalExpense int64 `json:"totalExpense"`
	Profit       int64 `json:"profit"`
}

const (
	RoleAdmin = "ADMIN"
	RoleStaff = "STAFF"
)

type Actor struct {
	ID   string
	Role string
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=ADMIN STAFF"`
}

type LoginResponse struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresAt    string   `json:"expiresAt"`
}

type UserView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
}

// RefreshToken stores only the SHA-256 of the issued token.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}
