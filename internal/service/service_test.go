package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"optikpos/backend/internal/cache"
	"optikpos/backend/internal/domain"
	"optikpos/backend/internal/store"
	"optikpos/backend/internal/store/memory"
)

var testNow = time.Date(2026, time.October, 18, 14, 20, 0, 0, time.UTC)

type recordingNotifier struct {
	mu       sync.Mutex
	products []domain.Product
}

func (r *recordingNotifier) NotifyLowStock(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products = append(r.products, product)
	return nil
}

func newTestService(t *testing.T, opts Options) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return New(repo, opts), repo
}

func seedProduct(t *testing.T, repo *memory.Store, id string, name string, stock int) domain.Product {
	t.Helper()
	created, err := repo.CreateProduct(context.Background(), domain.Product{
		ID:           id,
		Name:         name,
		SKU:          strings.ToUpper(id),
		Category:     domain.CategoryFrame,
		SellingPrice: 1000,
		StockQty:     stock,
		ReorderLevel: domain.DefaultReorderLevel,
		Active:       true,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", id, err)
	}
	return *created
}

func stockOf(t *testing.T, repo *memory.Store, id string) int {
	t.Helper()
	product, err := repo.GetProductByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return product.StockQty
}

func TestCheckoutDecrementsStockPerLine(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "frame-a", "Frame A", 20)
	seedProduct(t, repo, "lens-b", "Lens B", 10)

	_, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		PaidAmount: 0,
		Items: []domain.OrderItem{
			{ProductID: "frame-a", Qty: 2, Price: 1000},
			{ProductID: "lens-b", Qty: 3, Price: 500},
			{ProductID: "frame-a", Qty: 4, Price: 1000},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if got := stockOf(t, repo, "frame-a"); got != 14 {
		t.Fatalf("expected frame-a stock 14 after repeated lines, got %d", got)
	}
	if got := stockOf(t, repo, "lens-b"); got != 7 {
		t.Fatalf("expected lens-b stock 7, got %d", got)
	}
}

func TestCheckoutComputesTotalsAndPartialStatus(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "lens-p", "Progressive Lens", 5)

	order, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		Discount:   500,
		PaidAmount: 5000,
		Items: []domain.OrderItem{
			{ProductID: "lens-p", Name: "Progressive Lens 1.67", Qty: 1, Price: 8200},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if order.Subtotal != 8200 || order.Total != 7700 || order.BalanceAmount != 2700 {
		t.Fatalf("unexpected totals: subtotal=%d total=%d balance=%d", order.Subtotal, order.Total, order.BalanceAmount)
	}
	if order.PaymentStatus != domain.PaymentPartial {
		t.Fatalf("expected PARTIAL, got %s", order.PaymentStatus)
	}
	if order.Items[0].Name != "Progressive Lens 1.67" || order.Items[0].Price != 8200 {
		t.Fatalf("expected captured line name and price, got %+v", order.Items[0])
	}
	if order.CreatedBy != "user-1" {
		t.Fatalf("expected created by user-1, got %q", order.CreatedBy)
	}
	if !order.OrderDate.Equal(testNow) {
		t.Fatalf("expected order date %s, got %s", testNow, order.OrderDate)
	}
}

func TestCheckoutPaymentStatus(t *testing.T) {
	cases := []struct {
		name     string
		discount int64
		paid     int64
		want     domain.PaymentStatus
	}{
		{"exact payment", 0, 3000, domain.PaymentPaid},
		{"overpayment", 0, 5000, domain.PaymentPaid},
		{"nothing paid", 0, 0, domain.PaymentUnpaid},
		{"partial", 0, 1, domain.PaymentPartial},
		{"discount covers everything", 3000, 0, domain.PaymentPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := newTestService(t, Options{})
			seedProduct(t, repo, "frame-a", "Frame A", 10)

			order, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
				Discount:   tc.discount,
				PaidAmount: tc.paid,
				Items:      []domain.OrderItem{{ProductID: "frame-a", Qty: 3, Price: 1000}},
			})
			if err != nil {
				t.Fatalf("checkout failed: %v", err)
			}
			if order.PaymentStatus != tc.want {
				t.Fatalf("expected %s, got %s (balance %d)", tc.want, order.PaymentStatus, order.BalanceAmount)
			}
		})
	}
}

func TestCheckoutDefaultsCustomerName(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	product := seedProduct(t, repo, "frame-a", "Frame A", 10)

	order, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		CustomerName: "   ",
		Items:        []domain.OrderItem{{ProductID: product.ID, Qty: 1, Price: 1000}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if order.CustomerName != domain.DefaultCustomerName {
		t.Fatalf("expected %q, got %q", domain.DefaultCustomerName, order.CustomerName)
	}
	if order.Items[0].Name != "Frame A" {
		t.Fatalf("expected blank line name to fall back to product name, got %q", order.Items[0].Name)
	}
}

func TestCheckoutRejectsInsufficientStockWithoutSideEffects(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "frame-a", "Frame A", 2)

	_, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 3, Price: 1000}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if !strings.Contains(err.Error(), "Frame A") {
		t.Fatalf("expected error to name the product, got %q", err.Error())
	}
	if got := stockOf(t, repo, "frame-a"); got != 2 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
	orders, err := svc.ListOrders(context.Background(), domain.DateRange{})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
}

func TestCheckoutKeepsEarlierLinesWhenLaterLineFails(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "frame-a", "Frame A", 10)
	seedProduct(t, repo, "lens-b", "Lens B", 1)

	_, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		Items: []domain.OrderItem{
			{ProductID: "frame-a", Qty: 4, Price: 1000},
			{ProductID: "lens-b", Qty: 2, Price: 500},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := stockOf(t, repo, "frame-a"); got != 6 {
		t.Fatalf("expected first line to stay applied (stock 6), got %d", got)
	}
	if got := stockOf(t, repo, "lens-b"); got != 1 {
		t.Fatalf("expected failing line untouched, got %d", got)
	}
	if _, err := repo.LatestOrderNumber(context.Background()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no order to be written, got %v", err)
	}
}

func TestCheckoutUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	_, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		Items: []domain.OrderItem{{ProductID: "ghost", Qty: 1, Price: 1}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckoutValidation(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "frame-a", "Frame A", 10)

	cases := map[string]domain.CheckoutRequest{
		"no items":          {},
		"zero qty":          {Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 0, Price: 1}}},
		"negative price":    {Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 1, Price: -1}}},
		"missing product":   {Items: []domain.OrderItem{{Qty: 1, Price: 1}}},
		"negative paid":     {PaidAmount: -5, Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 1}}},
		"negative discount": {Discount: -1, Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 1}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Checkout(context.Background(), "user-1", req)
			if !errors.Is(err, store.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
	if got := stockOf(t, repo, "frame-a"); got != 10 {
		t.Fatalf("expected invalid requests to leave stock alone, got %d", got)
	}
}

func TestCheckoutRejectsAmountOverflowBeforeTouchingStock(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "frame-a", "Frame A", 10)
	seedProduct(t, repo, "lens-b", "Lens B", 10)

	cases := map[string]domain.CheckoutRequest{
		"line":     {Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 2, Price: 5_000_000_000_000_000_000}}},
		"subtotal": {Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 1, Price: math.MaxInt64}, {ProductID: "lens-b", Qty: 1, Price: 1}}},
		"balance":  {Discount: math.MaxInt64, PaidAmount: math.MaxInt64, Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 1, Price: 1}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Checkout(context.Background(), "user-1", req)
			if !errors.Is(err, store.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
	if got := stockOf(t, repo, "frame-a"); got != 10 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
	if got := stockOf(t, repo, "lens-b"); got != 10 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
	if _, err := repo.LatestOrderNumber(context.Background()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no order to be written, got %v", err)
	}

	order, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 1, Price: math.MaxInt64}},
	})
	if err != nil {
		t.Fatalf("checkout at the int64 limit: %v", err)
	}
	if order.Total != math.MaxInt64 || order.PaymentStatus != domain.PaymentUnpaid {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestCheckoutValidationNamesJSONField(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	_, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		Items: []domain.OrderItem{{ProductID: "x", Qty: 0}},
	})
	if err == nil || !strings.Contains(err.Error(), "items[0].qty") {
		t.Fatalf("expected field path in message, got %v", err)
	}
}

func TestCheckoutAssignsSequentialInvoiceNumbers(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "frame-a", "Frame A", 10)

	req := domain.CheckoutRequest{Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 1, Price: 1000}}}
	first, err := svc.Checkout(context.Background(), "user-1", req)
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	second, err := svc.Checkout(context.Background(), "user-1", req)
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if first.OrderNumber != "INV-2026-0001" || second.OrderNumber != "INV-2026-0002" {
		t.Fatalf("unexpected order numbers %s, %s", first.OrderNumber, second.OrderNumber)
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "frame-a", "Frame A", 5)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
				Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 1, Price: 1000}},
			})
			if err == nil {
				succeeded.Add(1)
			} else if !errors.Is(err, store.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 5 {
		t.Fatalf("expected exactly 5 successful checkouts, got %d", succeeded.Load())
	}
	if got := stockOf(t, repo, "frame-a"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestCheckoutNotifiesLowStockOncePerProduct(t *testing.T) {
	notifier := &recordingNotifier{}
	svc, repo := newTestService(t, Options{LowStock: notifier})
	seedProduct(t, repo, "frame-a", "Frame A", 8)
	seedProduct(t, repo, "lens-b", "Lens B", 50)

	_, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		Items: []domain.OrderItem{
			{ProductID: "frame-a", Qty: 2, Price: 1000},
			{ProductID: "lens-b", Qty: 1, Price: 100},
			{ProductID: "frame-a", Qty: 2, Price: 1000},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if len(notifier.products) != 1 {
		t.Fatalf("expected one low stock alert, got %d", len(notifier.products))
	}
	if notifier.products[0].ID != "frame-a" || notifier.products[0].StockQty != 4 {
		t.Fatalf("expected alert for frame-a at stock 4, got %+v", notifier.products[0])
	}
}

func TestDashboardWeekShapeAndTotals(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "frame-a", "Frame A", 10)

	if _, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 2, Price: 1500}},
	}); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, err := svc.CreateExpense(context.Background(), "user-1", domain.ExpenseCreateRequest{
		Title: "Electricity", Amount: 400, Category: "electricity",
	}); err != nil {
		t.Fatalf("create expense: %v", err)
	}

	series, err := svc.Dashboard(context.Background(), "week")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(series.Labels) != 7 || len(series.Sales) != 7 || len(series.Expenses) != 7 || len(series.Profit) != 7 {
		t.Fatalf("expected 7 aligned buckets, got %d/%d/%d/%d", len(series.Labels), len(series.Sales), len(series.Expenses), len(series.Profit))
	}
	if series.Labels[6] != "2026-10-18" {
		t.Fatalf("expected last bucket to be today, got %s", series.Labels[6])
	}
	if series.Sales[6] != 3000 || series.Expenses[6] != 400 || series.Profit[6] != 2600 {
		t.Fatalf("unexpected today bucket: sales=%d expenses=%d profit=%d", series.Sales[6], series.Expenses[6], series.Profit[6])
	}
	for i := 0; i < 6; i++ {
		if series.Sales[i] != 0 || series.Expenses[i] != 0 || series.Profit[i] != 0 {
			t.Fatalf("expected empty bucket %d to be zero", i)
		}
	}
}

func TestDashboardDefaultsToDayAndRejectsUnknownPeriod(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	series, err := svc.Dashboard(context.Background(), "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(series.Labels) != 24 || series.Labels[23] != "2026-10-18 14:00" {
		t.Fatalf("expected 24 hourly buckets ending at 14:00, got %d ending %v", len(series.Labels), series.Labels)
	}

	if _, err := svc.Dashboard(context.Background(), "fortnight"); !errors.Is(err, store.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestDashboardIsIdempotentWithoutWrites(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "frame-a", "Frame A", 10)
	if _, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 1, Price: 999}},
	}); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	for _, period := range []string{"day", "week", "month", "year"} {
		first, err := svc.Dashboard(context.Background(), period)
		if err != nil {
			t.Fatalf("dashboard %s: %v", period, err)
		}
		second, err := svc.Dashboard(context.Background(), period)
		if err != nil {
			t.Fatalf("dashboard %s: %v", period, err)
		}
		if strings.Join(first.Labels, ",") != strings.Join(second.Labels, ",") {
			t.Fatalf("labels changed between calls for %s", period)
		}
		for i := range first.Sales {
			if first.Sales[i] != second.Sales[i] || first.Profit[i] != second.Profit[i] {
				t.Fatalf("bucket %d changed between calls for %s", i, period)
			}
		}
	}
}

// slowTotalsRepo holds the dashboard load open until release is closed and
// gives up when its context ends, like a database query would.
type slowTotalsRepo struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *slowTotalsRepo) OrderTotals(ctx context.Context, rng domain.DateRange) ([]domain.OrderTotal, error) {
	r.once.Do(func() { close(r.entered) })
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.Store.OrderTotals(ctx, rng)
}

func TestDashboardSharedBuildSurvivesFirstCallerLeaving(t *testing.T) {
	repo := &slowTotalsRepo{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	if _, err := repo.CreateOrder(context.Background(), domain.Order{
		OrderNumber: "INV-2026-0001", OrderDate: testNow, CreatedAt: testNow, Total: 700,
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	svc := New(repo, Options{Now: func() time.Time { return testNow }})

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Dashboard(firstCtx, "week")
		firstErr <- err
	}()
	<-repo.entered

	type result struct {
		series domain.BucketSeries
		err    error
	}
	second := make(chan result, 1)
	go func() {
		series, err := svc.Dashboard(context.Background(), "week")
		second <- result{series, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected first caller to see its own cancellation, got %v", err)
	}
	close(repo.release)

	select {
	case res := <-second:
		if res.err != nil {
			t.Fatalf("expected second caller to get the series, got %v", res.err)
		}
		if len(res.series.Sales) != 7 || res.series.Sales[6] != 700 {
			t.Fatalf("unexpected series %+v", res.series)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("second caller never returned")
	}
}

func TestDashboardCacheIsBumpedByCheckout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, repo := newTestService(t, Options{
		DashboardCache: cache.NewRedisDashboardCache(client),
		CacheTTL:       time.Minute,
	})
	seedProduct(t, repo, "frame-a", "Frame A", 10)

	before, err := svc.Dashboard(context.Background(), "week")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if before.Sales[6] != 0 {
		t.Fatalf("expected empty dashboard, got %d", before.Sales[6])
	}

	if _, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 1, Price: 1200}},
	}); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	after, err := svc.Dashboard(context.Background(), "week")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if after.Sales[6] != 1200 {
		t.Fatalf("expected cache invalidation to expose the new sale, got %d", after.Sales[6])
	}
}

func TestPointReports(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "frame-a", "Frame A", 10)

	for _, paid := range []int64{1000, 300} {
		if _, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
			PaidAmount: paid,
			Items:      []domain.OrderItem{{ProductID: "frame-a", Qty: 1, Price: 1000}},
		}); err != nil {
			t.Fatalf("checkout: %v", err)
		}
	}
	old := testNow.AddDate(0, -2, 0)
	for _, exp := range []domain.ExpenseCreateRequest{
		{Title: "Rent", Amount: 700, Category: "RENT"},
		{Title: "Old rent", Amount: 5000, Category: "RENT", ExpenseDate: &old},
	} {
		if _, err := svc.CreateExpense(context.Background(), "user-1", exp); err != nil {
			t.Fatalf("create expense: %v", err)
		}
	}

	sales, err := svc.SalesReport(context.Background(), domain.DateRange{})
	if err != nil {
		t.Fatalf("sales report: %v", err)
	}
	if sales.TotalSales != 2000 || sales.TotalPaid != 1300 || sales.TotalBalance != 700 || sales.OrdersCount != 2 {
		t.Fatalf("unexpected sales summary %+v", sales)
	}

	from := testNow.AddDate(0, 0, -7)
	profit, err := svc.ProfitReport(context.Background(), domain.DateRange{From: &from})
	if err != nil {
		t.Fatalf("profit report: %v", err)
	}
	if profit.TotalSales != 2000 || profit.TotalExpense != 700 || profit.Profit != 1300 {
		t.Fatalf("unexpected profit summary %+v", profit)
	}

	to := testNow.AddDate(0, -1, 0)
	expenses, err := svc.ExpenseReport(context.Background(), domain.DateRange{To: &to})
	if err != nil {
		t.Fatalf("expense report: %v", err)
	}
	if expenses.TotalExpense != 5000 {
		t.Fatalf("expected only the old expense, got %d", expenses.TotalExpense)
	}

	if _, err := svc.SalesReport(context.Background(), domain.DateRange{From: &testNow, To: &from}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected inverted range to be rejected, got %v", err)
	}
}

func TestCreateProductNormalizesAndRejectsDuplicateSKU(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	created, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Name: " Round Frame ", SKU: " frm-rd-01 ", Category: "frame", SellingPrice: 4000, StockQty: 3,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.SKU != "FRM-RD-01" || created.Name != "Round Frame" || created.Category != domain.CategoryFrame {
		t.Fatalf("expected normalized product, got %+v", created)
	}
	if created.ReorderLevel != domain.DefaultReorderLevel || !created.Active {
		t.Fatalf("expected default reorder level and active, got %+v", created)
	}

	_, err = svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Name: "Other", SKU: "FRM-RD-01", Category: "FRAME",
	})
	if !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	_, err = svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Name: "Contact", SKU: "CL-1", Category: "CONTACT_LENS",
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected unknown category to fail validation, got %v", err)
	}
}

func TestUpdateProductRechecksChangedSKU(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "frame-a", "Frame A", 10)
	seedProduct(t, repo, "frame-b", "Frame B", 10)

	taken := "frame-b"
	if _, err := svc.UpdateProduct(context.Background(), "frame-a", domain.ProductUpdateRequest{SKU: &taken}); !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	fresh := "frame-z"
	price := int64(7777)
	updated, err := svc.UpdateProduct(context.Background(), "frame-a", domain.ProductUpdateRequest{SKU: &fresh, SellingPrice: &price})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.SKU != "FRAME-Z" || updated.SellingPrice != 7777 {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if _, err := repo.GetProductBySKU(context.Background(), "FRAME-A"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected old SKU to be released, got %v", err)
	}

	if _, err := svc.UpdateProduct(context.Background(), "missing", domain.ProductUpdateRequest{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdjustStock(t *testing.T) {
	notifier := &recordingNotifier{}
	svc, repo := newTestService(t, Options{LowStock: notifier})
	seedProduct(t, repo, "frame-a", "Frame A", 6)

	updated, err := svc.AdjustStock(context.Background(), "frame-a", domain.StockAdjustRequest{QtyChange: 4})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if updated.StockQty != 10 {
		t.Fatalf("expected 10, got %d", updated.StockQty)
	}

	if _, err := svc.AdjustStock(context.Background(), "frame-a", domain.StockAdjustRequest{QtyChange: -11}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := stockOf(t, repo, "frame-a"); got != 10 {
		t.Fatalf("expected rejected adjustment to leave stock at 10, got %d", got)
	}

	if _, err := svc.AdjustStock(context.Background(), "frame-a", domain.StockAdjustRequest{QtyChange: -7}); err != nil {
		t.Fatalf("write off: %v", err)
	}
	if len(notifier.products) != 1 || notifier.products[0].StockQty != 3 {
		t.Fatalf("expected one low stock alert at 3, got %+v", notifier.products)
	}

	if _, err := svc.AdjustStock(context.Background(), "frame-a", domain.StockAdjustRequest{}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected zero change to be rejected, got %v", err)
	}
}

func TestListProductsFiltersAndPaginates(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	for i, name := range []string{"Aviator Gold", "Aviator Silver", "Cat Eye", "Round Black"} {
		product := seedProduct(t, repo, strings.ReplaceAll(strings.ToLower(name), " ", "-"), name, 5)
		if i == 3 {
			product.Category = domain.CategorySunglass
			product.Active = true
			if _, err := repo.UpdateProduct(context.Background(), product); err != nil {
				t.Fatalf("update product: %v", err)
			}
		}
	}
	hidden := seedProduct(t, repo, "aviator-old", "Aviator Old", 5)
	hidden.Active = false
	if _, err := repo.UpdateProduct(context.Background(), hidden); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	found, err := svc.ListProducts(context.Background(), domain.ProductQuery{Search: "aviator"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 active aviators, got %d", len(found))
	}

	sunglasses, err := svc.ListProducts(context.Background(), domain.ProductQuery{Category: domain.CategorySunglass})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sunglasses) != 1 || sunglasses[0].Name != "Round Black" {
		t.Fatalf("expected only Round Black, got %+v", sunglasses)
	}

	page2, err := svc.ListProducts(context.Background(), domain.ProductQuery{Page: 2, Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page2) != 1 {
		t.Fatalf("expected 1 product on page 2, got %d", len(page2))
	}
}

func TestDashboardBuildRacingCheckoutIsNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	dashboards := cache.NewRedisDashboardCache(client)

	svc, repo := newTestService(t, Options{DashboardCache: dashboards, CacheTTL: time.Minute})
	seedProduct(t, repo, "frame-a", "Frame A", 10)

	_, version, _, err := dashboards.Get(context.Background(), domain.PeriodWeek, "2026-10-18")
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	if _, err := svc.Checkout(context.Background(), "user-1", domain.CheckoutRequest{
		Items: []domain.OrderItem{{ProductID: "frame-a", Qty: 1, Price: 1200}},
	}); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	stale := domain.BucketSeries{Labels: []string{"stale"}}
	if err := dashboards.Set(context.Background(), domain.PeriodWeek, "2026-10-18", version, &stale, time.Minute); err != nil {
		t.Fatalf("cache set: %v", err)
	}

	series, err := svc.Dashboard(context.Background(), "week")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(series.Sales) != 7 || series.Sales[6] != 1200 {
		t.Fatalf("expected fresh series after checkout, got %+v", series)
	}
}

func TestListProductsRejectsPageBeyondOffsetRange(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	seedProduct(t, repo, "frame-a", "Frame A", 5)

	for _, page := range []int{500000000000000001, math.MaxInt} {
		_, err := svc.ListProducts(context.Background(), domain.ProductQuery{Page: page, Limit: 20})
		if !errors.Is(err, store.ErrValidation) {
			t.Fatalf("page %d: expected ErrValidation, got %v", page, err)
		}
	}

	far, err := svc.ListProducts(context.Background(), domain.ProductQuery{Page: 1000, Limit: 20})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(far) != 0 {
		t.Fatalf("expected empty page, got %d products", len(far))
	}
}

func TestCreateExpenseValidatesCategory(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	expense, err := svc.CreateExpense(context.Background(), "admin-1", domain.ExpenseCreateRequest{
		Title: "Fiber", Amount: 350, Category: "internet",
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if expense.Category != domain.ExpenseInternet || !expense.ExpenseDate.Equal(testNow) || expense.CreatedBy != "admin-1" {
		t.Fatalf("unexpected expense %+v", expense)
	}

	if _, err := svc.CreateExpense(context.Background(), "admin-1", domain.ExpenseCreateRequest{
		Title: "Lunch", Amount: 10, Category: "FOOD",
	}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
