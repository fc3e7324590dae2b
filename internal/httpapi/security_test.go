package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"optikpos/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Email: testAdminEmail, Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"email":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"admin","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}
}

func TestMetricsEndpointCountsCheckouts(t *testing.T) {
	api, repo := newTestEnv(t)
	handler := api.Handler()
	frame, err := repo.GetProductBySKU(t.Context(), "FRM-RB-001")
	if err != nil {
		t.Fatalf("seeded product: %v", err)
	}

	token := loginAsStaff(t, handler)
	ok := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, domain.CheckoutRequest{
		PaidAmount: 4500,
		Items:      []domain.OrderItem{{ProductID: frame.ID, Qty: 1, Price: 4500}},
	})
	if ok.Code != http.StatusCreated {
		t.Fatalf("checkout: %d %s", ok.Code, ok.Body.String())
	}
	short := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, domain.CheckoutRequest{
		Items: []domain.OrderItem{{ProductID: frame.ID, Qty: 1000, Price: 4500}},
	})
	if short.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", short.Code)
	}

	res := doJSON(t, handler, http.MethodGet, "/metrics", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", res.Code)
	}
	text := res.Body.String()
	for _, want := range []string{
		"optikpos_checkouts_total 1",
		"optikpos_checkout_insufficient_stock_total 1",
		`optikpos_http_requests_total{code="201",route="/api/v1/orders"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected metrics to contain %q\n%s", want, text)
		}
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	handler := newTestAPI(t).Handler()

	res := doJSON(t, handler, http.MethodGet, "/api/v1/nope", "", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if msg := decodeMessage(t, res); msg == "" {
		t.Fatalf("expected message body")
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 20, 100); got != 100 {
		t.Fatalf("expected capped limit 100, got %d", got)
	}
	if got := parsePositiveLimit("", 20, 100); got != 20 {
		t.Fatalf("expected fallback limit 20, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 20, 100); got != 20 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}
