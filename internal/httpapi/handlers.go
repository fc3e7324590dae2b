package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"optikpos/backend/internal/domain"
	"optikpos/backend/internal/store"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusUnauthorized), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusUnauthorized), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := a.auth.Register(r.Context(), req)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusNotFound), err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := domain.ProductQuery{
		Page:   parsePositiveLimit(q.Get("page"), 1, 0),
		Limit:  parsePositiveLimit(q.Get("limit"), 20, 100),
		Search: strings.TrimSpace(q.Get("search")),
	}
	if raw := strings.TrimSpace(q.Get("category")); raw != "" {
		category, err := domain.ParseProductCategory(raw)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		query.Category = category
	}

	products, err := a.service.ListProducts(r.Context(), query)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusNotFound), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products": products,
		"page":     query.Page,
		"limit":    query.Limit,
	})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusNotFound), err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusNotFound), err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusNotFound), err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.AdjustStock(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusNotFound), err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	order, err := a.service.Checkout(r.Context(), actorFrom(r.Context()).ID, req)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			a.metrics.checkoutOutOfStock()
		}
		a.writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	a.metrics.checkoutSucceeded()
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	orders, err := a.service.ListOrders(r.Context(), rng)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusNotFound), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusNotFound), err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	expense, err := a.service.CreateExpense(r.Context(), actorFrom(r.Context()).ID, req)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusNotFound), err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	expenses, err := a.service.ListExpenses(r.Context(), rng)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusNotFound), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	series, err := a.service.Dashboard(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := a.service.SalesReport(r.Context(), rng)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleExpenseReport(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := a.service.ExpenseReport(r.Context(), rng)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleProfitReport(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := a.service.ProfitReport(r.Context(), rng)
	if err != nil {
		a.writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
