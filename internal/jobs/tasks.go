package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"optikpos/backend/internal/domain"
	"optikpos/backend/internal/store"
)

const (
	QueueDefault = "default"
	TaskStockLow = "stock:low"
)

type StockLowPayload struct {
	ProductID    string `json:"productId"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	StockQty     int    `json:"stockQty"`
	ReorderLevel int    `json:"reorderLevel"`
}

func NewStockLowTask(product domain.Product) (*asynq.Task, error) {
	data, err := json.Marshal(StockLowPayload{
		ProductID:    product.ID,
		SKU:          product.SKU,
		Name:         product.Name,
		StockQty:     product.StockQty,
		ReorderLevel: product.ReorderLevel,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockLow, data), nil
}

type productReader interface {
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
}

// StockLowHandler logs restock alerts. When a product reader is configured the
// current stock is re-read so alerts for products restocked since the task was
// queued are dropped.
type StockLowHandler struct {
	products productReader
	logger   *slog.Logger
}

func NewStockLowHandler(products productReader, logger *slog.Logger) *StockLowHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StockLowHandler{products: products, logger: logger}
}

func (h *StockLowHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload StockLowPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskStockLow, err, asynq.SkipRetry)
	}

	stock, reorder := payload.StockQty, payload.ReorderLevel
	if h.products != nil {
		product, err := h.products.GetProductByID(ctx, payload.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			h.logger.Info("low stock alert for deleted product", slog.String("productId", payload.ProductID))
			return nil
		}
		if err != nil {
			return err
		}
		stock, reorder = product.StockQty, product.ReorderLevel
		if !product.LowStock() {
			h.logger.Info("product restocked before alert", slog.String("sku", product.SKU), slog.Int("stockQty", stock))
			return nil
		}
	}

	h.logger.Warn("product below reorder level",
		slog.String("productId", payload.ProductID),
		slog.String("sku", payload.SKU),
		slog.String("name", payload.Name),
		slog.Int("stockQty", stock),
		slog.Int("reorderLevel", reorder),
	)
	return nil
}
