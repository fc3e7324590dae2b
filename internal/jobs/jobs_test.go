package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hibiken/asynq"

	"optikpos/backend/internal/domain"
	"optikpos/backend/internal/store/memory"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestClientEnqueuesStockLowTask(t *testing.T) {
	rec := &recordingEnqueuer{}
	client := &Client{client: rec, uniqueWindow: defaultUniqueWindow}

	product := domain.Product{ID: "p-1", SKU: "FRM-1", Name: "Frame", StockQty: 2, ReorderLevel: 5}
	if err := client.NotifyLowStock(context.Background(), product); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(rec.tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(rec.tasks))
	}
	if rec.tasks[0].Type() != TaskStockLow {
		t.Fatalf("expected %s, got %s", TaskStockLow, rec.tasks[0].Type())
	}

	var payload StockLowPayload
	if err := json.Unmarshal(rec.tasks[0].Payload(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ProductID != "p-1" || payload.StockQty != 2 || payload.ReorderLevel != 5 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestClientTreatsDuplicateAlertAsSent(t *testing.T) {
	client := &Client{client: &recordingEnqueuer{err: asynq.ErrTaskIDConflict}}
	if err := client.NotifyLowStock(context.Background(), domain.Product{ID: "p-1"}); err != nil {
		t.Fatalf("expected duplicate to be ignored, got %v", err)
	}
}

func TestClientPropagatesQueueErrors(t *testing.T) {
	boom := errors.New("redis down")
	client := &Client{client: &recordingEnqueuer{err: boom}}
	if err := client.NotifyLowStock(context.Background(), domain.Product{ID: "p-1"}); !errors.Is(err, boom) {
		t.Fatalf("expected queue error, got %v", err)
	}
}

func TestStockLowHandlerLogsPayloadWithoutStore(t *testing.T) {
	logger, buf := newBufferLogger()
	h := NewStockLowHandler(nil, logger)

	task, err := NewStockLowTask(domain.Product{ID: "p-9", SKU: "LNS-9", StockQty: 1, ReorderLevel: 5})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := h.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(buf.String(), "product below reorder level") || !strings.Contains(buf.String(), "LNS-9") {
		t.Fatalf("expected low stock log line, got %q", buf.String())
	}
}

func TestStockLowHandlerSkipsRestockedProduct(t *testing.T) {
	repo := memory.New()
	created, err := repo.CreateProduct(context.Background(), domain.Product{
		ID: "p-1", SKU: "FRM-1", Name: "Frame", StockQty: 50, ReorderLevel: 5, Active: true,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	logger, buf := newBufferLogger()
	h := NewStockLowHandler(repo, logger)

	stale := *created
	stale.StockQty = 1
	task, err := NewStockLowTask(stale)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := h.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(buf.String(), "restocked") {
		t.Fatalf("expected restocked log line, got %q", buf.String())
	}
}

func TestStockLowHandlerRejectsBadPayload(t *testing.T) {
	h := NewStockLowHandler(nil, nil)
	err := h.Handle(context.Background(), asynq.NewTask(TaskStockLow, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}
