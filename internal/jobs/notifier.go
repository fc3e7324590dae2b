package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"optikpos/backend/internal/domain"
)

// LowStockNotifier is told about products that reached their reorder level.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, product domain.Product) error
}

type NoopNotifier struct{}

func (NoopNotifier) NotifyLowStock(_ context.Context, _ domain.Product) error {
	return nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client submits low stock tasks to the queue. Alerts for one product are
// de-duplicated for uniqueWindow.
type Client struct {
	client       enqueuer
	uniqueWindow time.Duration
}

const defaultUniqueWindow = time.Hour

func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts), uniqueWindow: defaultUniqueWindow}
}

func (c *Client) NotifyLowStock(ctx context.Context, product domain.Product) error {
	task, err := NewStockLowTask(product)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.TaskID(TaskStockLow+":"+product.ID),
		asynq.Retention(c.uniqueWindow),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}
