package queue

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/speech2text/internal/config"
)

// RedisOpt converts the shared Redis settings for asynq.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(RedisOpt(cfg)),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueScratchSweep schedules a one-off sweep. Duplicate sweeps within the
// uniqueness window collapse into one.
func (c *Client) EnqueueScratchSweep(payload ScratchSweepPayload) error {
	task, err := NewScratchSweepTask(payload, asynq.MaxRetry(1), asynq.Timeout(time.Minute), asynq.Unique(time.Minute))
	if err != nil {
		return err
	}
	if _, err := c.client.Enqueue(task); err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeScratchSweep, err)
	}
	return nil
}
