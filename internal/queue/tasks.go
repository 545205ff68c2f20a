package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeScratchSweep = "scratch:sweep"
)

// ScratchSweepPayload asks a worker to remove request workspaces older than
// MaxAge. A zero MaxAge means the worker's configured default.
type ScratchSweepPayload struct {
	MaxAge time.Duration `json:"max_age"`
}

func NewScratchSweepTask(payload ScratchSweepPayload, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeScratchSweep, data, opts...), nil
}
