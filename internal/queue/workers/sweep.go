package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/speech2text/internal/queue"
	"github.com/nikhilbhutani/speech2text/internal/scratch"
)

// SweepWorker removes request workspaces left behind by a crashed process.
type SweepWorker struct {
	store  *scratch.Store
	maxAge time.Duration
}

func NewSweepWorker(store *scratch.Store, maxAge time.Duration) *SweepWorker {
	return &SweepWorker{store: store, maxAge: maxAge}
}

func (w *SweepWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.ScratchSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
		}
	}

	maxAge := payload.MaxAge
	if maxAge <= 0 {
		maxAge = w.maxAge
	}

	removed, err := w.store.Sweep(maxAge)
	if removed > 0 {
		slog.Info("swept scratch workspaces", "root", w.store.Root(), "removed", removed, "max_age", maxAge.String())
	}
	if err != nil {
		return fmt.Errorf("sweep %s: %w", w.store.Root(), err)
	}
	return nil
}
