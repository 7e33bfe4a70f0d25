package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	redisx "github.com/hdtickets/scout/internal/redis"
)

// Worker consumes notification tasks and fans them out to the Redis
// pub/sub channel.
type Worker struct {
	pubsub *redisx.AlertPubSub
	log    *slog.Logger
}

func NewWorker(pubsub *redisx.AlertPubSub, log *slog.Logger) *Worker {
	return &Worker{pubsub: pubsub, log: log}
}

// Mux registers the worker's handlers on an asynq mux.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAlertTriggered, w.handleAlertTriggered)
	return mux
}

func (w *Worker) handleAlertTriggered(ctx context.Context, t *asynq.Task) error {
	const op = "notify.Worker.handleAlertTriggered"

	var p AlertTriggeredPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		// malformed payloads never succeed; don't retry
		return fmt.Errorf("%s: %v: %w", op, err, asynq.SkipRetry)
	}

	if err := w.pubsub.PublishAlertTriggered(ctx, p.AlertID, p.UserID, p.Fingerprint, p.Price); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	w.log.Info("alert notification delivered",
		slog.Int64("alert_id", p.AlertID),
		slog.Int64("user_id", p.UserID),
		slog.String("fingerprint", p.Fingerprint),
		slog.String("price", p.Price))

	return nil
}
