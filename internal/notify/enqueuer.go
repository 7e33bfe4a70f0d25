package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// Enqueuer pushes notification tasks onto the queue.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// AlertTriggered enqueues one trigger notification. A duplicate task ID
// means the trigger is already queued or delivered, which is success here.
func (e *Enqueuer) AlertTriggered(ctx context.Context, p AlertTriggeredPayload) error {
	const op = "notify.Enqueuer.AlertTriggered"

	task, err := NewAlertTriggeredTask(p)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
