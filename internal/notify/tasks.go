// Package notify carries alert notifications out of the request path.
// Triggers are enqueued as asynq tasks and a worker publishes them to the
// Redis channel collaborators subscribe to, so a slow or down notification
// sink never stalls the scrape cycle.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeAlertTriggered = "notify:alert_triggered"

	QueueNotifications = "notifications"
)

// AlertTriggeredPayload is the task body for one fired alert.
type AlertTriggeredPayload struct {
	AlertID     int64  `json:"alert_id"`
	UserID      int64  `json:"user_id"`
	Fingerprint string `json:"fingerprint"`
	Title       string `json:"title"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	FiredAt     int64  `json:"fired_at"`
}

// NewAlertTriggeredTask builds the task with a deterministic ID so a retried
// enqueue of the same (alert, listing) trigger collapses into one delivery.
func NewAlertTriggeredTask(p AlertTriggeredPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("notify.NewAlertTriggeredTask: %w", err)
	}

	return asynq.NewTask(TypeAlertTriggered, b,
		asynq.TaskID(fmt.Sprintf("alert:%d:%s", p.AlertID, p.Fingerprint)),
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}
