package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// AlertPubSub publishes fired triggers, one message per (alert, listing
// fingerprint) pair. Consumers subscribe to ChannelAlertTriggers directly.
type AlertPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewAlertPubSub(rdb *redis.Client) *AlertPubSub {
	return &AlertPubSub{
		rdb:     rdb,
		channel: ChannelAlertTriggers(),
	}
}

type alertTriggeredMsg struct {
	Type        string `json:"type"`
	AlertID     int64  `json:"alert_id"`
	UserID      int64  `json:"user_id"`
	Fingerprint string `json:"fingerprint"`
	Price       string `json:"price"`
	TsUnix      int64  `json:"ts_unix"`
}

func (p *AlertPubSub) PublishAlertTriggered(
	ctx context.Context,
	alertID, userID int64,
	fingerprint, price string,
) error {
	msg := alertTriggeredMsg{
		Type:        "alert_triggered",
		AlertID:     alertID,
		UserID:      userID,
		Fingerprint: fingerprint,
		Price:       price,
		TsUnix:      time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}
