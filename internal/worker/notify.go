package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NotifyChannel is the redis channel relayed to websocket clients.
const NotifyChannel = "print_jobs"

// Notification statuses.
const (
	NotifyCompleted = "completed"
	NotifyError     = "error"
)

// PrintJobNotifyMessage is published once a print job (or batch) finishes.
// Field names match what the print manager page parses.
type PrintJobNotifyMessage struct {
	Status        string   `json:"status"`
	JobIDs        []string `json:"job_ids"`
	BatchID       string   `json:"batch_id,omitempty"`
	CorrelationID string   `json:"correlation_id"`
	ErrorCode     int      `json:"error_code"`
	ErrorMessage  string   `json:"error_message"`
	Pages         int      `json:"pages,omitempty"`
	Placeholders  []string `json:"placeholders,omitempty"`
}

// Notifier publishes job notifications.
type Notifier interface {
	Notify(ctx context.Context, msg PrintJobNotifyMessage) error
}

// RedisNotifier publishes notifications on NotifyChannel.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier wraps a redis client.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Notify implements Notifier.
func (n *RedisNotifier) Notify(ctx context.Context, msg PrintJobNotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	if err := n.client.Publish(ctx, NotifyChannel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", NotifyChannel, err)
	}
	return nil
}
