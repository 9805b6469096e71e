// Package tasks carries notification intents from request handlers to the mail worker.
package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task types shared by producers and the worker.
const (
	TypeNotificationEmail = "notification:email"
)

// QueueNotifications is the asynq queue notification tasks are placed on.
const QueueNotifications = "notifications"

// NotificationIntent describes one email to send after a mutation commits.
type NotificationIntent struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Subject  string            `json:"subject,omitempty"`
	Data     map[string]string `json:"data"`
	// RequestID ties worker logs back to the originating request.
	RequestID string `json:"request_id,omitempty"`
}

// NewNotificationTask wraps intent in an asynq task. Notifications are never retried.
func NewNotificationTask(intent NotificationIntent) (*asynq.Task, error) {
	if intent.Template == "" || intent.To == "" {
		return nil, fmt.Errorf("notification intent needs a template and a recipient")
	}
	payload, err := json.Marshal(intent)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotificationEmail, payload,
		asynq.MaxRetry(0),
		asynq.Queue(QueueNotifications),
	), nil
}

// ParseNotificationTask decodes the payload written by NewNotificationTask.
func ParseNotificationTask(t *asynq.Task) (NotificationIntent, error) {
	var intent NotificationIntent
	if err := json.Unmarshal(t.Payload(), &intent); err != nil {
		return intent, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	return intent, nil
}
