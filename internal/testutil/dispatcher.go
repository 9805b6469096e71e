package testutil

import (
	"context"
	"sync"

	"clubhub/internal/tasks"
)

// RecordingDispatcher keeps notification intents in memory instead of queueing them.
// A non-nil Err makes every Enqueue fail.
type RecordingDispatcher struct {
	mu      sync.Mutex
	intents []tasks.NotificationIntent
	Err     error
}

func (d *RecordingDispatcher) Enqueue(_ context.Context, intent tasks.NotificationIntent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.intents = append(d.intents, intent)
	return nil
}

// Intents returns a copy of everything enqueued so far.
func (d *RecordingDispatcher) Intents() []tasks.NotificationIntent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]tasks.NotificationIntent(nil), d.intents...)
}

// Templates lists the template of each intent in enqueue order.
func (d *RecordingDispatcher) Templates() []string {
	var out []string
	for _, in := range d.Intents() {
		out = append(out, in.Template)
	}
	return out
}
