// Package notify fans realtime change events out to delivery channels.
// Delivery is advisory and at-most-once; a failed send is logged and
// dropped, never retried.
package notify

import (
	"context"
	"log/slog"

	"github.com/vaultsim/vaultd/libs/events"
)

type Notifier interface {
	Notify(ctx context.Context, workspaceID string, env events.Envelope) error
}

// KafkaNotifier publishes envelopes keyed by workspace so one tenant's
// events stay ordered within a partition.
type KafkaNotifier struct {
	publisher events.Publisher
	topic     string
	logger    *slog.Logger
}

func NewKafkaNotifier(publisher events.Publisher, topic string, logger *slog.Logger) *KafkaNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaNotifier{publisher: publisher, topic: topic, logger: logger}
}

func (n *KafkaNotifier) Notify(ctx context.Context, workspaceID string, env events.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	_, _, err := n.publisher.PublishJSON(ctx, n.topic, workspaceID, env)
	return err
}

// Multi delivers to every channel, collecting nothing: the first error is
// returned for logging but later channels still get their send.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	out := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return &Multi{notifiers: out}
}

func (m *Multi) Notify(ctx context.Context, workspaceID string, env events.Envelope) error {
	var first error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, workspaceID, env); err != nil && first == nil {
			first = err
		}
	}
	return first
}
