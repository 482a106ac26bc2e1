package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/vaultsim/vaultd/libs/events"
)

type fakePublisher struct {
	topics []string
	keys   []string
	err    error
}

func (f *fakePublisher) PublishJSON(_ context.Context, topic, key string, _ any) (int32, int64, error) {
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, key)
	return 0, 0, f.err
}

func (f *fakePublisher) Close() error { return nil }

type recordingNotifier struct {
	count int
	err   error
}

func (r *recordingNotifier) Notify(context.Context, string, events.Envelope) error {
	r.count++
	return r.err
}

func TestKafkaNotifierKeysByWorkspace(t *testing.T) {
	pub := &fakePublisher{}
	n := NewKafkaNotifier(pub, "vault.events", nil)

	env, err := events.EntitiesChanged("ws-1")
	if err != nil {
		t.Fatalf("EntitiesChanged: %v", err)
	}
	if err := n.Notify(context.Background(), "ws-1", env); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(pub.topics) != 1 || pub.topics[0] != "vault.events" || pub.keys[0] != "ws-1" {
		t.Fatalf("unexpected publish topics=%v keys=%v", pub.topics, pub.keys)
	}
}

func TestKafkaNotifierRejectsInvalidEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	n := NewKafkaNotifier(pub, "vault.events", nil)

	if err := n.Notify(context.Background(), "ws-1", events.Envelope{}); err == nil {
		t.Fatal("expected invalid envelope to be rejected")
	}
	if len(pub.topics) != 0 {
		t.Fatal("invalid envelope must not be published")
	}
}

func TestMultiDeliversToAllDespiteErrors(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}
	m := NewMulti(failing, nil, ok)

	env, err := events.EntitiesChanged("ws-1")
	if err != nil {
		t.Fatalf("EntitiesChanged: %v", err)
	}
	if err := m.Notify(context.Background(), "ws-1", env); err == nil {
		t.Fatal("expected first error to propagate")
	}
	if failing.count != 1 || ok.count != 1 {
		t.Fatalf("expected both notifiers called, got %d and %d", failing.count, ok.count)
	}
}
