package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vaultsim/vaultd/internal/storage"
	"github.com/vaultsim/vaultd/internal/txstate"
	"github.com/vaultsim/vaultd/libs/events"
)

type fakeStore struct {
	enabled bool
	flagErr error
	txs     []storage.Transaction
}

func (f *fakeStore) GetBoolSetting(context.Context, string) (bool, error) {
	return f.enabled, f.flagErr
}

func (f *fakeStore) ListAutoAdvance(context.Context) ([]storage.Transaction, error) {
	var out []storage.Transaction
	for _, t := range f.txs {
		if !txstate.IsTerminal(t.State) && !t.Frozen {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeAdvancer struct {
	store   *fakeStore
	calls   int
	err     error
	panics  bool
	applied []uuid.UUID
}

func (f *fakeAdvancer) AutoAdvance(_ context.Context, t storage.Transaction) (*storage.Transaction, error) {
	f.calls++
	if f.panics {
		panic("bad row")
	}
	if f.err != nil {
		return nil, f.err
	}
	next, ok := txstate.Next(t.State)
	if !ok {
		return nil, nil
	}
	for i := range f.store.txs {
		if f.store.txs[i].ID == t.ID {
			f.store.txs[i].State = next
			if next == txstate.Broadcasting && f.store.txs[i].TxHash == "" {
				f.store.txs[i].TxHash = "0xabc"
			}
			f.applied = append(f.applied, t.ID)
			cp := f.store.txs[i]
			return &cp, nil
		}
	}
	return nil, errors.New("not found")
}

type recordingNotifier struct {
	envelopes []events.Envelope
}

func (r *recordingNotifier) Notify(_ context.Context, _ string, env events.Envelope) error {
	r.envelopes = append(r.envelopes, env)
	return nil
}

func TestTickAdvancesExactlyOneStep(t *testing.T) {
	store := &fakeStore{
		enabled: true,
		txs: []storage.Transaction{
			{ID: uuid.New(), WorkspaceID: uuid.New(), State: txstate.Queued},
		},
	}
	advancer := &fakeAdvancer{store: store}
	notifier := &recordingNotifier{}
	s := New(store, advancer, notifier, time.Second, nil, nil)

	s.tick(context.Background())

	if store.txs[0].State != txstate.Broadcasting {
		t.Fatalf("expected BROADCASTING after one tick, got %s", store.txs[0].State)
	}
	if store.txs[0].TxHash == "" {
		t.Fatal("expected a hash assigned on broadcast")
	}
	if advancer.calls != 1 {
		t.Fatalf("expected exactly one advance per tick, got %d", advancer.calls)
	}
	if len(notifier.envelopes) != 1 || notifier.envelopes[0].EventType != events.TypeEntitiesChanged {
		t.Fatalf("expected one aggregate notification, got %+v", notifier.envelopes)
	}
}

func TestTickDisabledFlagSkipsWork(t *testing.T) {
	store := &fakeStore{
		enabled: false,
		txs:     []storage.Transaction{{ID: uuid.New(), State: txstate.Submitted}},
	}
	advancer := &fakeAdvancer{store: store}
	s := New(store, advancer, nil, time.Second, nil, nil)

	s.tick(context.Background())

	if advancer.calls != 0 {
		t.Fatalf("expected no advances while disabled, got %d", advancer.calls)
	}
	if store.txs[0].State != txstate.Submitted {
		t.Fatalf("state must not change while disabled, got %s", store.txs[0].State)
	}
}

func TestTickSkipsTerminalAndFrozen(t *testing.T) {
	store := &fakeStore{
		enabled: true,
		txs: []storage.Transaction{
			{ID: uuid.New(), State: txstate.Completed},
			{ID: uuid.New(), State: txstate.Queued, Frozen: true},
			{ID: uuid.New(), State: txstate.Submitted},
		},
	}
	advancer := &fakeAdvancer{store: store}
	s := New(store, advancer, nil, time.Second, nil, nil)

	s.tick(context.Background())

	if advancer.calls != 1 {
		t.Fatalf("expected only the live transaction advanced, got %d calls", advancer.calls)
	}
	if store.txs[2].State != txstate.PendingAuthorization {
		t.Fatalf("expected PENDING_AUTHORIZATION, got %s", store.txs[2].State)
	}
}

func TestTickSurvivesErrorsAndPanics(t *testing.T) {
	store := &fakeStore{
		enabled: true,
		txs:     []storage.Transaction{{ID: uuid.New(), State: txstate.Submitted}},
	}

	s := New(store, &fakeAdvancer{store: store, err: errors.New("storage down")}, nil, time.Second, nil, nil)
	s.tick(context.Background())

	s = New(store, &fakeAdvancer{store: store, panics: true}, nil, time.Second, nil, nil)
	s.tick(context.Background())

	s = New(&fakeStore{flagErr: errors.New("no db")}, &fakeAdvancer{store: store}, nil, time.Second, nil, nil)
	s.tick(context.Background())
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &fakeStore{enabled: false}
	s := New(store, &fakeAdvancer{store: store}, nil, 10*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
