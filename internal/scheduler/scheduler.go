// Package scheduler drives the automatic lifecycle: a single background
// loop that advances every eligible transaction one step per tick.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vaultsim/vaultd/internal/storage"
	"github.com/vaultsim/vaultd/libs/events"
)

type Store interface {
	GetBoolSetting(ctx context.Context, name string) (bool, error)
	ListAutoAdvance(ctx context.Context) ([]storage.Transaction, error)
}

// Advancer moves one transaction a single forward step, returning nil when
// the state has no forward step.
type Advancer interface {
	AutoAdvance(ctx context.Context, t storage.Transaction) (*storage.Transaction, error)
}

type Notifier interface {
	Notify(ctx context.Context, workspaceID string, env events.Envelope) error
}

type Metrics struct {
	Ticks    prometheus.Counter
	Advanced *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total scheduler ticks, including disabled ones.",
		}),
		Advanced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_transactions_advanced_total",
				Help: "Transactions the scheduler attempted to advance.",
			},
			[]string{"status"},
		),
	}
	registry.MustRegister(m.Ticks, m.Advanced)
	return m
}

type Scheduler struct {
	store    Store
	advancer Advancer
	notifier Notifier
	interval time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

func New(store Store, advancer Advancer, notifier Notifier, interval time.Duration, logger *slog.Logger, metrics *Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{
		store:    store,
		advancer: advancer,
		notifier: notifier,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run loops until the context is cancelled. The interval is fixed: the next
// tick always waits the full interval regardless of how long work took, and
// cancellation is observed at tick boundaries.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one scheduling pass. Every failure is logged and swallowed so
// one bad row never kills the loop.
func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panicked", "panic", r)
		}
	}()
	if s.metrics != nil {
		s.metrics.Ticks.Inc()
	}

	enabled, err := s.store.GetBoolSetting(ctx, storage.SettingAutoAdvance)
	if err != nil {
		s.logger.Error("read auto-advance flag", "error", err)
		return
	}
	if !enabled {
		return
	}

	// Oldest first for fairness.
	txs, err := s.store.ListAutoAdvance(ctx)
	if err != nil {
		s.logger.Error("list transactions for auto-advance", "error", err)
		return
	}

	changedWorkspaces := map[string]struct{}{}
	for _, t := range txs {
		if ctx.Err() != nil {
			return
		}
		updated, err := s.advancer.AutoAdvance(ctx, t)
		if err != nil {
			s.countAdvance("error")
			s.logger.Warn("auto-advance failed", "tx_id", t.ID, "state", t.State, "error", err)
			continue
		}
		if updated == nil {
			s.countAdvance("skipped")
			continue
		}
		s.countAdvance("ok")
		changedWorkspaces[updated.WorkspaceID.String()] = struct{}{}
	}

	s.notifyChanged(ctx, changedWorkspaces)
}

// notifyChanged emits one aggregate signal per workspace whose list
// changed this tick, on top of the per-transaction events the lifecycle
// already sent.
func (s *Scheduler) notifyChanged(ctx context.Context, workspaceIDs map[string]struct{}) {
	if s.notifier == nil {
		return
	}
	for wsID := range workspaceIDs {
		env, err := events.EntitiesChanged(wsID)
		if err != nil {
			s.logger.Warn("build aggregate notification", "workspace_id", wsID, "error", err)
			continue
		}
		if err := s.notifier.Notify(ctx, wsID, env); err != nil {
			s.logger.Warn("deliver aggregate notification", "workspace_id", wsID, "error", err)
		}
	}
}

func (s *Scheduler) countAdvance(status string) {
	if s.metrics != nil {
		s.metrics.Advanced.WithLabelValues(status).Inc()
	}
}
