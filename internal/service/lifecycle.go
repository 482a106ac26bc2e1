package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vaultsim/vaultd/internal/addrgen"
	"github.com/vaultsim/vaultd/internal/storage"
	"github.com/vaultsim/vaultd/internal/txstate"
	"github.com/vaultsim/vaultd/libs/events"
)

// feeBumpMultiplier is applied to the network fee of a drop/replace
// replacement transaction.
var feeBumpMultiplier = decimal.RequireFromString("1.2")

// Fee estimate bands relative to the asset's base fee.
var (
	feeBandMedium = decimal.RequireFromString("1.5")
	feeBandHigh   = decimal.RequireFromString("2")
)

type Store interface {
	GetAsset(ctx context.Context, id string) (*storage.Asset, error)
	GetWallet(ctx context.Context, vaultID uuid.UUID, assetID string) (*storage.Wallet, error)
	CanonicalAddress(ctx context.Context, vaultID uuid.UUID, assetID string) (string, error)
	VaultExists(ctx context.Context, id uuid.UUID) (bool, error)
	CreateTransaction(ctx context.Context, t *storage.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	ListTransactions(ctx context.Context, filter storage.TransactionFilter) ([]storage.Transaction, error)
	ApplyTransition(ctx context.Context, id uuid.UUID, from, to txstate.State, upd storage.TransitionUpdate, settle storage.SettleMode) (*storage.Transaction, error)
	SetTransactionFrozen(ctx context.Context, id uuid.UUID, frozen bool) (*storage.Transaction, error)
	DropAndReplace(ctx context.Context, original storage.Transaction, replacement *storage.Transaction) (*storage.Transaction, error)
	WorkspaceIDsForAddresses(ctx context.Context, addresses []string) ([]uuid.UUID, error)
}

// Notifier fans a realtime event out to one workspace. Delivery is best
// effort; the lifecycle never fails an operation on a notify error.
type Notifier interface {
	Notify(ctx context.Context, workspaceID string, env events.Envelope) error
}

type Lifecycle struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	metrics  *Metrics
}

func NewLifecycle(store Store, notifier Notifier, logger *slog.Logger, metrics *Metrics) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{store: store, notifier: notifier, logger: logger, metrics: metrics}
}

type CreateTransactionInput struct {
	WorkspaceID   uuid.UUID
	AssetID       string
	SourceType    string
	SourceVaultID *uuid.UUID
	SourceAddress string
	DestType      string
	DestVaultID   *uuid.UUID
	DestAddress   string
	DestTag       string
	Amount        decimal.Decimal
	TreatAsGross  bool
	ExternalTxID  string
	CustomerRefID string
	Operation     string
}

func (l *Lifecycle) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*storage.Transaction, error) {
	start := time.Now()
	t, err := l.createTransaction(ctx, input)
	status := "created"
	if err != nil {
		status = "error"
		var insufficient *storage.InsufficientBalanceError
		if errors.As(err, &insufficient) {
			status = "insufficient_balance"
		} else if errors.Is(err, storage.ErrDuplicateExternalID) {
			status = "duplicate"
		}
	}
	if l.metrics != nil {
		l.metrics.TransactionCreations.WithLabelValues(status).Inc()
		l.metrics.CreationLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
	return t, err
}

func (l *Lifecycle) createTransaction(ctx context.Context, input CreateTransactionInput) (*storage.Transaction, error) {
	if input.Amount.Sign() <= 0 {
		return nil, validationErr("amount", "must be positive")
	}
	sourceType := strings.ToUpper(strings.TrimSpace(input.SourceType))
	destType := strings.ToUpper(strings.TrimSpace(input.DestType))
	if sourceType != storage.PeerInternal && sourceType != storage.PeerExternal {
		return nil, validationErr("source.type", "must be INTERNAL or EXTERNAL")
	}
	if destType != storage.PeerInternal && destType != storage.PeerExternal {
		return nil, validationErr("destination.type", "must be INTERNAL or EXTERNAL")
	}
	if sourceType == storage.PeerInternal && input.SourceVaultID == nil {
		return nil, validationErr("source.vault_id", "required for an INTERNAL source")
	}
	if destType == storage.PeerInternal && input.DestVaultID == nil {
		return nil, validationErr("destination.vault_id", "required for an INTERNAL destination")
	}
	if destType == storage.PeerExternal && input.DestAddress == "" {
		return nil, validationErr("destination.address", "required for an EXTERNAL destination")
	}

	asset, err := l.store.GetAsset(ctx, input.AssetID)
	if err != nil {
		return nil, err
	}
	if !asset.Active {
		return nil, validationErr("asset_id", "asset %s is not active", asset.ID)
	}
	if destType == storage.PeerExternal && !addrgen.Matches(asset.AddressingStyle, input.DestAddress) {
		return nil, validationErr("destination.address", "not a valid %s address", asset.ID)
	}

	sourceAddress := input.SourceAddress
	if sourceType == storage.PeerInternal && sourceAddress == "" {
		// Record the source vault's canonical deposit address so the
		// address-based visibility view includes the withdrawal for its
		// own workspace, not just the counterparty's.
		addr, err := l.store.CanonicalAddress(ctx, *input.SourceVaultID, asset.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		sourceAddress = addr
	}

	networkFee := asset.BaseFee
	settled := input.Amount
	if input.TreatAsGross {
		settled = input.Amount.Sub(networkFee)
		if settled.Sign() <= 0 {
			return nil, validationErr("amount", "gross amount %s does not cover the network fee %s", input.Amount, networkFee)
		}
	}

	now := time.Now().UTC()
	t := &storage.Transaction{
		ID:             uuid.New(),
		WorkspaceID:    input.WorkspaceID,
		VaultAccountID: input.SourceVaultID,
		AssetID:        asset.ID,
		SourceType:     sourceType,
		SourceVaultID:  input.SourceVaultID,
		SourceAddress:  sourceAddress,
		DestType:       destType,
		DestVaultID:    input.DestVaultID,
		DestAddress:    input.DestAddress,
		DestTag:        input.DestTag,
		Amount:         input.Amount,
		SettledAmount:  settled,
		State:          txstate.Submitted,
		NetworkFee:     networkFee,
		Fee:            networkFee,
		FeeCurrency:    asset.FeeCurrency(),
		TreatAsGross:   input.TreatAsGross,
		ExternalTxID:   strings.TrimSpace(input.ExternalTxID),
		CustomerRefID:  input.CustomerRefID,
		Operation:      input.Operation,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := l.store.CreateTransaction(ctx, t); err != nil {
		return nil, err
	}

	l.logger.Info("transaction created",
		"tx_id", t.ID,
		"asset", t.AssetID,
		"amount", t.Amount.String(),
		"source_type", t.SourceType,
		"dest_type", t.DestType,
	)
	l.notifyUpserted(ctx, t)
	return t, nil
}

// Named manual transitions. Each maps to exactly one target state and is
// validated against the transition table before anything is written.
func (l *Lifecycle) Approve(ctx context.Context, id uuid.UUID) (*storage.Transaction, error) {
	return l.Transition(ctx, id, txstate.PendingAuthorization)
}

func (l *Lifecycle) Sign(ctx context.Context, id uuid.UUID) (*storage.Transaction, error) {
	return l.Transition(ctx, id, txstate.Queued)
}

func (l *Lifecycle) Broadcast(ctx context.Context, id uuid.UUID) (*storage.Transaction, error) {
	return l.Transition(ctx, id, txstate.Broadcasting)
}

func (l *Lifecycle) Confirm(ctx context.Context, id uuid.UUID) (*storage.Transaction, error) {
	return l.Transition(ctx, id, txstate.Confirming)
}

func (l *Lifecycle) Complete(ctx context.Context, id uuid.UUID) (*storage.Transaction, error) {
	return l.Transition(ctx, id, txstate.Completed)
}

func (l *Lifecycle) Fail(ctx context.Context, id uuid.UUID) (*storage.Transaction, error) {
	return l.Transition(ctx, id, txstate.Failed)
}

func (l *Lifecycle) Reject(ctx context.Context, id uuid.UUID) (*storage.Transaction, error) {
	return l.Transition(ctx, id, txstate.Rejected)
}

func (l *Lifecycle) Cancel(ctx context.Context, id uuid.UUID) (*storage.Transaction, error) {
	return l.Transition(ctx, id, txstate.Cancelled)
}

func (l *Lifecycle) TimeOut(ctx context.Context, id uuid.UUID) (*storage.Transaction, error) {
	return l.Transition(ctx, id, txstate.Timeout)
}

// Transition moves a transaction to the requested state. The state machine
// is consulted first, then the store applies a conditional update so a
// racing writer fails with a conflict instead of double-settling.
func (l *Lifecycle) Transition(ctx context.Context, id uuid.UUID, to txstate.State) (*storage.Transaction, error) {
	current, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := txstate.Validate(current.State, to); err != nil {
		l.countTransition(to, "invalid")
		return nil, err
	}

	updated, err := l.store.ApplyTransition(ctx, id, current.State, to, forwardEffects(current, to), settleFor(to))
	if err != nil {
		l.countTransition(to, "error")
		return nil, err
	}
	l.countTransition(to, "ok")

	l.logger.Info("transaction transitioned", "tx_id", id, "from", current.State, "to", to)
	l.notifyUpserted(ctx, updated)
	return updated, nil
}

// AutoAdvance moves one transaction a single step along the forward map.
// Returns nil with no error when the state has no forward step.
func (l *Lifecycle) AutoAdvance(ctx context.Context, t storage.Transaction) (*storage.Transaction, error) {
	next, ok := txstate.Next(t.State)
	if !ok {
		return nil, nil
	}
	// Re-validate: the row may have moved since it was fetched.
	if err := txstate.Validate(t.State, next); err != nil {
		return nil, err
	}
	updated, err := l.store.ApplyTransition(ctx, t.ID, t.State, next, forwardEffects(&t, next), settleFor(next))
	if err != nil {
		return nil, err
	}
	l.notifyUpserted(ctx, updated)
	return updated, nil
}

func (l *Lifecycle) Freeze(ctx context.Context, id uuid.UUID) (*storage.Transaction, error) {
	return l.setFrozen(ctx, id, true)
}

func (l *Lifecycle) Unfreeze(ctx context.Context, id uuid.UUID) (*storage.Transaction, error) {
	return l.setFrozen(ctx, id, false)
}

func (l *Lifecycle) setFrozen(ctx context.Context, id uuid.UUID, frozen bool) (*storage.Transaction, error) {
	t, err := l.store.SetTransactionFrozen(ctx, id, frozen)
	if err != nil {
		return nil, err
	}
	l.logger.Info("transaction freeze flag changed", "tx_id", id, "frozen", frozen)
	l.notifyUpserted(ctx, t)
	return t, nil
}

// Drop cancels a stuck transaction and replaces it with a clone carrying a
// 20% higher network fee and a fresh hash. Only fee-bumpable assets
// qualify.
func (l *Lifecycle) Drop(ctx context.Context, id uuid.UUID) (*storage.Transaction, error) {
	original, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		l.countDrop("error")
		return nil, err
	}
	asset, err := l.store.GetAsset(ctx, original.AssetID)
	if err != nil {
		l.countDrop("error")
		return nil, err
	}
	if !asset.SupportsFeeBump() {
		l.countDrop("not_supported")
		return nil, validationErr("asset_id", "asset %s does not support drop and replace", asset.ID)
	}
	if txstate.IsTerminal(original.State) {
		l.countDrop("conflict")
		return nil, &storage.StateConflictError{Current: original.State, Requested: txstate.Cancelled}
	}

	hash, err := addrgen.NewTxHash()
	if err != nil {
		l.countDrop("error")
		return nil, err
	}

	replacement := *original
	replacement.ID = uuid.New()
	replacement.State = txstate.Broadcasting
	replacement.SubStatus = ""
	replacement.NetworkFee = original.NetworkFee.Mul(feeBumpMultiplier)
	replacement.Fee = replacement.NetworkFee
	replacement.TxHash = hash
	replacement.ReplacedByTxID = nil
	replacement.ExternalTxID = ""
	replacement.Confirmations = 0
	now := time.Now().UTC()
	replacement.CreatedAt = now
	replacement.UpdatedAt = now

	dropped, err := l.store.DropAndReplace(ctx, *original, &replacement)
	if err != nil {
		l.countDrop("error")
		return nil, err
	}
	l.countDrop("ok")

	l.logger.Info("transaction dropped and replaced",
		"tx_id", original.ID,
		"replacement_id", replacement.ID,
		"network_fee", replacement.NetworkFee.String(),
	)
	l.notifyUpserted(ctx, dropped)
	l.notifyUpserted(ctx, &replacement)
	return &replacement, nil
}

// FeeEstimate holds three priority bands derived from the asset base fee.
type FeeEstimate struct {
	Low    decimal.Decimal
	Medium decimal.Decimal
	High   decimal.Decimal
	Asset  string
}

func (l *Lifecycle) EstimateFee(ctx context.Context, assetID string) (*FeeEstimate, error) {
	asset, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return &FeeEstimate{
		Low:    asset.BaseFee,
		Medium: asset.BaseFee.Mul(feeBandMedium),
		High:   asset.BaseFee.Mul(feeBandHigh),
		Asset:  asset.FeeCurrency(),
	}, nil
}

// ValidateAddress checks an address string against the asset's addressing
// style.
func (l *Lifecycle) ValidateAddress(ctx context.Context, assetID, address string) (bool, error) {
	asset, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		return false, err
	}
	return addrgen.Matches(asset.AddressingStyle, address), nil
}

func (l *Lifecycle) countTransition(to txstate.State, status string) {
	if l.metrics != nil {
		l.metrics.Transitions.WithLabelValues(string(to), status).Inc()
	}
}

func (l *Lifecycle) countDrop(status string) {
	if l.metrics != nil {
		l.metrics.DropReplacements.WithLabelValues(status).Inc()
	}
}

// settleFor picks the ledger side effect coupled to a target state:
// success settles, failure rolls the reservation back.
func settleFor(to txstate.State) storage.SettleMode {
	switch {
	case to == txstate.Completed:
		return storage.SettleComplete
	case txstate.IsTerminal(to):
		return storage.SettleRollback
	default:
		return storage.SettleNone
	}
}

// forwardEffects computes the field updates coupled to entering a state:
// a synthetic hash on broadcast, confirmation counts on confirm/complete.
func forwardEffects(t *storage.Transaction, to txstate.State) storage.TransitionUpdate {
	var upd storage.TransitionUpdate
	switch to {
	case txstate.Broadcasting:
		if t.TxHash == "" {
			if hash, err := addrgen.NewTxHash(); err == nil {
				upd.TxHash = &hash
			}
		}
	case txstate.Confirming:
		confirmations := t.Confirmations + 1
		if confirmations < 1 {
			confirmations = 1
		}
		upd.Confirmations = &confirmations
	case txstate.Completed:
		if t.Confirmations == 0 {
			confirmations := 6
			upd.Confirmations = &confirmations
		}
	}
	return upd
}

// notifyUpserted fans an entity event out to every workspace that owns an
// address on either side of the transaction, plus the advisory workspace
// hint. Failures are logged, never surfaced.
func (l *Lifecycle) notifyUpserted(ctx context.Context, t *storage.Transaction) {
	if l.notifier == nil {
		return
	}

	seen := map[uuid.UUID]struct{}{}
	if t.WorkspaceID != uuid.Nil {
		seen[t.WorkspaceID] = struct{}{}
	}

	var addrs []string
	if t.SourceAddress != "" {
		addrs = append(addrs, t.SourceAddress)
	}
	if t.DestAddress != "" {
		addrs = append(addrs, t.DestAddress)
	}
	if len(addrs) > 0 {
		ids, err := l.store.WorkspaceIDsForAddresses(ctx, addrs)
		if err != nil {
			l.logger.Warn("resolve notification workspaces", "tx_id", t.ID, "error", err)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	for wsID := range seen {
		env, err := events.EntityUpserted(wsID.String(), "transaction", t)
		if err != nil {
			l.logger.Warn("build notification", "tx_id", t.ID, "error", err)
			continue
		}
		if err := l.notifier.Notify(ctx, wsID.String(), env); err != nil {
			l.logger.Warn("deliver notification", "tx_id", t.ID, "workspace_id", wsID, "error", err)
		}
	}
}
