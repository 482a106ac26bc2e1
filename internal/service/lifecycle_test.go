package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vaultsim/vaultd/internal/addrgen"
	"github.com/vaultsim/vaultd/internal/storage"
	"github.com/vaultsim/vaultd/internal/txstate"
	"github.com/vaultsim/vaultd/libs/events"
)

type fakeStore struct {
	assets    map[string]*storage.Asset
	wallets   map[string]*storage.Wallet
	addresses map[string]string
	txs       map[uuid.UUID]*storage.Transaction
	wsByAddr  map[string][]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assets:    map[string]*storage.Asset{},
		wallets:   map[string]*storage.Wallet{},
		addresses: map[string]string{},
		txs:       map[uuid.UUID]*storage.Transaction{},
		wsByAddr:  map[string][]uuid.UUID{},
	}
}

func walletKey(vaultID uuid.UUID, assetID string) string {
	return vaultID.String() + "/" + assetID
}

func (f *fakeStore) addAsset(a storage.Asset) {
	f.assets[a.ID] = &a
}

func (f *fakeStore) addWallet(vaultID uuid.UUID, assetID, balance string) *storage.Wallet {
	w := &storage.Wallet{
		ID:             uuid.New(),
		VaultAccountID: vaultID,
		AssetID:        assetID,
		Balance:        decimal.RequireFromString(balance),
	}
	f.wallets[walletKey(vaultID, assetID)] = w
	return w
}

func (f *fakeStore) setAddress(vaultID uuid.UUID, assetID, address string) {
	f.addresses[walletKey(vaultID, assetID)] = address
}

func (f *fakeStore) CanonicalAddress(_ context.Context, vaultID uuid.UUID, assetID string) (string, error) {
	addr, ok := f.addresses[walletKey(vaultID, assetID)]
	if !ok {
		return "", storage.ErrNotFound
	}
	return addr, nil
}

func (f *fakeStore) GetAsset(_ context.Context, id string) (*storage.Asset, error) {
	a, ok := f.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, storage.ErrNotFound)
	}
	return a, nil
}

func (f *fakeStore) GetWallet(_ context.Context, vaultID uuid.UUID, assetID string) (*storage.Wallet, error) {
	w, ok := f.wallets[walletKey(vaultID, assetID)]
	if !ok {
		return nil, storage.ErrWalletNotFound
	}
	return w, nil
}

func (f *fakeStore) VaultExists(_ context.Context, id uuid.UUID) (bool, error) {
	for _, w := range f.wallets {
		if w.VaultAccountID == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) reserve(t storage.Transaction) error {
	if t.SourceType != storage.PeerInternal || t.SourceVaultID == nil {
		return nil
	}
	w, ok := f.wallets[walletKey(*t.SourceVaultID, t.AssetID)]
	if !ok {
		return storage.ErrWalletNotFound
	}
	available := w.Balance.Sub(w.Pending).Sub(w.Locked)
	if available.LessThan(t.Amount) {
		return &storage.InsufficientBalanceError{Available: available, Requested: t.Amount}
	}
	w.Pending = w.Pending.Add(t.Amount)
	return nil
}

func (f *fakeStore) settle(t storage.Transaction, mode storage.SettleMode) {
	if t.SourceType == storage.PeerInternal && t.SourceVaultID != nil {
		if w, ok := f.wallets[walletKey(*t.SourceVaultID, t.AssetID)]; ok {
			switch mode {
			case storage.SettleComplete:
				w.Balance = w.Balance.Sub(t.Amount)
				w.Pending = w.Pending.Sub(t.Amount)
			case storage.SettleRollback:
				w.Pending = w.Pending.Sub(t.Amount)
			}
			if w.Pending.Sign() < 0 {
				w.Pending = decimal.Zero
			}
		}
	}
	if mode == storage.SettleComplete && t.DestType == storage.PeerInternal && t.DestVaultID != nil {
		if w, ok := f.wallets[walletKey(*t.DestVaultID, t.AssetID)]; ok {
			w.Balance = w.Balance.Add(t.Amount)
		}
	}
}

func (f *fakeStore) CreateTransaction(_ context.Context, t *storage.Transaction) error {
	if t.ExternalTxID != "" {
		for _, existing := range f.txs {
			if existing.ExternalTxID == t.ExternalTxID {
				return storage.ErrDuplicateExternalID
			}
		}
	}
	if err := f.reserve(*t); err != nil {
		return err
	}
	cp := *t
	f.txs[t.ID] = &cp
	return nil
}

func (f *fakeStore) GetTransaction(_ context.Context, id uuid.UUID) (*storage.Transaction, error) {
	t, ok := f.txs[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) ListTransactions(_ context.Context, _ storage.TransactionFilter) ([]storage.Transaction, error) {
	var out []storage.Transaction
	for _, t := range f.txs {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeStore) ApplyTransition(_ context.Context, id uuid.UUID, from, to txstate.State, upd storage.TransitionUpdate, settle storage.SettleMode) (*storage.Transaction, error) {
	t, ok := f.txs[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	if t.State != from {
		return nil, &storage.StateConflictError{Current: t.State, Requested: to}
	}
	t.State = to
	if upd.SubStatus != nil {
		t.SubStatus = *upd.SubStatus
	}
	if upd.TxHash != nil {
		t.TxHash = *upd.TxHash
	}
	if upd.Confirmations != nil {
		t.Confirmations = *upd.Confirmations
	}
	if upd.FailureReason != nil {
		t.FailureReason = *upd.FailureReason
	}
	if upd.ReplacedByTxID != nil {
		t.ReplacedByTxID = upd.ReplacedByTxID
	}
	f.settle(*t, settle)
	cp := *t
	return &cp, nil
}

func (f *fakeStore) SetTransactionFrozen(_ context.Context, id uuid.UUID, frozen bool) (*storage.Transaction, error) {
	t, ok := f.txs[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	if txstate.IsTerminal(t.State) {
		return nil, &storage.StateConflictError{Current: t.State, Requested: t.State}
	}
	t.Frozen = frozen
	cp := *t
	return &cp, nil
}

func (f *fakeStore) DropAndReplace(_ context.Context, original storage.Transaction, replacement *storage.Transaction) (*storage.Transaction, error) {
	t, ok := f.txs[original.ID]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", original.ID, storage.ErrNotFound)
	}
	if t.State != original.State {
		return nil, &storage.StateConflictError{Current: t.State, Requested: txstate.Cancelled}
	}
	t.State = txstate.Cancelled
	t.SubStatus = storage.SubStatusDroppedByBlockchain
	t.ReplacedByTxID = &replacement.ID
	f.settle(*t, storage.SettleRollback)
	if err := f.reserve(*replacement); err != nil {
		return nil, err
	}
	cp := *replacement
	f.txs[replacement.ID] = &cp
	out := *t
	return &out, nil
}

func (f *fakeStore) WorkspaceIDsForAddresses(_ context.Context, addresses []string) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]struct{}{}
	var out []uuid.UUID
	for _, addr := range addresses {
		for _, id := range f.wsByAddr[addr] {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out, nil
}

type fakeNotifier struct {
	envelopes []events.Envelope
}

func (f *fakeNotifier) Notify(_ context.Context, _ string, env events.Envelope) error {
	f.envelopes = append(f.envelopes, env)
	return nil
}

func btcAsset() storage.Asset {
	return storage.Asset{
		ID:              "BTC",
		Name:            "Bitcoin",
		Symbol:          "BTC",
		Decimals:        8,
		AddressingStyle: addrgen.AddressBased,
		BaseFee:         decimal.RequireFromString("0.0005"),
		Active:          true,
	}
}

func ethAsset() storage.Asset {
	return storage.Asset{
		ID:              "ETH",
		Name:            "Ethereum",
		Symbol:          "ETH",
		Decimals:        18,
		AddressingStyle: addrgen.AccountBased,
		BaseFee:         decimal.RequireFromString("0.002"),
		Active:          true,
	}
}

func internalToExternal(t *testing.T, assetID string, vaultID uuid.UUID, amount string) CreateTransactionInput {
	t.Helper()
	addr, err := addrgen.NewAddress(addrgen.AccountBased)
	if assetID == "BTC" {
		addr, err = addrgen.NewAddress(addrgen.AddressBased)
	}
	if err != nil {
		t.Fatalf("generate address: %v", err)
	}
	return CreateTransactionInput{
		WorkspaceID:   uuid.New(),
		AssetID:       assetID,
		SourceType:    storage.PeerInternal,
		SourceVaultID: &vaultID,
		DestType:      storage.PeerExternal,
		DestAddress:   addr,
		Amount:        decimal.RequireFromString(amount),
	}
}

func TestCreateTransactionReservesFunds(t *testing.T) {
	store := newFakeStore()
	store.addAsset(btcAsset())
	vaultID := uuid.New()
	wallet := store.addWallet(vaultID, "BTC", "1.0")

	svc := NewLifecycle(store, nil, nil, nil)
	ctx := context.Background()

	created, err := svc.CreateTransaction(ctx, internalToExternal(t, "BTC", vaultID, "0.6"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.State != txstate.Submitted {
		t.Fatalf("expected SUBMITTED, got %s", created.State)
	}
	if wallet.Pending.String() != "0.6" {
		t.Fatalf("expected pending 0.6, got %s", wallet.Pending)
	}

	_, err = svc.CreateTransaction(ctx, internalToExternal(t, "BTC", vaultID, "0.5"))
	var insufficient *storage.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if insufficient.Available.String() != "0.4" || insufficient.Requested.String() != "0.5" {
		t.Fatalf("unexpected amounts available=%s requested=%s", insufficient.Available, insufficient.Requested)
	}
}

func TestCreateTransactionGrossAmount(t *testing.T) {
	store := newFakeStore()
	store.addAsset(ethAsset())
	vaultID := uuid.New()
	store.addWallet(vaultID, "ETH", "10")

	svc := NewLifecycle(store, nil, nil, nil)
	input := internalToExternal(t, "ETH", vaultID, "1")
	input.TreatAsGross = true

	created, err := svc.CreateTransaction(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.SettledAmount.String() != "0.998" {
		t.Fatalf("expected settled 0.998, got %s", created.SettledAmount)
	}
	if created.NetworkFee.String() != "0.002" {
		t.Fatalf("expected network fee 0.002, got %s", created.NetworkFee)
	}
}

func TestCreateTransactionSetsTimestamps(t *testing.T) {
	store := newFakeStore()
	store.addAsset(btcAsset())
	vaultID := uuid.New()
	store.addWallet(vaultID, "BTC", "1.0")

	svc := NewLifecycle(store, nil, nil, nil)
	before := time.Now().UTC().Add(-time.Second)

	created, err := svc.CreateTransaction(context.Background(), internalToExternal(t, "BTC", vaultID, "0.2"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.CreatedAt.IsZero() || created.CreatedAt.Before(before) {
		t.Fatalf("created_at not set: %v", created.CreatedAt)
	}
	if !created.UpdatedAt.Equal(created.CreatedAt) {
		t.Fatalf("updated_at %v differs from created_at %v", created.UpdatedAt, created.CreatedAt)
	}
}

func TestCreateTransactionRecordsCanonicalSourceAddress(t *testing.T) {
	store := newFakeStore()
	store.addAsset(btcAsset())
	vaultID := uuid.New()
	store.addWallet(vaultID, "BTC", "1.0")
	store.setAddress(vaultID, "BTC", "1a2b3c4d5e6f70819203a4b5c6d7e8f901234567")

	svc := NewLifecycle(store, nil, nil, nil)
	ctx := context.Background()

	created, err := svc.CreateTransaction(ctx, internalToExternal(t, "BTC", vaultID, "0.3"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.SourceAddress != "1a2b3c4d5e6f70819203a4b5c6d7e8f901234567" {
		t.Fatalf("source address %q, want the vault's canonical address", created.SourceAddress)
	}

	// A vault that never provisioned a deposit address still withdraws;
	// the source address just stays empty.
	bareVault := uuid.New()
	store.addWallet(bareVault, "BTC", "1.0")
	created, err = svc.CreateTransaction(ctx, internalToExternal(t, "BTC", bareVault, "0.1"))
	if err != nil {
		t.Fatalf("CreateTransaction without address: %v", err)
	}
	if created.SourceAddress != "" {
		t.Fatalf("expected empty source address, got %q", created.SourceAddress)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	store := newFakeStore()
	store.addAsset(btcAsset())
	svc := NewLifecycle(store, nil, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateTransactionInput
	}{
		{"zero amount", CreateTransactionInput{AssetID: "BTC", SourceType: "EXTERNAL", DestType: "EXTERNAL", DestAddress: "abc123", Amount: decimal.Zero}},
		{"bad source type", CreateTransactionInput{AssetID: "BTC", SourceType: "WALLET", DestType: "EXTERNAL", DestAddress: "abc123", Amount: decimal.NewFromInt(1)}},
		{"internal source without vault", CreateTransactionInput{AssetID: "BTC", SourceType: "INTERNAL", DestType: "EXTERNAL", DestAddress: "abc123", Amount: decimal.NewFromInt(1)}},
		{"external dest without address", CreateTransactionInput{AssetID: "BTC", SourceType: "EXTERNAL", DestType: "EXTERNAL", Amount: decimal.NewFromInt(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateTransaction(ctx, tc.input)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestApproveFromSubmitted(t *testing.T) {
	store := newFakeStore()
	store.addAsset(btcAsset())
	vaultID := uuid.New()
	store.addWallet(vaultID, "BTC", "1")

	svc := NewLifecycle(store, nil, nil, nil)
	ctx := context.Background()
	created, err := svc.CreateTransaction(ctx, internalToExternal(t, "BTC", vaultID, "0.1"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	updated, err := svc.Approve(ctx, created.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if updated.State != txstate.PendingAuthorization {
		t.Fatalf("expected PENDING_AUTHORIZATION, got %s", updated.State)
	}
}

func TestTimeoutInvalidFromPendingAuthorization(t *testing.T) {
	store := newFakeStore()
	store.addAsset(btcAsset())
	vaultID := uuid.New()
	store.addWallet(vaultID, "BTC", "1")

	svc := NewLifecycle(store, nil, nil, nil)
	ctx := context.Background()
	created, err := svc.CreateTransaction(ctx, internalToExternal(t, "BTC", vaultID, "0.1"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if _, err := svc.Approve(ctx, created.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	_, err = svc.TimeOut(ctx, created.ID)
	var invalid *txstate.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	updated, err := svc.Cancel(ctx, created.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if updated.State != txstate.Cancelled {
		t.Fatalf("expected CANCELLED, got %s", updated.State)
	}
}

func TestCancelReleasesReservation(t *testing.T) {
	store := newFakeStore()
	store.addAsset(btcAsset())
	vaultID := uuid.New()
	wallet := store.addWallet(vaultID, "BTC", "1")

	svc := NewLifecycle(store, nil, nil, nil)
	ctx := context.Background()
	created, err := svc.CreateTransaction(ctx, internalToExternal(t, "BTC", vaultID, "0.4"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if _, err := svc.Cancel(ctx, created.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !wallet.Pending.IsZero() {
		t.Fatalf("expected pending 0, got %s", wallet.Pending)
	}
	if wallet.Balance.String() != "1" {
		t.Fatalf("expected balance untouched, got %s", wallet.Balance)
	}
}

func TestDoubleCompleteConflicts(t *testing.T) {
	store := newFakeStore()
	store.addAsset(btcAsset())
	vaultID := uuid.New()
	wallet := store.addWallet(vaultID, "BTC", "1")

	svc := NewLifecycle(store, nil, nil, nil)
	ctx := context.Background()
	created, err := svc.CreateTransaction(ctx, internalToExternal(t, "BTC", vaultID, "0.4"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	// Walk to a completable state.
	for _, step := range []func(context.Context, uuid.UUID) (*storage.Transaction, error){svc.Approve, svc.Sign, svc.Broadcast} {
		if _, err := step(ctx, created.ID); err != nil {
			t.Fatalf("walk to BROADCASTING: %v", err)
		}
	}
	if _, err := svc.Complete(ctx, created.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if wallet.Balance.String() != "0.6" || !wallet.Pending.IsZero() {
		t.Fatalf("unexpected balances balance=%s pending=%s", wallet.Balance, wallet.Pending)
	}

	_, err = svc.Complete(ctx, created.ID)
	var conflict *storage.StateConflictError
	if !errors.As(err, &conflict) && !errors.As(err, new(*txstate.InvalidTransitionError)) {
		t.Fatalf("expected conflict on second complete, got %v", err)
	}
	if wallet.Balance.String() != "0.6" {
		t.Fatalf("balance double-adjusted to %s", wallet.Balance)
	}
}

func TestFreezeBlockedOnTerminal(t *testing.T) {
	store := newFakeStore()
	store.addAsset(btcAsset())
	vaultID := uuid.New()
	store.addWallet(vaultID, "BTC", "1")

	svc := NewLifecycle(store, nil, nil, nil)
	ctx := context.Background()
	created, err := svc.CreateTransaction(ctx, internalToExternal(t, "BTC", vaultID, "0.1"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	frozen, err := svc.Freeze(ctx, created.ID)
	if err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if !frozen.Frozen {
		t.Fatal("expected frozen flag set")
	}
	if frozen.State != txstate.Submitted {
		t.Fatalf("freeze must not change state, got %s", frozen.State)
	}

	if _, err := svc.Cancel(ctx, created.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.Unfreeze(ctx, created.ID); err == nil {
		t.Fatal("expected freeze change on terminal transaction to fail")
	}
}

func TestDropReplacesWithBumpedFee(t *testing.T) {
	store := newFakeStore()
	store.addAsset(ethAsset())
	vaultID := uuid.New()
	store.addWallet(vaultID, "ETH", "10")

	svc := NewLifecycle(store, nil, nil, nil)
	ctx := context.Background()
	created, err := svc.CreateTransaction(ctx, internalToExternal(t, "ETH", vaultID, "1"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	for _, step := range []func(context.Context, uuid.UUID) (*storage.Transaction, error){svc.Approve, svc.Sign, svc.Broadcast} {
		if _, err := step(ctx, created.ID); err != nil {
			t.Fatalf("walk to BROADCASTING: %v", err)
		}
	}

	replacement, err := svc.Drop(ctx, created.ID)
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if replacement.NetworkFee.String() != "0.0024" {
		t.Fatalf("expected bumped fee 0.0024, got %s", replacement.NetworkFee)
	}
	if replacement.State != txstate.Broadcasting {
		t.Fatalf("expected replacement in BROADCASTING, got %s", replacement.State)
	}
	if replacement.TxHash == "" {
		t.Fatal("expected replacement to carry a fresh hash")
	}

	original, err := store.GetTransaction(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if original.State != txstate.Cancelled {
		t.Fatalf("expected original CANCELLED, got %s", original.State)
	}
	if original.SubStatus != storage.SubStatusDroppedByBlockchain {
		t.Fatalf("expected drop sub-status, got %q", original.SubStatus)
	}
	if original.ReplacedByTxID == nil || *original.ReplacedByTxID != replacement.ID {
		t.Fatal("expected original to link to replacement")
	}
}

func TestDropRejectedForNonBumpableAsset(t *testing.T) {
	store := newFakeStore()
	store.addAsset(btcAsset())
	vaultID := uuid.New()
	store.addWallet(vaultID, "BTC", "1")

	svc := NewLifecycle(store, nil, nil, nil)
	ctx := context.Background()
	created, err := svc.CreateTransaction(ctx, internalToExternal(t, "BTC", vaultID, "0.1"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	_, err = svc.Drop(ctx, created.ID)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestEstimateFeeBands(t *testing.T) {
	store := newFakeStore()
	store.addAsset(ethAsset())

	svc := NewLifecycle(store, nil, nil, nil)
	est, err := svc.EstimateFee(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("EstimateFee: %v", err)
	}
	if est.Low.String() != "0.002" || est.Medium.String() != "0.003" || est.High.String() != "0.004" {
		t.Fatalf("unexpected bands low=%s medium=%s high=%s", est.Low, est.Medium, est.High)
	}
}

func TestNotificationsFanOutToAddressOwners(t *testing.T) {
	store := newFakeStore()
	store.addAsset(ethAsset())
	vaultID := uuid.New()
	store.addWallet(vaultID, "ETH", "10")

	wsA := uuid.New()
	wsB := uuid.New()
	destAddr, err := addrgen.NewAddress(addrgen.AccountBased)
	if err != nil {
		t.Fatalf("generate address: %v", err)
	}
	srcAddr, err := addrgen.NewAddress(addrgen.AccountBased)
	if err != nil {
		t.Fatalf("generate address: %v", err)
	}
	store.wsByAddr[srcAddr] = []uuid.UUID{wsA}
	store.wsByAddr[destAddr] = []uuid.UUID{wsB}

	notifier := &fakeNotifier{}
	svc := NewLifecycle(store, notifier, nil, nil)

	input := CreateTransactionInput{
		WorkspaceID:   wsA,
		AssetID:       "ETH",
		SourceType:    storage.PeerInternal,
		SourceVaultID: &vaultID,
		SourceAddress: srcAddr,
		DestType:      storage.PeerExternal,
		DestAddress:   destAddr,
		Amount:        decimal.NewFromInt(1),
	}
	if _, err := svc.CreateTransaction(context.Background(), input); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	workspaces := map[string]bool{}
	for _, env := range notifier.envelopes {
		if env.EventType != events.TypeEntityUpserted {
			t.Fatalf("unexpected event type %s", env.EventType)
		}
		workspaces[env.WorkspaceID] = true
	}
	if !workspaces[wsA.String()] || !workspaces[wsB.String()] {
		t.Fatalf("expected both owning workspaces notified, got %v", workspaces)
	}
}
