package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vaultsim/vaultd/internal/storage"
	"github.com/vaultsim/vaultd/internal/txstate"
)

type fakeStore struct {
	addrsByWS map[uuid.UUID][]string
	txs       []storage.Transaction
}

func (f *fakeStore) AddressValuesForWorkspace(_ context.Context, workspaceID uuid.UUID) ([]string, error) {
	return f.addrsByWS[workspaceID], nil
}

func (f *fakeStore) ListTransactionsByAddresses(_ context.Context, addresses []string, _ storage.TransactionFilter) ([]storage.Transaction, error) {
	owned := map[string]struct{}{}
	for _, a := range addresses {
		owned[a] = struct{}{}
	}
	var out []storage.Transaction
	for _, t := range f.txs {
		_, src := owned[t.SourceAddress]
		_, dst := owned[t.DestAddress]
		if src || dst {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTransaction(_ context.Context, id uuid.UUID) (*storage.Transaction, error) {
	for i := range f.txs {
		if f.txs[i].ID == id {
			cp := f.txs[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
}

func TestCrossTenantTransactionVisibleToBothWorkspaces(t *testing.T) {
	wsA := uuid.New()
	wsB := uuid.New()
	txn := storage.Transaction{
		ID:            uuid.New(),
		WorkspaceID:   wsA,
		AssetID:       "ETH",
		SourceAddress: "addrA",
		DestAddress:   "addrB",
		Amount:        decimal.NewFromInt(1),
		State:         txstate.Completed,
	}
	store := &fakeStore{
		addrsByWS: map[uuid.UUID][]string{
			wsA: {"addrA"},
			wsB: {"addrB"},
		},
		txs: []storage.Transaction{txn},
	}
	r := New(store, nil)
	ctx := context.Background()

	forA, err := r.VisibleTransactions(ctx, wsA, storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("VisibleTransactions A: %v", err)
	}
	forB, err := r.VisibleTransactions(ctx, wsB, storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("VisibleTransactions B: %v", err)
	}
	if len(forA) != 1 || len(forB) != 1 {
		t.Fatalf("expected one transaction each, got %d and %d", len(forA), len(forB))
	}
	if forA[0].ID != forB[0].ID {
		t.Fatal("both workspaces must see the same transaction id")
	}
	if forA[0].Perspective != PerspectiveOutgoing {
		t.Fatalf("expected OUTGOING for the source owner, got %s", forA[0].Perspective)
	}
	if forB[0].Perspective != PerspectiveIncoming {
		t.Fatalf("expected INCOMING for the destination owner, got %s", forB[0].Perspective)
	}
	if forA[0].CounterpartyAddress != "addrB" || forB[0].CounterpartyAddress != "addrA" {
		t.Fatalf("unexpected counterparties %q and %q", forA[0].CounterpartyAddress, forB[0].CounterpartyAddress)
	}
}

func TestInternalPerspectiveWhenBothSidesOwned(t *testing.T) {
	ws := uuid.New()
	txn := storage.Transaction{
		ID:            uuid.New(),
		SourceAddress: "addr1",
		DestAddress:   "addr2",
		State:         txstate.Submitted,
	}
	store := &fakeStore{
		addrsByWS: map[uuid.UUID][]string{ws: {"addr1", "addr2"}},
		txs:       []storage.Transaction{txn},
	}
	r := New(store, nil)

	visible, err := r.VisibleTransactions(context.Background(), ws, storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("VisibleTransactions: %v", err)
	}
	if len(visible) != 1 || visible[0].Perspective != PerspectiveInternal {
		t.Fatalf("expected one INTERNAL transaction, got %+v", visible)
	}
}

func TestParseCompositeID(t *testing.T) {
	wsID := uuid.New()
	txID := uuid.New()

	gotWS, gotTx, err := ParseCompositeID(wsID.String() + "::" + txID.String())
	if err != nil {
		t.Fatalf("ParseCompositeID: %v", err)
	}
	if gotWS == nil || *gotWS != wsID || gotTx != txID {
		t.Fatalf("unexpected parse result ws=%v tx=%v", gotWS, gotTx)
	}

	gotWS, gotTx, err = ParseCompositeID(txID.String())
	if err != nil {
		t.Fatalf("plain id: %v", err)
	}
	if gotWS != nil || gotTx != txID {
		t.Fatalf("unexpected plain parse ws=%v tx=%v", gotWS, gotTx)
	}

	malformed := []string{
		"",
		"not-a-uuid",
		"::",
		wsID.String() + "::",
		"::" + txID.String(),
		"abc::" + txID.String(),
		wsID.String() + "::xyz",
		wsID.String() + "::" + txID.String() + "::extra",
	}
	for _, raw := range malformed {
		if _, _, err := ParseCompositeID(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestGetVisibleEnforcesOwnership(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()
	txn := storage.Transaction{
		ID:            uuid.New(),
		WorkspaceID:   owner,
		SourceAddress: "addrA",
		DestAddress:   "ext1",
		State:         txstate.Submitted,
	}
	store := &fakeStore{
		addrsByWS: map[uuid.UUID][]string{owner: {"addrA"}},
		txs:       []storage.Transaction{txn},
	}
	r := New(store, nil)
	ctx := context.Background()

	got, err := r.GetVisible(ctx, owner, txn.ID.String())
	if err != nil {
		t.Fatalf("GetVisible: %v", err)
	}
	if got.Perspective != PerspectiveOutgoing {
		t.Fatalf("expected OUTGOING, got %s", got.Perspective)
	}

	if _, err := r.GetVisible(ctx, stranger, txn.ID.String()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found for a stranger, got %v", err)
	}

	// A composite id naming another workspace must not leak.
	composite := owner.String() + "::" + txn.ID.String()
	if _, err := r.GetVisible(ctx, stranger, composite); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found for mismatched composite, got %v", err)
	}

	if got, err := r.GetVisible(ctx, owner, composite); err != nil || got.ID != txn.ID {
		t.Fatalf("expected owner composite lookup to succeed, got %v %v", got, err)
	}
}
