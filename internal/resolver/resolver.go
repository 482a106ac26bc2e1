// Package resolver computes tenant visibility of transactions. Visibility
// is derived from address ownership, not from the stored workspace column:
// a transaction is visible to every workspace owning an address on either
// side, each seeing the same row from its own perspective.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vaultsim/vaultd/internal/storage"
)

type Perspective string

const (
	PerspectiveOutgoing Perspective = "OUTGOING"
	PerspectiveIncoming Perspective = "INCOMING"
	PerspectiveInternal Perspective = "INTERNAL"
)

type Store interface {
	AddressValuesForWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]string, error)
	ListTransactionsByAddresses(ctx context.Context, addresses []string, filter storage.TransactionFilter) ([]storage.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
}

// VisibleTransaction annotates a transaction row with the querying
// workspace's view of it. The underlying row is shared across tenants.
type VisibleTransaction struct {
	storage.Transaction
	Perspective         Perspective
	CounterpartyAddress string
}

type Resolver struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// ParseCompositeID splits an id of the form {workspaceId}::{transactionId}.
// A plain transaction id parses with a nil workspace. Anything else is
// rejected rather than silently treated as a plain id.
func ParseCompositeID(raw string) (*uuid.UUID, uuid.UUID, error) {
	if !strings.Contains(raw, "::") {
		txID, err := uuid.Parse(raw)
		if err != nil {
			return nil, uuid.Nil, fmt.Errorf("malformed transaction id %q", raw)
		}
		return nil, txID, nil
	}

	parts := strings.Split(raw, "::")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, uuid.Nil, fmt.Errorf("malformed composite id %q", raw)
	}
	wsID, err := uuid.Parse(parts[0])
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("malformed composite id %q: bad workspace id", raw)
	}
	txID, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("malformed composite id %q: bad transaction id", raw)
	}
	return &wsID, txID, nil
}

// VisibleTransactions lists every transaction touching an address owned by
// the workspace, annotated with that workspace's perspective.
func (r *Resolver) VisibleTransactions(ctx context.Context, workspaceID uuid.UUID, filter storage.TransactionFilter) ([]VisibleTransaction, error) {
	addrs, err := r.store.AddressValuesForWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, nil
	}

	txs, err := r.store.ListTransactionsByAddresses(ctx, addrs, filter)
	if err != nil {
		return nil, err
	}

	owned := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		owned[a] = struct{}{}
	}

	out := make([]VisibleTransaction, 0, len(txs))
	for _, t := range txs {
		out = append(out, annotate(t, owned))
	}
	return out, nil
}

// GetVisible fetches one transaction as seen by the workspace. Composite
// ids referencing a different workspace resolve to not-found rather than
// leaking another tenant's view.
func (r *Resolver) GetVisible(ctx context.Context, workspaceID uuid.UUID, rawID string) (*VisibleTransaction, error) {
	compositeWS, txID, err := ParseCompositeID(rawID)
	if err != nil {
		return nil, err
	}
	if compositeWS != nil && *compositeWS != workspaceID {
		return nil, fmt.Errorf("transaction %s: %w", txID, storage.ErrNotFound)
	}

	t, err := r.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	addrs, err := r.store.AddressValuesForWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		owned[a] = struct{}{}
	}

	_, ownsSource := owned[t.SourceAddress]
	_, ownsDest := owned[t.DestAddress]
	if !ownsSource && !ownsDest && t.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("transaction %s: %w", txID, storage.ErrNotFound)
	}

	v := annotate(*t, owned)
	return &v, nil
}

func annotate(t storage.Transaction, owned map[string]struct{}) VisibleTransaction {
	_, ownsSource := owned[t.SourceAddress]
	_, ownsDest := owned[t.DestAddress]

	v := VisibleTransaction{Transaction: t}
	switch {
	case ownsSource && ownsDest:
		v.Perspective = PerspectiveInternal
	case ownsSource:
		v.Perspective = PerspectiveOutgoing
		v.CounterpartyAddress = t.DestAddress
	case ownsDest:
		v.Perspective = PerspectiveIncoming
		v.CounterpartyAddress = t.SourceAddress
	default:
		// Reachable only via the advisory workspace hint.
		v.Perspective = PerspectiveOutgoing
		v.CounterpartyAddress = t.DestAddress
	}
	return v
}
