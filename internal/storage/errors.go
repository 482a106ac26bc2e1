package storage

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vaultsim/vaultd/internal/txstate"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrDuplicateExternalID = errors.New("duplicate external transaction id")
)

// InsufficientBalanceError rejects a reservation at admission time. Both
// values are carried so callers can surface them verbatim.
type InsufficientBalanceError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s", e.Available.String(), e.Requested.String())
}

// StateConflictError is returned when a conditional state update finds the
// row already moved: the losing writer of a race observes this instead of
// re-running settlement.
type StateConflictError struct {
	Current   txstate.State
	Requested txstate.State
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("transaction already in state %s, cannot apply %s", e.Current, e.Requested)
}
