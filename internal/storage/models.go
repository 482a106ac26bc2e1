package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaultsim/vaultd/internal/addrgen"
	"github.com/vaultsim/vaultd/internal/txstate"
)

// Transfer endpoint types.
const (
	PeerInternal = "INTERNAL"
	PeerExternal = "EXTERNAL"
)

// Sub-status attached to a transaction cancelled by the drop/replace flow.
const SubStatusDroppedByBlockchain = "DROPPED_BY_BLOCKCHAIN"

// Address format variants kept for provider compatibility.
const (
	AddressFormatStandard = "STANDARD"
	AddressFormatLegacy   = "LEGACY"
)

// Name of the persisted flag gating the auto-advance loop.
const SettingAutoAdvance = "autotransition.enabled"

// feeBumpFamily is the one asset family whose transactions may be dropped
// and replaced with a higher network fee.
const feeBumpFamily = "ETH"

type Asset struct {
	ID              string
	Name            string
	Symbol          string
	Decimals        int
	AddressingStyle addrgen.Style
	ContractAddress string
	NativeAssetID   string
	BaseFee         decimal.Decimal
	FeeAssetID      string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FeeCurrency resolves the asset fees are charged in: the configured fee
// asset, then the native asset, then the asset itself.
func (a Asset) FeeCurrency() string {
	if a.FeeAssetID != "" {
		return a.FeeAssetID
	}
	if a.NativeAssetID != "" {
		return a.NativeAssetID
	}
	return a.ID
}

func (a Asset) SupportsFeeBump() bool {
	return a.ID == feeBumpFamily || a.NativeAssetID == feeBumpFamily
}

type Workspace struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type APIKey struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Prefix      string
	KeyHash     string
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

type VaultAccount struct {
	ID            uuid.UUID
	WorkspaceID   uuid.UUID
	Name          string
	CustomerRefID string
	AutoFuel      bool
	Hidden        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Wallet is a per-(vault, asset) balance record. The pair is deliberately
// not unique in storage; when several rows exist the oldest one is the
// canonical target for ledger operations.
type Wallet struct {
	ID             uuid.UUID
	VaultAccountID uuid.UUID
	AssetID        string
	Balance        decimal.Decimal
	Pending        decimal.Decimal
	Locked         decimal.Decimal
	Staked         decimal.Decimal
	BlockHeight    int64
	BlockHash      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Available is the spendable portion: reserved and frozen funds excluded.
func (w Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.Pending).Sub(w.Locked)
}

type Address struct {
	ID        uuid.UUID
	WalletID  uuid.UUID
	Address   string
	Tag       string
	Format    string
	CreatedAt time.Time
}

type Transaction struct {
	ID             uuid.UUID
	WorkspaceID    uuid.UUID // advisory hint; visibility is resolved by address ownership
	VaultAccountID *uuid.UUID
	AssetID        string
	SourceType     string
	SourceVaultID  *uuid.UUID
	SourceAddress  string
	DestType       string
	DestVaultID    *uuid.UUID
	DestAddress    string
	DestTag        string
	Amount         decimal.Decimal
	SettledAmount  decimal.Decimal
	State          txstate.State
	SubStatus      string
	TxHash         string
	Fee            decimal.Decimal
	NetworkFee     decimal.Decimal
	ServiceFee     decimal.Decimal
	FeeCurrency    string
	TreatAsGross   bool
	Frozen         bool
	FailureReason  string
	ReplacedByTxID *uuid.UUID
	Confirmations  int
	ExternalTxID   string
	CustomerRefID  string
	Operation      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TransactionFilter narrows operator and provider listings. Zero values
// mean "no constraint".
type TransactionFilter struct {
	WorkspaceID uuid.UUID
	AssetID     string
	State       txstate.State
	TxHash      string
	Before      *time.Time
	After       *time.Time
	Limit       int
	Offset      int
}

type Setting struct {
	Name      string
	BoolValue bool
	UpdatedAt time.Time
}

// TransitionUpdate carries the optional field changes coupled to a state
// transition. Nil pointers leave the stored value untouched.
type TransitionUpdate struct {
	SubStatus      *string
	TxHash         *string
	Confirmations  *int
	FailureReason  *string
	ReplacedByTxID *uuid.UUID
}

// SettleMode selects the ledger side effect applied atomically with a state
// transition.
type SettleMode int

const (
	SettleNone SettleMode = iota
	SettleComplete
	SettleRollback
)
