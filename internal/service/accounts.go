package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vaultsim/vaultd/internal/addrgen"
	"github.com/vaultsim/vaultd/internal/storage"
)

type AccountsStore interface {
	GetAsset(ctx context.Context, id string) (*storage.Asset, error)
	CreateVaultAccount(ctx context.Context, v *storage.VaultAccount) error
	GetVaultAccount(ctx context.Context, id uuid.UUID) (*storage.VaultAccount, error)
	ListVaultAccounts(ctx context.Context, workspaceID uuid.UUID, includeHidden bool) ([]storage.VaultAccount, error)
	UpdateVaultAccount(ctx context.Context, v *storage.VaultAccount) error
	CreateWallet(ctx context.Context, vaultID uuid.UUID, assetID string) (*storage.Wallet, error)
	GetWallet(ctx context.Context, vaultID uuid.UUID, assetID string) (*storage.Wallet, error)
	ListWallets(ctx context.Context, vaultID uuid.UUID) ([]storage.Wallet, error)
	InsertAddress(ctx context.Context, style addrgen.Style, a *storage.Address) error
	ListAddresses(ctx context.Context, walletID uuid.UUID) ([]storage.Address, error)
}

// Accounts provisions vaults, wallets, and deposit addresses for a
// workspace.
type Accounts struct {
	store  AccountsStore
	logger *slog.Logger
}

func NewAccounts(store AccountsStore, logger *slog.Logger) *Accounts {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accounts{store: store, logger: logger}
}

func (a *Accounts) CreateVault(ctx context.Context, workspaceID uuid.UUID, name, customerRefID string, autoFuel, hidden bool) (*storage.VaultAccount, error) {
	if strings.TrimSpace(name) == "" {
		return nil, validationErr("name", "is required")
	}
	v := &storage.VaultAccount{
		WorkspaceID:   workspaceID,
		Name:          strings.TrimSpace(name),
		CustomerRefID: customerRefID,
		AutoFuel:      autoFuel,
		Hidden:        hidden,
	}
	if err := a.store.CreateVaultAccount(ctx, v); err != nil {
		return nil, err
	}
	a.logger.Info("vault account created", "vault_id", v.ID, "workspace_id", workspaceID)
	return v, nil
}

// vaultForWorkspace fetches a vault and hides other tenants' vaults behind
// not-found.
func (a *Accounts) vaultForWorkspace(ctx context.Context, workspaceID, vaultID uuid.UUID) (*storage.VaultAccount, error) {
	v, err := a.store.GetVaultAccount(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	if v.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("vault account %s: %w", vaultID, storage.ErrNotFound)
	}
	return v, nil
}

func (a *Accounts) GetVault(ctx context.Context, workspaceID, vaultID uuid.UUID) (*storage.VaultAccount, error) {
	return a.vaultForWorkspace(ctx, workspaceID, vaultID)
}

func (a *Accounts) ListVaults(ctx context.Context, workspaceID uuid.UUID, includeHidden bool) ([]storage.VaultAccount, error) {
	return a.store.ListVaultAccounts(ctx, workspaceID, includeHidden)
}

// CreateWallet provisions an asset wallet under a vault plus its canonical
// deposit address. Memo-based assets also get a routing tag.
func (a *Accounts) CreateWallet(ctx context.Context, workspaceID, vaultID uuid.UUID, assetID string) (*storage.Wallet, *storage.Address, error) {
	if _, err := a.vaultForWorkspace(ctx, workspaceID, vaultID); err != nil {
		return nil, nil, err
	}
	asset, err := a.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, nil, err
	}
	if !asset.Active {
		return nil, nil, validationErr("asset_id", "asset %s is not active", asset.ID)
	}

	wallet, err := a.store.CreateWallet(ctx, vaultID, asset.ID)
	if err != nil {
		return nil, nil, err
	}

	addr, err := a.newAddress(ctx, asset, wallet.ID)
	if err != nil {
		return nil, nil, err
	}

	a.logger.Info("wallet created",
		"wallet_id", wallet.ID,
		"vault_id", vaultID,
		"asset", asset.ID,
		"address", addr.Address,
	)
	return wallet, addr, nil
}

// NewDepositAddress adds another address to a wallet. The storage layer
// rejects this for single-address styles.
func (a *Accounts) NewDepositAddress(ctx context.Context, workspaceID, vaultID uuid.UUID, assetID string) (*storage.Address, error) {
	if _, err := a.vaultForWorkspace(ctx, workspaceID, vaultID); err != nil {
		return nil, err
	}
	asset, err := a.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if !asset.AddressingStyle.MultiAddress() {
		return nil, validationErr("asset_id", "asset %s supports a single deposit address", asset.ID)
	}
	wallet, err := a.store.GetWallet(ctx, vaultID, asset.ID)
	if err != nil {
		return nil, err
	}
	return a.newAddress(ctx, asset, wallet.ID)
}

func (a *Accounts) newAddress(ctx context.Context, asset *storage.Asset, walletID uuid.UUID) (*storage.Address, error) {
	value, err := addrgen.NewAddress(asset.AddressingStyle)
	if err != nil {
		return nil, err
	}
	addr := &storage.Address{
		WalletID: walletID,
		Address:  value,
		Format:   storage.AddressFormatStandard,
	}
	if asset.AddressingStyle == addrgen.MemoBased {
		tag, err := addrgen.NewMemo()
		if err != nil {
			return nil, err
		}
		addr.Tag = tag
	}
	if err := a.store.InsertAddress(ctx, asset.AddressingStyle, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

func (a *Accounts) Balances(ctx context.Context, workspaceID, vaultID uuid.UUID) ([]storage.Wallet, error) {
	if _, err := a.vaultForWorkspace(ctx, workspaceID, vaultID); err != nil {
		return nil, err
	}
	return a.store.ListWallets(ctx, vaultID)
}

func (a *Accounts) Addresses(ctx context.Context, workspaceID, vaultID uuid.UUID, assetID string) ([]storage.Address, error) {
	if _, err := a.vaultForWorkspace(ctx, workspaceID, vaultID); err != nil {
		return nil, err
	}
	wallet, err := a.store.GetWallet(ctx, vaultID, assetID)
	if err != nil {
		return nil, err
	}
	return a.store.ListAddresses(ctx, wallet.ID)
}
