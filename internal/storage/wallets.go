package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, vault_account_id, asset_id, balance::text, pending::text, locked::text, staked::text, block_height, block_hash, created_at, updated_at`

func scanWallet(row pgx.Row) (*Wallet, error) {
	var w Wallet
	var balanceStr, pendingStr, lockedStr, stakedStr string
	if err := row.Scan(&w.ID, &w.VaultAccountID, &w.AssetID, &balanceStr, &pendingStr, &lockedStr, &stakedStr, &w.BlockHeight, &w.BlockHash, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if w.Balance, err = parseDecimal(balanceStr, "balance"); err != nil {
		return nil, err
	}
	if w.Pending, err = parseDecimal(pendingStr, "pending"); err != nil {
		return nil, err
	}
	if w.Locked, err = parseDecimal(lockedStr, "locked"); err != nil {
		return nil, err
	}
	if w.Staked, err = parseDecimal(stakedStr, "staked"); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWallet returns the canonical wallet row for a (vault, asset) pair: the
// oldest one when several exist.
func (s *Store) GetWallet(ctx context.Context, vaultID uuid.UUID, assetID string) (*Wallet, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE vault_account_id = $1 AND asset_id = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, vaultID, assetID)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return w, nil
}

func (s *Store) ListWallets(ctx context.Context, vaultID uuid.UUID) ([]Wallet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE vault_account_id = $1
		ORDER BY created_at ASC
	`, vaultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

// CreateWallet inserts a new wallet row with zero balances. Multiple rows
// per (vault, asset) are allowed on purpose.
func (s *Store) CreateWallet(ctx context.Context, vaultID uuid.UUID, assetID string) (*Wallet, error) {
	exists, err := s.VaultExists(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("vault account %s: %w", vaultID, ErrNotFound)
	}

	id := uuid.New()
	now := time.Now().UTC()
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO wallets (id, vault_account_id, asset_id, balance, pending, locked, staked, block_height, block_hash, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, 0, 0, 0, '', $4, $4)
	`, id, vaultID, assetID, now); err != nil {
		return nil, err
	}
	return &Wallet{
		ID:             id,
		VaultAccountID: vaultID,
		AssetID:        assetID,
		Balance:        decimal.Zero,
		Pending:        decimal.Zero,
		Locked:         decimal.Zero,
		Staked:         decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *Store) getWalletForUpdate(ctx context.Context, tx pgx.Tx, vaultID uuid.UUID, assetID string) (*Wallet, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE vault_account_id = $1 AND asset_id = $2
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE
	`, vaultID, assetID)
	return scanWallet(row)
}

func (s *Store) getOrCreateWalletForUpdate(ctx context.Context, tx pgx.Tx, vaultID uuid.UUID, assetID string) (*Wallet, error) {
	w, err := s.getWalletForUpdate(ctx, tx, vaultID, assetID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vault_accounts WHERE id = $1)`, vaultID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("vault account %s: %w", vaultID, ErrNotFound)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `
		INSERT INTO wallets (id, vault_account_id, asset_id, balance, pending, locked, staked, block_height, block_hash, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, 0, 0, 0, '', $4, $4)
	`, uuid.New(), vaultID, assetID, now); err != nil {
		return nil, err
	}
	return s.getWalletForUpdate(ctx, tx, vaultID, assetID)
}

func (s *Store) saveWalletBalances(ctx context.Context, tx pgx.Tx, w *Wallet) error {
	now := time.Now().UTC()
	w.UpdatedAt = now
	_, err := tx.Exec(ctx, `
		UPDATE wallets
		SET balance = $1, pending = $2, locked = $3, updated_at = $4
		WHERE id = $5
	`, w.Balance.String(), w.Pending.String(), w.Locked.String(), now, w.ID)
	return err
}

// reserveFundsTx is the sole admission-control gate for outgoing internal
// transfers. External sources pass trivially; internal sources must cover
// the amount from available balance or the reservation is rejected.
func (s *Store) reserveFundsTx(ctx context.Context, tx pgx.Tx, t Transaction) error {
	if t.SourceType != PeerInternal || t.SourceVaultID == nil {
		return nil
	}
	w, err := s.getWalletForUpdate(ctx, tx, *t.SourceVaultID, t.AssetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWalletNotFound
		}
		return err
	}

	available := w.Available()
	if available.LessThan(t.Amount) {
		return &InsufficientBalanceError{Available: available, Requested: t.Amount}
	}
	w.Pending = w.Pending.Add(t.Amount)
	return s.saveWalletBalances(ctx, tx, w)
}

// completeTransactionTx settles both endpoints independently: an internal
// source is debited (balance and pending), an internal destination is
// credited, with the destination wallet created lazily.
func (s *Store) completeTransactionTx(ctx context.Context, tx pgx.Tx, t Transaction) error {
	if t.SourceType == PeerInternal && t.SourceVaultID != nil {
		w, err := s.getWalletForUpdate(ctx, tx, *t.SourceVaultID, t.AssetID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWalletNotFound
			}
			return err
		}
		w.Balance = w.Balance.Sub(t.Amount)
		w.Pending = w.Pending.Sub(t.Amount)
		if w.Pending.IsNegative() {
			w.Pending = decimal.Zero
		}
		if err := s.saveWalletBalances(ctx, tx, w); err != nil {
			return err
		}
	}

	if t.DestType == PeerInternal && t.DestVaultID != nil {
		w, err := s.getOrCreateWalletForUpdate(ctx, tx, *t.DestVaultID, t.AssetID)
		if err != nil {
			return err
		}
		w.Balance = w.Balance.Add(t.Amount)
		if err := s.saveWalletBalances(ctx, tx, w); err != nil {
			return err
		}
		return nil
	}

	// The destination may be another custodied deposit address. Its owner
	// receives the settled amount; a genuinely external address credits
	// nobody.
	if t.DestAddress != "" {
		w, err := s.walletForAddressForUpdate(ctx, tx, t.DestAddress, t.DestTag)
		if err != nil {
			if errors.Is(err, ErrWalletNotFound) {
				return nil
			}
			return err
		}
		w.Balance = w.Balance.Add(t.SettledAmount)
		return s.saveWalletBalances(ctx, tx, w)
	}
	return nil
}

func (s *Store) walletForAddressForUpdate(ctx context.Context, tx pgx.Tx, address, tag string) (*Wallet, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE id IN (
			SELECT wallet_id FROM addresses
			WHERE address = $1 AND ($2 = '' OR tag = $2)
		)
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE
	`, address, tag)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return w, nil
}

// rollbackTransactionTx releases a reservation. Pending is clamped at zero
// so a double rollback can never drive it negative.
func (s *Store) rollbackTransactionTx(ctx context.Context, tx pgx.Tx, t Transaction) error {
	if t.SourceType != PeerInternal || t.SourceVaultID == nil {
		return nil
	}
	w, err := s.getWalletForUpdate(ctx, tx, *t.SourceVaultID, t.AssetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Nothing was reserved; rollback is a no-op.
			return nil
		}
		return err
	}
	w.Pending = w.Pending.Sub(t.Amount)
	if w.Pending.IsNegative() {
		w.Pending = decimal.Zero
	}
	return s.saveWalletBalances(ctx, tx, w)
}

// SetWalletLocked administratively freezes part of a wallet's balance,
// independent of any transaction.
func (s *Store) SetWalletLocked(ctx context.Context, walletID uuid.UUID, locked decimal.Decimal) error {
	if locked.IsNegative() {
		return fmt.Errorf("locked amount must be non-negative")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE wallets SET locked = $1, updated_at = $2 WHERE id = $3
	`, locked.String(), time.Now().UTC(), walletID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}
