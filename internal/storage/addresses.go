package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vaultsim/vaultd/internal/addrgen"
)

const addressColumns = `id, wallet_id, address, tag, format, created_at`

// InsertAddress records a deposit address for a wallet. Account-based and
// memo-based assets get exactly one address per wallet; only address-based
// assets may grow additional ones.
func (s *Store) InsertAddress(ctx context.Context, style addrgen.Style, a *Address) error {
	tx, done, err := s.begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer done(&committed)

	if !style.MultiAddress() {
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM addresses WHERE wallet_id = $1`, a.WalletID).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("wallet %s already has its canonical address", a.WalletID)
		}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	if a.Format == "" {
		a.Format = AddressFormatStandard
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO addresses (id, wallet_id, address, tag, format, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.WalletID, a.Address, a.Tag, a.Format, a.CreatedAt)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) ListAddresses(ctx context.Context, walletID uuid.UUID) ([]Address, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+addressColumns+` FROM addresses WHERE wallet_id = $1 ORDER BY created_at ASC
	`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.WalletID, &a.Address, &a.Tag, &a.Format, &a.CreatedAt); err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// CanonicalAddress returns the oldest deposit address provisioned for a
// vault's wallet in the given asset. Outgoing internal transfers record it
// as their source address so the owning workspace's address-based view
// includes them.
func (s *Store) CanonicalAddress(ctx context.Context, vaultID uuid.UUID, assetID string) (string, error) {
	var address string
	err := s.pool.QueryRow(ctx, `
		SELECT a.address
		FROM addresses a
		JOIN wallets w ON w.id = a.wallet_id
		WHERE w.vault_account_id = $1 AND w.asset_id = $2
		ORDER BY a.created_at ASC
		LIMIT 1
	`, vaultID, assetID).Scan(&address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("address for vault %s asset %s: %w", vaultID, assetID, ErrNotFound)
		}
		return "", err
	}
	return address, nil
}

// WalletForAddress finds the wallet owning a deposit address, matching the
// tag as well for memo-style assets.
func (s *Store) WalletForAddress(ctx context.Context, address, tag string) (*Wallet, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE id IN (
			SELECT wallet_id FROM addresses
			WHERE address = $1 AND ($2 = '' OR tag = $2)
		)
		ORDER BY created_at ASC
		LIMIT 1
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
