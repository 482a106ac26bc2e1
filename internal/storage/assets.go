package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vaultsim/vaultd/internal/addrgen"
)

const assetColumns = `id, name, symbol, decimals, addressing_style, contract_address, native_asset_id, base_fee::text, fee_asset_id, active, created_at, updated_at`

func scanAsset(row pgx.Row) (*Asset, error) {
	var a Asset
	var style, baseFeeStr string
	if err := row.Scan(&a.ID, &a.Name, &a.Symbol, &a.Decimals, &style, &a.ContractAddress, &a.NativeAssetID, &baseFeeStr, &a.FeeAssetID, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.AddressingStyle = addrgen.Style(style)
	var err error
	if a.BaseFee, err = parseDecimal(baseFeeStr, "base_fee"); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) CreateAsset(ctx context.Context, a *Asset) error {
	a.ID = strings.ToUpper(strings.TrimSpace(a.ID))
	if a.ID == "" {
		return fmt.Errorf("asset id is required")
	}
	if a.BaseFee.IsNegative() {
		return fmt.Errorf("base fee must be non-negative")
	}

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assets (id, name, symbol, decimals, addressing_style, contract_address, native_asset_id, base_fee, fee_asset_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, a.ID, a.Name, a.Symbol, a.Decimals, string(a.AddressingStyle), a.ContractAddress, a.NativeAssetID, a.BaseFee.String(), a.FeeAssetID, a.Active, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("asset %s already exists", a.ID)
		}
		return err
	}
	return nil
}

func (s *Store) GetAsset(ctx context.Context, id string) (*Asset, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	row := s.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id)
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("asset %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return a, nil
}

func (s *Store) ListAssets(ctx context.Context, activeOnly bool) ([]Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

func (s *Store) UpdateAsset(ctx context.Context, a *Asset) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE assets
		SET name = $1, symbol = $2, decimals = $3, contract_address = $4, native_asset_id = $5, base_fee = $6, fee_asset_id = $7, active = $8, updated_at = $9
		WHERE id = $10
	`, a.Name, a.Symbol, a.Decimals, a.ContractAddress, a.NativeAssetID, a.BaseFee.String(), a.FeeAssetID, a.Active, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

// DeactivateAsset soft-deletes: the row stays so existing wallets and
// transactions keep resolving, but new transactions are refused.
func (s *Store) DeactivateAsset(ctx context.Context, id string) error {
	id = strings.ToUpper(strings.TrimSpace(id))
	tag, err := s.pool.Exec(ctx, `UPDATE assets SET active = FALSE, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	return nil
}
