package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const vaultColumns = `id, workspace_id, name, customer_ref_id, auto_fuel, hidden, created_at, updated_at`

func scanVault(row pgx.Row) (*VaultAccount, error) {
	var v VaultAccount
	if err := row.Scan(&v.ID, &v.WorkspaceID, &v.Name, &v.CustomerRefID, &v.AutoFuel, &v.Hidden, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) CreateVaultAccount(ctx context.Context, v *VaultAccount) error {
	if v.Name == "" {
		return fmt.Errorf("vault account name is required")
	}
	if v.WorkspaceID == uuid.Nil {
		return fmt.Errorf("workspace id is required")
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vault_accounts (id, workspace_id, name, customer_ref_id, auto_fuel, hidden, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, v.ID, v.WorkspaceID, v.Name, v.CustomerRefID, v.AutoFuel, v.Hidden, now)
	return err
}

func (s *Store) GetVaultAccount(ctx context.Context, id uuid.UUID) (*VaultAccount, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+vaultColumns+` FROM vault_accounts WHERE id = $1`, id)
	v, err := scanVault(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("vault account %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return v, nil
}

func (s *Store) ListVaultAccounts(ctx context.Context, workspaceID uuid.UUID, includeHidden bool) ([]VaultAccount, error) {
	query := `SELECT ` + vaultColumns + ` FROM vault_accounts WHERE workspace_id = $1`
	if !includeHidden {
		query += ` AND NOT hidden`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vaults []VaultAccount
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		vaults = append(vaults, *v)
	}
	return vaults, rows.Err()
}

func (s *Store) UpdateVaultAccount(ctx context.Context, v *VaultAccount) error {
	v.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE vault_accounts
		SET name = $1, customer_ref_id = $2, auto_fuel = $3, hidden = $4, updated_at = $5
		WHERE id = $6
	`, v.Name, v.CustomerRefID, v.AutoFuel, v.Hidden, v.UpdatedAt, v.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vault account %s: %w", v.ID, ErrNotFound)
	}
	return nil
}

func (s *Store) VaultExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vault_accounts WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}
