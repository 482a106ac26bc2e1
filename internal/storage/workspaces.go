package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateWorkspace(ctx context.Context, name string) (*Workspace, error) {
	if name == "" {
		return nil, fmt.Errorf("workspace name is required")
	}
	ws := &Workspace{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workspaces (id, name, created_at) VALUES ($1, $2, $3)
	`, ws.ID, ws.Name, ws.CreatedAt)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (s *Store) GetWorkspace(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	var ws Workspace
	row := s.pool.QueryRow(ctx, `SELECT id, name, created_at FROM workspaces WHERE id = $1`, id)
	if err := row.Scan(&ws.ID, &ws.Name, &ws.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("workspace %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &ws, nil
}

func (s *Store) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM workspaces ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workspaces []Workspace
	for rows.Next() {
		var ws Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.CreatedAt); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

func (s *Store) InsertAPIKey(ctx context.Context, workspaceID uuid.UUID, prefix, keyHash string) (*APIKey, error) {
	key := &APIKey{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Prefix:      prefix,
		KeyHash:     keyHash,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (id, workspace_id, prefix, key_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, key.ID, key.WorkspaceID, key.Prefix, key.KeyHash, key.CreatedAt)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (s *Store) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	var key APIKey
	row := s.pool.QueryRow(ctx, `
		SELECT id, workspace_id, prefix, key_hash, revoked_at, created_at
		FROM api_keys
		WHERE prefix = $1
	`, prefix)
	if err := row.Scan(&key.ID, &key.WorkspaceID, &key.Prefix, &key.KeyHash, &key.RevokedAt, &key.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("api key: %w", ErrNotFound)
		}
		return nil, err
	}
	return &key, nil
}

func (s *Store) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE api_keys SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL
	`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key %s: %w", id, ErrNotFound)
	}
	return nil
}
