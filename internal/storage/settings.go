package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetBoolSetting reads a persisted flag. A missing row reads as false so a
// fresh database starts with every toggle off.
func (s *Store) GetBoolSetting(ctx context.Context, name string) (bool, error) {
	var value bool
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE name = $1`, name).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return value, nil
}

func (s *Store) SetBoolSetting(ctx context.Context, name string, value bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (name, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, name, value, time.Now().UTC())
	return err
}
