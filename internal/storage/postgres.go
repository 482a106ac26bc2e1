package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/vaultsim/vaultd/internal/txstate"
)

// Store is the single Postgres-backed store shared by the API surfaces and
// the auto-advance loop. All wallet mutations run inside row-locked
// transactions; transaction state changes use conditional updates.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// begin starts a pgx transaction with the usual rollback-unless-committed
// guard. The returned done func is safe to defer.
func (s *Store) begin(ctx context.Context) (pgx.Tx, func(committed *bool), error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	done := func(committed *bool) {
		if !*committed {
			_ = tx.Rollback(ctx)
		}
	}
	return tx, done, nil
}

func parseDecimal(raw string, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func terminalStates() []string {
	return []string{
		string(txstate.Completed),
		string(txstate.Failed),
		string(txstate.Rejected),
		string(txstate.Cancelled),
		string(txstate.Timeout),
	}
}
