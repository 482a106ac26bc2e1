package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vaultsim/vaultd/internal/txstate"
)

const transactionColumns = `id, workspace_id, vault_account_id, asset_id,
	source_type, source_vault_id, source_address,
	dest_type, dest_vault_id, dest_address, dest_tag,
	amount::text, settled_amount::text, state, sub_status, tx_hash,
	fee::text, network_fee::text, service_fee::text, fee_currency,
	treat_as_gross, frozen, failure_reason, replaced_by_tx_id,
	confirmations, COALESCE(external_tx_id, ''), customer_ref_id, operation,
	created_at, updated_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	var amountStr, settledStr, feeStr, networkFeeStr, serviceFeeStr string
	var state string
	if err := row.Scan(
		&t.ID, &t.WorkspaceID, &t.VaultAccountID, &t.AssetID,
		&t.SourceType, &t.SourceVaultID, &t.SourceAddress,
		&t.DestType, &t.DestVaultID, &t.DestAddress, &t.DestTag,
		&amountStr, &settledStr, &state, &t.SubStatus, &t.TxHash,
		&feeStr, &networkFeeStr, &serviceFeeStr, &t.FeeCurrency,
		&t.TreatAsGross, &t.Frozen, &t.FailureReason, &t.ReplacedByTxID,
		&t.Confirmations, &t.ExternalTxID, &t.CustomerRefID, &t.Operation,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.State = txstate.State(state)

	var err error
	if t.Amount, err = parseDecimal(amountStr, "amount"); err != nil {
		return nil, err
	}
	if t.SettledAmount, err = parseDecimal(settledStr, "settled_amount"); err != nil {
		return nil, err
	}
	if t.Fee, err = parseDecimal(feeStr, "fee"); err != nil {
		return nil, err
	}
	if t.NetworkFee, err = parseDecimal(networkFeeStr, "network_fee"); err != nil {
		return nil, err
	}
	if t.ServiceFee, err = parseDecimal(serviceFeeStr, "service_fee"); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) insertTransactionTx(ctx context.Context, tx pgx.Tx, t *Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (
			id, workspace_id, vault_account_id, asset_id,
			source_type, source_vault_id, source_address,
			dest_type, dest_vault_id, dest_address, dest_tag,
			amount, settled_amount, state, sub_status, tx_hash,
			fee, network_fee, service_fee, fee_currency,
			treat_as_gross, frozen, failure_reason, replaced_by_tx_id,
			confirmations, external_tx_id, customer_ref_id, operation,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, NULLIF($26, ''), $27, $28, $29, $30
		)
	`,
		t.ID, t.WorkspaceID, t.VaultAccountID, t.AssetID,
		t.SourceType, t.SourceVaultID, t.SourceAddress,
		t.DestType, t.DestVaultID, t.DestAddress, t.DestTag,
		t.Amount.String(), t.SettledAmount.String(), string(t.State), t.SubStatus, t.TxHash,
		t.Fee.String(), t.NetworkFee.String(), t.ServiceFee.String(), t.FeeCurrency,
		t.TreatAsGross, t.Frozen, t.FailureReason, t.ReplacedByTxID,
		t.Confirmations, t.ExternalTxID, t.CustomerRefID, t.Operation,
		t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// CreateTransaction atomically checks external-id uniqueness, reserves
// source funds, and inserts the row. A losing concurrent create rolls the
// whole database transaction back, so no orphaned pending balance survives
// a duplicate-id conflict.
func (s *Store) CreateTransaction(ctx context.Context, t *Transaction) error {
	tx, done, err := s.begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer done(&committed)

	if t.ExternalTxID != "" {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, t.ExternalTxID); err != nil {
			return err
		}
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM transactions WHERE external_tx_id = $1)
		`, t.ExternalTxID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrDuplicateExternalID
		}
	}

	if err := s.reserveFundsTx(ctx, tx, *t); err != nil {
		return err
	}

	if err := s.insertTransactionTx(ctx, tx, t); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateExternalID
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	args := []any{}

	add := func(clause string, value any) {
		args = append(args, value)
		query += " AND " + clause + "$" + strconv.Itoa(len(args))
	}

	if filter.WorkspaceID != uuid.Nil {
		add("workspace_id = ", filter.WorkspaceID)
	}
	if filter.AssetID != "" {
		add("asset_id = ", filter.AssetID)
	}
	if filter.State != "" {
		add("state = ", string(filter.State))
	}
	if filter.TxHash != "" {
		add("tx_hash = ", filter.TxHash)
	}
	if filter.After != nil {
		add("created_at >= ", *filter.After)
	}
	if filter.Before != nil {
		add("created_at < ", *filter.Before)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// ListAutoAdvance fetches candidates for the auto-advance loop: every
// non-terminal, non-frozen transaction, oldest first for fairness.
func (s *Store) ListAutoAdvance(ctx context.Context) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE state <> ALL($1::text[]) AND NOT frozen
		ORDER BY created_at ASC
	`, terminalStates())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// ApplyTransition performs the conditional state update plus its coupled
// ledger settlement in one database transaction. A writer that finds the
// row no longer in `from` gets a StateConflictError and mutates nothing.
func (s *Store) ApplyTransition(ctx context.Context, id uuid.UUID, from, to txstate.State, upd TransitionUpdate, settle SettleMode) (*Transaction, error) {
	tx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer done(&committed)

	now := time.Now().UTC()
	row := tx.QueryRow(ctx, `
		UPDATE transactions
		SET state = $1,
		    sub_status = COALESCE($2, sub_status),
		    tx_hash = COALESCE($3, tx_hash),
		    confirmations = COALESCE($4, confirmations),
		    failure_reason = COALESCE($5, failure_reason),
		    replaced_by_tx_id = COALESCE($6, replaced_by_tx_id),
		    updated_at = $7
		WHERE id = $8 AND state = $9
		RETURNING `+transactionColumns+`
	`, string(to), upd.SubStatus, upd.TxHash, upd.Confirmations, upd.FailureReason, upd.ReplacedByTxID, now, id, string(from))

	updated, err := scanTransaction(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		// The row moved under us, or never existed. Report which.
		var current string
		if scanErr := tx.QueryRow(ctx, `SELECT state FROM transactions WHERE id = $1`, id).Scan(&current); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
			}
			return nil, scanErr
		}
		return nil, &StateConflictError{Current: txstate.State(current), Requested: to}
	}

	switch settle {
	case SettleComplete:
		if err := s.completeTransactionTx(ctx, tx, *updated); err != nil {
			return nil, err
		}
	case SettleRollback:
		if err := s.rollbackTransactionTx(ctx, tx, *updated); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true
	return updated, nil
}

// SetTransactionFrozen flips the freeze flag. Freezing bypasses the
// transition table but is still blocked once the transaction is terminal.
func (s *Store) SetTransactionFrozen(ctx context.Context, id uuid.UUID, frozen bool) (*Transaction, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE transactions
		SET frozen = $1, updated_at = $2
		WHERE id = $3 AND state <> ALL($4::text[])
		RETURNING `+transactionColumns+`
	`, frozen, time.Now().UTC(), id, terminalStates())

	t, err := scanTransaction(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		var current string
		if scanErr := s.pool.QueryRow(ctx, `SELECT state FROM transactions WHERE id = $1`, id).Scan(&current); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
			}
			return nil, scanErr
		}
		return nil, &StateConflictError{Current: txstate.State(current), Requested: txstate.State(current)}
	}
	return t, nil
}

// DropAndReplace cancels the original with the drop sub-status, releases
// its reservation, reserves for the replacement, and inserts the
// replacement, all in one database transaction. The net wallet effect is
// zero because the replacement clones the original amount.
func (s *Store) DropAndReplace(ctx context.Context, original Transaction, replacement *Transaction) (*Transaction, error) {
	tx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer done(&committed)

	now := time.Now().UTC()
	subStatus := SubStatusDroppedByBlockchain
	row := tx.QueryRow(ctx, `
		UPDATE transactions
		SET state = $1, sub_status = $2, replaced_by_tx_id = $3, updated_at = $4
		WHERE id = $5 AND state = $6
		RETURNING `+transactionColumns+`
	`, string(txstate.Cancelled), subStatus, replacement.ID, now, original.ID, string(original.State))

	dropped, err := scanTransaction(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		var current string
		if scanErr := tx.QueryRow(ctx, `SELECT state FROM transactions WHERE id = $1`, original.ID).Scan(&current); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return nil, fmt.Errorf("transaction %s: %w", original.ID, ErrNotFound)
			}
			return nil, scanErr
		}
		return nil, &StateConflictError{Current: txstate.State(current), Requested: txstate.Cancelled}
	}

	if err := s.rollbackTransactionTx(ctx, tx, *dropped); err != nil {
		return nil, err
	}
	if err := s.reserveFundsTx(ctx, tx, *replacement); err != nil {
		return nil, err
	}
	if err := s.insertTransactionTx(ctx, tx, replacement); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true
	return dropped, nil
}

// AddressValuesForWorkspace collects every address string owned by a
// workspace through its vaults and wallets. This is the basis of tenant
// visibility: transactions are scoped by address ownership, not by the
// advisory workspace column.
func (s *Store) AddressValuesForWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.address
		FROM addresses a
		JOIN wallets w ON w.id = a.wallet_id
		JOIN vault_accounts v ON v.id = w.vault_account_id
		WHERE v.workspace_id = $1
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, rows.Err()
}

// ListTransactionsByAddresses returns every transaction touching one of the
// given addresses on either side, newest first.
func (s *Store) ListTransactionsByAddresses(ctx context.Context, addresses []string, filter TransactionFilter) ([]Transaction, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (source_address = ANY($1) OR dest_address = ANY($1))`
	args := []any{addresses}

	if filter.AssetID != "" {
		args = append(args, filter.AssetID)
		query += " AND asset_id = $" + strconv.Itoa(len(args))
	}
	if filter.State != "" {
		args = append(args, string(filter.State))
		query += " AND state = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// WorkspaceIDsForAddresses returns the distinct workspaces owning any of
// the given addresses. Used to fan notifications out to every tenant that
// can see a transaction.
func (s *Store) WorkspaceIDsForAddresses(ctx context.Context, addresses []string) ([]uuid.UUID, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT v.workspace_id
		FROM addresses a
		JOIN wallets w ON w.id = a.wallet_id
		JOIN vault_accounts v ON v.id = w.vault_account_id
		WHERE a.address = ANY($1)
	`, addresses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
