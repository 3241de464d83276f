package repository

import (
	"context"
	"errors"

	"raid_backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// FindBySourceTx looks up an existing entry for an idempotency key inside
// the caller's transaction. Returns nil when no entry exists.
func (r *LedgerRepository) FindBySourceTx(ctx context.Context, tx pgx.Tx, sourceFunction, externalID string) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := tx.QueryRow(ctx,
		`SELECT id, address, delta, reason, source_function, COALESCE(external_id, ''), resulting_balance, created_at
		 FROM ledger_entries
		 WHERE source_function = $1 AND external_id = $2`,
		sourceFunction, externalID,
	).Scan(&e.ID, &e.Address, &e.Delta, &e.Reason, &e.SourceFunction,
		&e.ExternalID, &e.ResultingBalance, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// AppendWithTx inserts one entry in the caller's transaction. The entry is
// immutable from this point; no update or delete path exists on this table.
func (r *LedgerRepository) AppendWithTx(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	var externalID *string
	if e.ExternalID != "" {
		externalID = &e.ExternalID
	}

	return tx.QueryRow(ctx,
		`INSERT INTO ledger_entries (address, delta, reason, source_function, external_id, resulting_balance)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		e.Address, e.Delta, e.Reason, e.SourceFunction, externalID, e.ResultingBalance,
	).Scan(&e.ID, &e.CreatedAt)
}

// UpdateBalanceTx applies the projected balance and lifetime counters on the
// locked profile row, in the same transaction as the entry append.
func (r *LedgerRepository) UpdateBalanceTx(ctx context.Context, tx pgx.Tx, address string, balance int64, delta int64) error {
	var earned, spent int64
	if delta > 0 {
		earned = delta
	} else {
		spent = -delta
	}
	_, err := tx.Exec(ctx,
		`UPDATE profiles
		 SET coins = $2,
		     lifetime_earned = lifetime_earned + $3,
		     lifetime_spent = lifetime_spent + $4
		 WHERE address = $1`,
		address, balance, earned, spent)
	return err
}

// GetByAddress returns the most recent entries for an address.
func (r *LedgerRepository) GetByAddress(ctx context.Context, address string, limit, offset int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, address, delta, reason, source_function, COALESCE(external_id, ''), resulting_balance, created_at
		 FROM ledger_entries
		 WHERE address = $1
		 ORDER BY id DESC
		 LIMIT $2 OFFSET $3`,
		address, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

// AllByAddress returns every entry for an address in chronological order.
// Used by the auditor, which needs the complete stream to detect patterns.
func (r *LedgerRepository) AllByAddress(ctx context.Context, address string) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, address, delta, reason, source_function, COALESCE(external_id, ''), resulting_balance, created_at
		 FROM ledger_entries
		 WHERE address = $1
		 ORDER BY id ASC`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

// SumDeltas computes the replayed balance for reconciliation.
func (r *LedgerRepository) SumDeltas(ctx context.Context, address string) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE address = $1`,
		address).Scan(&sum)
	return sum, err
}

// ActiveAddresses lists addresses that have at least one ledger entry,
// batched for the audit sweep.
func (r *LedgerRepository) ActiveAddresses(ctx context.Context, limit, offset int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT address FROM ledger_entries ORDER BY address LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

func collectEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Address, &e.Delta, &e.Reason, &e.SourceFunction,
			&e.ExternalID, &e.ResultingBalance, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
