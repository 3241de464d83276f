package service

import (
	"context"
	"errors"

	"raid_backend/internal/domain"
	"raid_backend/internal/logger"
	"raid_backend/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// LedgerService owns every coin mutation. Balances change only here: the
// profile row is locked, a ledger entry is appended, and the projected
// balance is updated in one transaction. Nothing else in the codebase
// writes profiles.coins.
type LedgerService struct {
	db          *pgxpool.Pool
	profileRepo *repository.ProfileRepository
	ledgerRepo  *repository.LedgerRepository
}

func NewLedgerService(db *pgxpool.Pool) *LedgerService {
	return &LedgerService{
		db:          db,
		profileRepo: repository.NewProfileRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
	}
}

// Adjust applies one signed delta in its own transaction.
func (s *LedgerService) Adjust(ctx context.Context, address string, delta int64, reason, sourceFunction, externalID string) (*domain.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := s.AdjustTx(ctx, tx, address, delta, reason, sourceFunction, externalID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

// AdjustTx applies one signed delta inside the caller's transaction,
// locking the profile row. When an external id is supplied and an entry
// with the same (source_function, external_id) already exists, the existing
// entry is returned and nothing is written. A debit below zero fails
// without appending anything.
func (s *LedgerService) AdjustTx(ctx context.Context, tx pgx.Tx, address string, delta int64, reason, sourceFunction, externalID string) (*domain.LedgerEntry, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}

	if externalID != "" {
		existing, err := s.ledgerRepo.FindBySourceTx(ctx, tx, sourceFunction, externalID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			logger.Info("ledger adjustment replayed, returning existing entry",
				"source", sourceFunction, "external_id", externalID)
			return existing, nil
		}
	}

	profile, err := s.profileRepo.GetForUpdateTx(ctx, tx, address)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	newBalance := profile.Coins + delta
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	entry := &domain.LedgerEntry{
		Address:          address,
		Delta:            delta,
		Reason:           reason,
		SourceFunction:   sourceFunction,
		ExternalID:       externalID,
		ResultingBalance: newBalance,
	}
	if err := s.ledgerRepo.AppendWithTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := s.ledgerRepo.UpdateBalanceTx(ctx, tx, address, newBalance, delta); err != nil {
		return nil, err
	}

	return entry, nil
}

// History returns recent ledger entries for an address.
func (s *LedgerService) History(ctx context.Context, address string, limit, offset int) ([]domain.LedgerEntry, error) {
	return s.ledgerRepo.GetByAddress(ctx, address, limit, offset)
}

// Reconcile replays an address's entry stream and compares it to the
// projected balance. A mismatch means a coin moved outside the ledger.
func (s *LedgerService) Reconcile(ctx context.Context, address string) (balance, replayed int64, ok bool, err error) {
	profile, err := s.profileRepo.GetByAddress(ctx, address)
	if err != nil {
		return 0, 0, false, err
	}
	if profile == nil {
		return 0, 0, false, ErrProfileNotFound
	}

	replayed, err = s.ledgerRepo.SumDeltas(ctx, address)
	if err != nil {
		return 0, 0, false, err
	}

	if profile.Coins != replayed {
		logger.Error("ledger reconciliation mismatch",
			"address", address, "balance", profile.Coins, "replayed", replayed)
	}
	return profile.Coins, replayed, profile.Coins == replayed, nil
}
