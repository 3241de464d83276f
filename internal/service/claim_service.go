package service

import (
	"context"
	"errors"
	"time"

	"raid_backend/internal/chain"
	"raid_backend/internal/domain"
	"raid_backend/internal/logger"
	"raid_backend/internal/repository"
	"raid_backend/internal/signer"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrDuplicateNonce = errors.New("nonce already used")
	ErrClaimTooSmall  = errors.New("amount below minimum claim")
	ErrClaimNotFound  = errors.New("claim not found")
	ErrClaimNotSigned = errors.New("claim is not in signed state")
	ErrTxNotConfirmed = errors.New("transaction not confirmed on chain")
	ErrInvalidTxHash  = errors.New("invalid transaction hash")
	ErrClaimConfirmed = errors.New("claim already confirmed on chain")
	ErrDailyClaimCap  = errors.New("daily claim limit reached")
	ErrChainNotConfig = errors.New("chain indexer not configured")
	ErrBattleNotFound = errors.New("battle not found")
	ErrBattleOpen     = errors.New("battle is not settled yet")
	ErrWinnerMismatch = errors.New("winner does not match the settled result")
)

// ClaimService converts ledger coins into signed on-chain redemption
// messages. The ordering invariant is strict: the debit commits durably,
// atomically with the pending claim row, before any signature is produced.
// A signing failure after the commit is reversed by an idempotent
// compensating credit keyed by the claim id.
type ClaimService struct {
	db          *pgxpool.Pool
	claimRepo   *repository.ClaimRepository
	profileRepo *repository.ProfileRepository
	roomRepo    *repository.RoomRepository
	ledger      *LedgerService
	signer      *signer.Signer
	chain       *chain.Client
	claimExpiry time.Duration
	dailyLimit  int64 // 0 disables the cap
}

func NewClaimService(db *pgxpool.Pool, ledger *LedgerService, sg *signer.Signer, chainClient *chain.Client, claimExpiry time.Duration, dailyLimit int64) *ClaimService {
	if claimExpiry <= 0 {
		claimExpiry = 15 * time.Minute
	}
	return &ClaimService{
		db:          db,
		claimRepo:   repository.NewClaimRepository(db),
		profileRepo: repository.NewProfileRepository(db),
		roomRepo:    repository.NewRoomRepository(db),
		ledger:      ledger,
		signer:      sg,
		chain:       chainClient,
		claimExpiry: claimExpiry,
		dailyLimit:  dailyLimit,
	}
}

// PrepareClaim debits the claimed amount, burns the nonce and signs the
// redemption message. Steps, in order:
//
//  1. One transaction: debit the balance and insert the pending claim.
//     A replayed nonce hits the unique index and rolls the debit back.
//  2. Sign keccak256(address, amount, nonce) with the server key.
//  3. On signing failure, compensate the debit (idempotent on claim id)
//     and mark the claim failed. The nonce stays burned.
func (s *ClaimService) PrepareClaim(ctx context.Context, address string, amount int64, nonce string) (*domain.ClaimRequest, error) {
	if amount < domain.MinClaimAmount {
		return nil, ErrClaimTooSmall
	}
	if !s.signer.Ready() {
		return nil, signer.ErrNoKey
	}

	profile, err := s.profileRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	if profile.BannedAt != nil {
		return nil, ErrBanned
	}

	claim := &domain.ClaimRequest{
		ID:        uuid.New().String(),
		Address:   address,
		Amount:    amount,
		Nonce:     nonce,
		Status:    domain.ClaimStatusPending,
		ExpiresAt: time.Now().UTC().Add(s.claimExpiry),
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := s.ledger.AdjustTx(ctx, tx, address, -amount,
		domain.ReasonClaimDebit, domain.SourcePrepareClaim, claim.ID); err != nil {
		return nil, err
	}
	// The profile row lock taken by the debit serializes claims per
	// address, so the daily-cap read cannot race a sibling claim.
	if s.dailyLimit > 0 {
		dayStart := time.Now().UTC().Truncate(24 * time.Hour)
		claimed, err := s.claimRepo.ClaimedTodayTx(ctx, tx, address, dayStart)
		if err != nil {
			return nil, err
		}
		if claimed+amount > s.dailyLimit {
			return nil, ErrDailyClaimCap
		}
	}
	if err := s.claimRepo.CreateWithTx(ctx, tx, claim); err != nil {
		if errors.Is(err, repository.ErrNonceUsed) {
			return nil, ErrDuplicateNonce
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	sig, err := s.signer.SignClaim(address, amount, nonce)
	if err != nil {
		logger.Error("claim signing failed after debit, compensating",
			"claim_id", claim.ID, "address", address, "amount", amount)
		s.compensate(ctx, claim)
		return nil, err
	}

	if err := s.claimRepo.MarkSigned(ctx, claim.ID, sig); err != nil {
		logger.Error("failed to persist claim signature, compensating",
			"claim_id", claim.ID, "address", address)
		s.compensate(ctx, claim)
		return nil, err
	}

	claim.Status = domain.ClaimStatusSigned
	claim.Signature = sig
	logger.Info("claim signed",
		"claim_id", claim.ID, "address", address, "amount", amount,
		"signature", signer.Prefix(sig))
	return claim, nil
}

// Confirm records the observed on-chain transaction against a signed
// claim. Only the claim's owner can confirm, and the transaction must be
// observed on chain: without an indexer confirmation is refused rather
// than taken on the caller's word.
func (s *ClaimService) Confirm(ctx context.Context, address, nonce, txHash string) (*domain.ClaimRequest, error) {
	if !chain.ValidTxHash(txHash) {
		return nil, ErrInvalidTxHash
	}
	if s.chain == nil {
		return nil, ErrChainNotConfig
	}

	claim, err := s.claimRepo.GetByNonce(ctx, nonce)
	if err != nil {
		return nil, err
	}
	if claim == nil || claim.Address != address {
		return nil, ErrClaimNotFound
	}
	if claim.Status != domain.ClaimStatusSigned {
		return nil, ErrClaimNotSigned
	}

	onchain, err := s.chain.GetTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if onchain == nil || !onchain.Success {
		return nil, ErrTxNotConfirmed
	}

	if err := s.claimRepo.MarkConfirmed(ctx, claim.ID, txHash); err != nil {
		return nil, err
	}
	claim.Status = domain.ClaimStatusConfirmed
	claim.TxHash = txHash

	logger.Info("claim confirmed", "claim_id", claim.ID, "tx_hash", txHash)
	return claim, nil
}

// Get retrieves a claim by id.
func (s *ClaimService) Get(ctx context.Context, id string) (*domain.ClaimRequest, error) {
	claim, err := s.claimRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, ErrClaimNotFound
	}
	return claim, nil
}

// SignBattleResult signs the settled outcome of a finished room battle
// with the same server key. The claimed winner is checked against the
// recorded result, and the battle id acts as a single-use nonce: the first
// signature is stored and repeated calls return it unchanged, so the
// server can never attest two winners for one battle.
func (s *ClaimService) SignBattleResult(ctx context.Context, battleID, winner string) (string, error) {
	room, err := s.roomRepo.GetByID(ctx, battleID)
	if err != nil {
		return "", err
	}
	if room == nil {
		return "", ErrBattleNotFound
	}
	if room.Status != domain.RoomStatusFinished {
		return "", ErrBattleOpen
	}
	if room.WinnerAddress != winner {
		return "", ErrWinnerMismatch
	}

	if sig, err := s.claimRepo.GetBattleSignature(ctx, battleID); err != nil {
		return "", err
	} else if sig != "" {
		return sig, nil
	}

	sig, err := s.signer.SignBattle(battleID, winner)
	if err != nil {
		return "", err
	}

	if err := s.claimRepo.CreateBattleSignature(ctx, battleID, winner, sig); err != nil {
		if errors.Is(err, repository.ErrNonceUsed) {
			// lost the race to a concurrent caller attesting the same
			// settled result
			return s.claimRepo.GetBattleSignature(ctx, battleID)
		}
		return "", err
	}

	logger.Info("battle result signed",
		"battle_id", battleID, "winner", winner, "signature", signer.Prefix(sig))
	return sig, nil
}

// ExpireStale moves stale pending claims to expired and credits their
// debits back. Only pending claims qualify: once a signature has been
// handed out it can still be redeemed on chain, so a signed claim must not
// be auto-refunded and waits for Compensate. Run periodically; both the
// expiry and the credit are idempotent, so overlapping runs are harmless.
func (s *ClaimService) ExpireStale(ctx context.Context) (int, error) {
	claims, err := s.claimRepo.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	for i := range claims {
		s.compensateCredit(ctx, &claims[i])
	}

	if len(claims) > 0 {
		logger.Info("expired stale claims", "count", len(claims))
	}
	return len(claims), nil
}

// Compensate force-expires an unredeemed claim and re-credits its debit.
// Operator escape hatch for claims whose signature was handed out but never
// redeemed on chain; refuses confirmed claims. Safe to repeat.
func (s *ClaimService) Compensate(ctx context.Context, id string) (*domain.ClaimRequest, error) {
	claim, err := s.claimRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, ErrClaimNotFound
	}
	if claim.Status == domain.ClaimStatusConfirmed {
		return nil, ErrClaimConfirmed
	}

	if err := s.claimRepo.ForceExpire(ctx, id); err != nil {
		return nil, err
	}
	s.compensateCredit(ctx, claim)

	logger.Info("claim compensated by operator",
		"claim_id", id, "address", claim.Address, "amount", claim.Amount)
	return s.Get(ctx, id)
}

// compensate reverses a committed debit after a failed signing attempt and
// marks the claim failed.
func (s *ClaimService) compensate(ctx context.Context, claim *domain.ClaimRequest) {
	s.compensateCredit(ctx, claim)
	if err := s.claimRepo.MarkFailed(ctx, claim.ID); err != nil {
		logger.Error("failed to mark claim failed", "claim_id", claim.ID, "error", err.Error())
	}
}

// compensateCredit re-credits a claim's debit. Keyed by the claim id, so a
// retry after a crash between credit and status update cannot double-pay.
func (s *ClaimService) compensateCredit(ctx context.Context, claim *domain.ClaimRequest) {
	if _, err := s.ledger.Adjust(ctx, claim.Address, claim.Amount,
		domain.ReasonClaimCompensate, domain.SourceCompensate, claim.ID); err != nil {
		// The claim row still names the amount owed, so an operator can
		// replay the compensation; it stays idempotent on the claim id.
		logger.Error("compensating credit failed",
			"claim_id", claim.ID, "address", claim.Address, "amount", claim.Amount,
			"error", err.Error())
	}
}
