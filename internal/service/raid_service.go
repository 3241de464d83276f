package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raid_backend/internal/domain"
	"raid_backend/internal/logger"
	"raid_backend/internal/power"
	"raid_backend/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrSelfRaid             = errors.New("cannot raid yourself")
	ErrQuotaExceeded        = errors.New("daily attack limit reached")
	ErrNoDefenseDeck        = errors.New("defender has no full defense deck")
	ErrIncompleteDeck       = errors.New("attack deck must have exactly 5 cards")
	ErrConcurrentDeckChange = errors.New("defender deck changed during raid")
)

// Base reward schedule. Rank multipliers scale these; they are never
// proportional to the power delta, so a lopsided win pays the same as a
// narrow one.
const (
	pvpWinReward     = 100
	pvpLossPenalty   = 20
	unrankedRank     = 999
	deckCheckRetries = 3
)

// RaidService resolves raids: quota, deck snapshot check, power comparison
// and settlement through the ledger, all committed as one transaction.
type RaidService struct {
	db          *pgxpool.Pool
	profileRepo *repository.ProfileRepository
	raidRepo    *repository.RaidRepository
	ledger      *LedgerService
	maxAttacks  int
}

func NewRaidService(db *pgxpool.Pool, ledger *LedgerService, maxAttacks int) *RaidService {
	if maxAttacks <= 0 {
		maxAttacks = 5
	}
	return &RaidService{
		db:          db,
		profileRepo: repository.NewProfileRepository(db),
		raidRepo:    repository.NewRaidRepository(db),
		ledger:      ledger,
		maxAttacks:  maxAttacks,
	}
}

// ResolveRaid settles one raid. The defender's deck version is snapshotted
// up front and re-checked under lock; if the defender swaps decks mid-raid
// the attempt is retried against the fresh snapshot a bounded number of
// times before surfacing ErrConcurrentDeckChange.
func (s *RaidService) ResolveRaid(ctx context.Context, attacker, defender string, attackDeck []domain.Card, leaderboard bool) (*domain.RaidResult, error) {
	if attacker == defender {
		return nil, ErrSelfRaid
	}
	if len(attackDeck) != domain.DeckSize {
		return nil, ErrIncompleteDeck
	}

	attackerRank, err := s.rank(ctx, attacker)
	if err != nil {
		return nil, err
	}
	defenderRank, err := s.rank(ctx, defender)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < deckCheckRetries; attempt++ {
		snapshot, err := s.profileRepo.GetByAddress(ctx, defender)
		if err != nil {
			return nil, err
		}
		if snapshot == nil {
			return nil, ErrProfileNotFound
		}
		if !snapshot.HasFullDefenseDeck {
			return nil, ErrNoDefenseDeck
		}

		result, err := s.resolveOnce(ctx, attacker, defender, attackDeck, snapshot, attackerRank, defenderRank, leaderboard)
		if errors.Is(err, ErrConcurrentDeckChange) {
			lastErr = err
			continue
		}
		return result, err
	}
	return nil, lastErr
}

func (s *RaidService) resolveOnce(ctx context.Context, attacker, defender string, attackDeck []domain.Card, snapshot *domain.Profile, attackerRank, defenderRank int, leaderboard bool) (*domain.RaidResult, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock both profiles in address order to avoid deadlocks between
	// raids running in opposite directions.
	first, second := attacker, defender
	if first > second {
		first, second = second, first
	}
	profiles := map[string]*domain.Profile{}
	for _, addr := range []string{first, second} {
		p, err := s.profileRepo.GetForUpdateTx(ctx, tx, addr)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, ErrProfileNotFound
		}
		if p.BannedAt != nil {
			return nil, ErrBanned
		}
		profiles[addr] = p
	}
	attackerProfile := profiles[attacker]
	defenderProfile := profiles[defender]

	// Quota with lazy UTC rollover. The counter only advances on commit,
	// so a rejected or aborted raid never consumes a slot.
	today := time.Now().UTC().Format("2006-01-02")
	attacksToday := attackerProfile.AttacksToday
	if attackerProfile.LastAttackDate != today {
		attacksToday = 0
	}
	if attacksToday >= s.maxAttacks {
		return nil, ErrQuotaExceeded
	}

	// The snapshot the powers were judged against must still be current.
	if defenderProfile.DeckVersion != snapshot.DeckVersion {
		return nil, ErrConcurrentDeckChange
	}

	attackerPower := power.DeckPower(attackDeck, leaderboard)
	defenderPower := power.DeckPower(defenderProfile.DefenseDeck, false)

	// Exact tie goes to the defender: repeated zero-risk tie attempts
	// must not pay out.
	attackerWon := attackerPower > defenderPower

	outcome := domain.RaidOutcomeLoss
	winner := defender
	if attackerWon {
		outcome = domain.RaidOutcomeWin
		winner = attacker
	}

	attempt := &domain.RaidAttempt{
		Attacker:      attacker,
		Defender:      defender,
		AttackerPower: attackerPower,
		DefenderPower: defenderPower,
		Outcome:       outcome,
		DefenderDeck:  defenderProfile.DefenseDeck,
	}

	var attackerDelta, defenderDelta int64
	if attackerWon {
		attackerDelta = winAmount(attackerRank, defenderRank)
		defenderDelta = -clampPenalty(lossAmount(defenderRank, attackerRank), defenderProfile.Coins)
	} else {
		attackerDelta = -clampPenalty(lossAmount(attackerRank, defenderRank), attackerProfile.Coins)
		defenderDelta = winAmount(defenderRank, attackerRank)
	}
	attempt.Reward = attackerDelta

	if err := s.raidRepo.CreateWithTx(ctx, tx, attempt); err != nil {
		return nil, err
	}

	newBalance := attackerProfile.Coins
	if attackerDelta != 0 {
		reason := domain.ReasonRaidWin
		if !attackerWon {
			reason = domain.ReasonRaidLoss
		}
		entry, err := s.ledger.AdjustTx(ctx, tx, attacker, attackerDelta, reason,
			domain.SourceResolveRaid, fmt.Sprintf("raid:%d:attacker", attempt.ID))
		if err != nil {
			return nil, err
		}
		newBalance = entry.ResultingBalance
	}
	if defenderDelta != 0 {
		reason := domain.ReasonDefenseLoss
		if !attackerWon {
			reason = domain.ReasonDefenseWin
		}
		if _, err := s.ledger.AdjustTx(ctx, tx, defender, defenderDelta, reason,
			domain.SourceResolveRaid, fmt.Sprintf("raid:%d:defender", attempt.ID)); err != nil {
			return nil, err
		}
	}

	if err := s.profileRepo.UpdateQuotaTx(ctx, tx, attacker, attacksToday+1, today); err != nil {
		return nil, err
	}
	if err := s.profileRepo.RecordRaidStatsTx(ctx, tx, attacker, defender, attackerWon); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info("raid resolved",
		"attacker", attacker, "defender", defender,
		"attacker_power", attackerPower, "defender_power", defenderPower,
		"winner", winner, "reward", attackerDelta)

	return &domain.RaidResult{
		Winner:        winner,
		Outcome:       outcome,
		AttackerPower: attackerPower,
		DefenderPower: defenderPower,
		Reward:        attackerDelta,
		NewBalance:    newBalance,
	}, nil
}

// History returns recent raids launched by an address.
func (s *RaidService) History(ctx context.Context, address string, limit int) ([]domain.RaidAttempt, error) {
	return s.raidRepo.GetByAttacker(ctx, address, limit)
}

// DefenseHistory returns recent raids received by an address.
func (s *RaidService) DefenseHistory(ctx context.Context, address string, limit int) ([]domain.RaidAttempt, error) {
	return s.raidRepo.GetByDefender(ctx, address, limit)
}

// AttacksRemaining reports the attacker's quota slots left today.
func (s *RaidService) AttacksRemaining(ctx context.Context, address string) (int, error) {
	p, err := s.profileRepo.GetByAddress(ctx, address)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, ErrProfileNotFound
	}
	today := time.Now().UTC().Format("2006-01-02")
	used := p.AttacksToday
	if p.LastAttackDate != today {
		used = 0
	}
	remaining := s.maxAttacks - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *RaidService) rank(ctx context.Context, address string) (int, error) {
	r, err := s.profileRepo.Rank(ctx, address)
	if err != nil {
		return 0, err
	}
	if r == 0 {
		r = unrankedRank
	}
	return r, nil
}

// winAmount is the winner's credit: the base reward scaled up when the
// beaten opponent is ranked well above the winner.
func winAmount(winnerRank, loserRank int) int64 {
	return pvpWinReward * rankBonusPercent(winnerRank-loserRank) / 100
}

// lossAmount is the loser's debit before clamping: the base penalty
// softened when the loss was against a much better-ranked opponent.
func lossAmount(loserRank, winnerRank int) int64 {
	return pvpLossPenalty * penaltyPercent(loserRank-winnerRank) / 100
}

func rankBonusPercent(rankDiff int) int64 {
	switch {
	case rankDiff >= 50:
		return 200
	case rankDiff >= 20:
		return 150
	case rankDiff >= 10:
		return 130
	case rankDiff >= 5:
		return 115
	default:
		return 100
	}
}

func penaltyPercent(rankDiff int) int64 {
	switch {
	case rankDiff >= 50:
		return 40
	case rankDiff >= 20:
		return 50
	case rankDiff >= 10:
		return 65
	case rankDiff >= 5:
		return 80
	default:
		return 100
	}
}

// clampPenalty caps a debit at the current balance so a loss can zero a
// balance but never drive it negative.
func clampPenalty(penalty, balance int64) int64 {
	if penalty > balance {
		return balance
	}
	return penalty
}
