package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"raid_backend/internal/domain"
	"raid_backend/internal/power"
	"raid_backend/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
)

func vibefidDeck(perCard int64) []domain.Card {
	deck := make([]domain.Card, 0, domain.DeckSize)
	for i := 0; i < domain.DeckSize; i++ {
		deck = append(deck, domain.Card{
			TokenID:    fmt.Sprintf("v%d", i+1),
			Collection: domain.CollectionVibeFID,
			BasePower:  perCard,
		})
	}
	return deck
}

func setQuota(t *testing.T, db *pgxpool.Pool, address string, attacksToday int, lastAttackDate string) {
	t.Helper()
	_, err := db.Exec(context.Background(),
		`UPDATE profiles SET attacks_today = $2, last_attack_date = $3 WHERE address = $1`,
		address, attacksToday, lastAttackDate)
	if err != nil {
		t.Fatalf("set quota: %v", err)
	}
}

func TestResolveRaid_AttackerWins(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	raids := service.NewRaidService(db, ledger, 5)
	ctx := context.Background()

	attacker := newAddr(t)
	defender := newAddr(t)
	// the huge attacker deck also ranks the attacker above the defender,
	// so the win pays the flat base reward
	seedProfile(t, db, attacker, 100, baseDeck(10000))
	seedProfile(t, db, defender, 500, baseDeck(100))

	result, err := raids.ResolveRaid(ctx, attacker, defender, baseDeck(10000), false)
	if err != nil {
		t.Fatalf("resolve raid: %v", err)
	}

	if result.Winner != attacker || result.Outcome != domain.RaidOutcomeWin {
		t.Fatalf("expected attacker win, got winner=%s outcome=%s", result.Winner, result.Outcome)
	}
	if result.Reward != 100 {
		t.Errorf("reward = %d, want 100", result.Reward)
	}
	if result.NewBalance != 200 {
		t.Errorf("new balance = %d, want 200", result.NewBalance)
	}

	// defender penalty is 8..20 depending on rank spread
	defenderLoss := 500 - currentBalance(t, db, defender)
	if defenderLoss < 8 || defenderLoss > 20 {
		t.Errorf("defender loss = %d, want within [8, 20]", defenderLoss)
	}

	for _, addr := range []string{attacker, defender} {
		if replayBalance(t, db, addr) != currentBalance(t, db, addr) {
			t.Errorf("ledger does not reconcile for %s", addr)
		}
	}

	var attacksToday int
	var lastDate string
	if err := db.QueryRow(ctx,
		`SELECT attacks_today, last_attack_date FROM profiles WHERE address = $1`,
		attacker).Scan(&attacksToday, &lastDate); err != nil {
		t.Fatalf("read quota: %v", err)
	}
	if attacksToday != 1 {
		t.Errorf("attacks_today = %d, want 1", attacksToday)
	}
	if today := time.Now().UTC().Format("2006-01-02"); lastDate != today {
		t.Errorf("last_attack_date = %s, want %s", lastDate, today)
	}
}

func TestResolveRaid_CollectionMultiplierDecidesWinner(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	raids := service.NewRaidService(db, ledger, 5)

	attacker := newAddr(t)
	defender := newAddr(t)
	seedProfile(t, db, attacker, 100, baseDeck(100))
	seedProfile(t, db, defender, 100, vibefidDeck(100))

	// 5x100 base vs 5x100 vibefid: 500 vs 2500
	result, err := raids.ResolveRaid(context.Background(), attacker, defender, baseDeck(100), false)
	if err != nil {
		t.Fatalf("resolve raid: %v", err)
	}

	if result.AttackerPower != 500 {
		t.Errorf("attacker power = %d, want 500", result.AttackerPower)
	}
	if result.DefenderPower != 2500 {
		t.Errorf("defender power = %d, want 2500", result.DefenderPower)
	}
	if result.Winner != defender {
		t.Errorf("winner = %s, want defender", result.Winner)
	}
}

func TestResolveRaid_TieGoesToDefender(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	raids := service.NewRaidService(db, ledger, 5)

	attacker := newAddr(t)
	defender := newAddr(t)
	seedProfile(t, db, attacker, 100, baseDeck(100))
	seedProfile(t, db, defender, 100, baseDeck(100))

	result, err := raids.ResolveRaid(context.Background(), attacker, defender, baseDeck(100), false)
	if err != nil {
		t.Fatalf("resolve raid: %v", err)
	}

	if result.Winner != defender || result.Outcome != domain.RaidOutcomeLoss {
		t.Fatalf("tie must go to the defender, got winner=%s", result.Winner)
	}
	if result.Reward >= 0 {
		t.Errorf("attacker reward on tie = %d, want negative", result.Reward)
	}
}

func TestResolveRaid_QuotaExceeded(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	raids := service.NewRaidService(db, ledger, 5)
	ctx := context.Background()

	attacker := newAddr(t)
	defender := newAddr(t)
	seedProfile(t, db, attacker, 100, baseDeck(10000))
	seedProfile(t, db, defender, 500, baseDeck(100))

	today := time.Now().UTC().Format("2006-01-02")
	setQuota(t, db, attacker, 4, today)

	// one slot left: this raid succeeds
	if _, err := raids.ResolveRaid(ctx, attacker, defender, baseDeck(10000), false); err != nil {
		t.Fatalf("raid with one slot left: %v", err)
	}

	balanceAfter := currentBalance(t, db, attacker)

	_, err := raids.ResolveRaid(ctx, attacker, defender, baseDeck(10000), false)
	if !errors.Is(err, service.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if got := currentBalance(t, db, attacker); got != balanceAfter {
		t.Errorf("rejected raid changed balance: %d -> %d", balanceAfter, got)
	}
}

func TestResolveRaid_QuotaLazyRollover(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	raids := service.NewRaidService(db, ledger, 5)

	attacker := newAddr(t)
	defender := newAddr(t)
	seedProfile(t, db, attacker, 100, baseDeck(10000))
	seedProfile(t, db, defender, 500, baseDeck(100))

	// exhausted yesterday: today's first raid rolls the counter over
	setQuota(t, db, attacker, 5, "2020-01-01")

	if _, err := raids.ResolveRaid(context.Background(), attacker, defender, baseDeck(10000), false); err != nil {
		t.Fatalf("raid after rollover: %v", err)
	}
}

func TestResolveRaid_ConcurrentLastSlot(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	raids := service.NewRaidService(db, ledger, 5)

	attacker := newAddr(t)
	defender := newAddr(t)
	seedProfile(t, db, attacker, 100, baseDeck(10000))
	seedProfile(t, db, defender, 500, baseDeck(100))

	today := time.Now().UTC().Format("2006-01-02")
	setQuota(t, db, attacker, 4, today)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = raids.ResolveRaid(context.Background(), attacker, defender, baseDeck(10000), false)
		}(i)
	}
	wg.Wait()

	var wins, quota int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, service.ErrQuotaExceeded):
			quota++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || quota != 1 {
		t.Fatalf("expected exactly one success and one quota rejection, got %d/%d", wins, quota)
	}

	// balance reflects only the single successful raid
	if got := currentBalance(t, db, attacker); got != 200 {
		t.Errorf("attacker balance = %d, want 200", got)
	}
	if replayBalance(t, db, attacker) != currentBalance(t, db, attacker) {
		t.Error("attacker ledger does not reconcile")
	}
}

func TestResolveRaid_DeckSwapMidRaid(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	raids := service.NewRaidService(db, ledger, 5)
	ctx := context.Background()

	attacker := newAddr(t)
	defender := newAddr(t)
	seedProfile(t, db, attacker, 100, baseDeck(100))
	// 2500 defense power, beats the attacker's 500
	seedProfile(t, db, defender, 500, vibefidDeck(100))

	weak := baseDeck(20)
	weakJSON, err := json.Marshal(weak)
	if err != nil {
		t.Fatalf("marshal deck: %v", err)
	}

	// hold the defender row locked with the swap uncommitted: the raid
	// snapshots the old deck version, then queues on the row lock
	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx,
		`UPDATE profiles
		 SET defense_deck = $2, deck_version = deck_version + 1, total_power = $3
		 WHERE address = $1`,
		defender, weakJSON, power.DeckPower(weak, false)); err != nil {
		t.Fatalf("swap deck: %v", err)
	}

	type outcome struct {
		result *domain.RaidResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := raids.ResolveRaid(ctx, attacker, defender, baseDeck(100), false)
		done <- outcome{r, err}
	}()

	// give the raid time to reach the lock before releasing the swap
	time.Sleep(300 * time.Millisecond)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit swap: %v", err)
	}

	out := <-done
	if out.err != nil {
		t.Fatalf("resolve raid: %v", out.err)
	}

	// the attacker only beats the swapped-in deck, so a win proves the raid
	// was re-judged against the fresh snapshot instead of the stale one
	if out.result.Winner != attacker || out.result.Outcome != domain.RaidOutcomeWin {
		t.Fatalf("winner = %s outcome = %s, want attacker win", out.result.Winner, out.result.Outcome)
	}
	if out.result.DefenderPower != 100 {
		t.Errorf("defender power = %d, want 100 from the swapped deck", out.result.DefenderPower)
	}
	for _, addr := range []string{attacker, defender} {
		if replayBalance(t, db, addr) != currentBalance(t, db, addr) {
			t.Errorf("ledger does not reconcile for %s", addr)
		}
	}
}

func TestResolveRaid_SelfAndMissingDeck(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	raids := service.NewRaidService(db, ledger, 5)
	ctx := context.Background()

	attacker := newAddr(t)
	noDeck := newAddr(t)
	seedProfile(t, db, attacker, 100, baseDeck(100))
	seedProfile(t, db, noDeck, 100, baseDeck(100)[:3])

	if _, err := raids.ResolveRaid(ctx, attacker, attacker, baseDeck(100), false); !errors.Is(err, service.ErrSelfRaid) {
		t.Errorf("expected ErrSelfRaid, got %v", err)
	}
	if _, err := raids.ResolveRaid(ctx, attacker, noDeck, baseDeck(100), false); !errors.Is(err, service.ErrNoDefenseDeck) {
		t.Errorf("expected ErrNoDefenseDeck, got %v", err)
	}
	if _, err := raids.ResolveRaid(ctx, attacker, noDeck, baseDeck(100)[:2], false); !errors.Is(err, service.ErrIncompleteDeck) {
		t.Errorf("expected ErrIncompleteDeck, got %v", err)
	}
}

func TestResolveRaid_BannedAttacker(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	raids := service.NewRaidService(db, ledger, 5)
	profiles := service.NewProfileService(db, nil)
	ctx := context.Background()

	attacker := newAddr(t)
	defender := newAddr(t)
	seedProfile(t, db, attacker, 100, baseDeck(100))
	seedProfile(t, db, defender, 100, baseDeck(100))

	if err := profiles.SetBanned(ctx, attacker, true); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, err := raids.ResolveRaid(ctx, attacker, defender, baseDeck(100), false); !errors.Is(err, service.ErrBanned) {
		t.Fatalf("expected ErrBanned, got %v", err)
	}

	if err := profiles.SetBanned(ctx, attacker, false); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if _, err := raids.ResolveRaid(ctx, attacker, defender, baseDeck(100), false); err != nil {
		t.Fatalf("raid after unban: %v", err)
	}
}
