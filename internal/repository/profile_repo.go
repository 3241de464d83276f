package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"raid_backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProfileRepository struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `address, username, coins, lifetime_earned, lifetime_spent,
	attacks_today, COALESCE(last_attack_date, ''), defense_deck, deck_version,
	has_full_defense_deck, attack_wins, attack_losses, defense_wins, defense_losses,
	total_power, created_at, banned_at`

// GetByAddress retrieves a profile by normalized address, or nil if absent.
func (r *ProfileRepository) GetByAddress(ctx context.Context, address string) (*domain.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE address = $1`, address)
	return scanProfile(row)
}

// GetForUpdateTx locks the profile row for the duration of the transaction.
// All balance and quota mutations go through this lock, which is what
// serializes concurrent raids and claims on the same address.
func (r *ProfileRepository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, address string) (*domain.Profile, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE address = $1 FOR UPDATE`, address)
	return scanProfile(row)
}

// Create inserts a profile on first connection.
func (r *ProfileRepository) Create(ctx context.Context, p *domain.Profile) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO profiles (address, username)
		 VALUES ($1, $2)
		 RETURNING created_at`,
		p.Address, p.Username,
	).Scan(&p.CreatedAt)
}

// UpdateDefenseDeck replaces the defense deck, bumping deck_version so an
// in-flight raid against the old deck fails its snapshot check.
func (r *ProfileRepository) UpdateDefenseDeck(ctx context.Context, address string, deck []domain.Card, totalPower int64) error {
	deckJSON, err := json.Marshal(deck)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE profiles
		 SET defense_deck = $2,
		     deck_version = deck_version + 1,
		     has_full_defense_deck = $3,
		     total_power = $4
		 WHERE address = $1`,
		address, deckJSON, len(deck) == domain.DeckSize, totalPower)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetBanned flips the ban timestamp. Banning is reversible; the coin
// balance and ledger stay untouched either way.
func (r *ProfileRepository) SetBanned(ctx context.Context, address string, banned bool) error {
	var ts *time.Time
	if banned {
		now := time.Now().UTC()
		ts = &now
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET banned_at = $2 WHERE address = $1`, address, ts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateQuotaTx writes the rolled-over or incremented quota counters.
func (r *ProfileRepository) UpdateQuotaTx(ctx context.Context, tx pgx.Tx, address string, attacksToday int, lastAttackDate string) error {
	_, err := tx.Exec(ctx,
		`UPDATE profiles SET attacks_today = $2, last_attack_date = $3 WHERE address = $1`,
		address, attacksToday, lastAttackDate)
	return err
}

// RecordRaidStatsTx bumps the attack/defense win-loss counters for both
// participants inside the settlement transaction.
func (r *ProfileRepository) RecordRaidStatsTx(ctx context.Context, tx pgx.Tx, attacker, defender string, attackerWon bool) error {
	var attackerCol, defenderCol string
	if attackerWon {
		attackerCol, defenderCol = "attack_wins", "defense_losses"
	} else {
		attackerCol, defenderCol = "attack_losses", "defense_wins"
	}

	if _, err := tx.Exec(ctx,
		`UPDATE profiles SET `+attackerCol+` = `+attackerCol+` + 1 WHERE address = $1`,
		attacker); err != nil {
		return err
	}
	_, err := tx.Exec(ctx,
		`UPDATE profiles SET `+defenderCol+` = `+defenderCol+` + 1 WHERE address = $1`,
		defender)
	return err
}

// Leaderboard returns the top profiles with a full defense deck, ranked by
// total power. The has_full_defense_deck flag keeps this from scanning
// profiles that cannot be raided.
func (r *ProfileRepository) Leaderboard(ctx context.Context, limit int) ([]domain.Profile, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+profileColumns+`
		 FROM profiles
		 WHERE has_full_defense_deck
		 ORDER BY total_power DESC, address ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Profile
	for rows.Next() {
		p, err := scanProfileRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// Rank returns the 1-indexed leaderboard position by total power, or 0 if
// the address is not ranked.
func (r *ProfileRepository) Rank(ctx context.Context, address string) (int, error) {
	var rank int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE((
		   SELECT rn FROM (
		     SELECT address, ROW_NUMBER() OVER (ORDER BY total_power DESC, address ASC) AS rn
		     FROM profiles WHERE has_full_defense_deck
		   ) ranked WHERE address = $1
		 ), 0)`, address).Scan(&rank)
	return rank, err
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	p, err := scanProfileRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func scanProfileRow(row pgx.Row) (*domain.Profile, error) {
	var (
		p        domain.Profile
		deckJSON []byte
		banned   *time.Time
	)

	if err := row.Scan(
		&p.Address, &p.Username, &p.Coins, &p.LifetimeEarned, &p.LifetimeSpent,
		&p.AttacksToday, &p.LastAttackDate, &deckJSON, &p.DeckVersion,
		&p.HasFullDefenseDeck, &p.AttackWins, &p.AttackLosses, &p.DefenseWins,
		&p.DefenseLosses, &p.TotalPower, &p.CreatedAt, &banned,
	); err != nil {
		return nil, err
	}

	if len(deckJSON) > 0 {
		_ = json.Unmarshal(deckJSON, &p.DefenseDeck)
	}
	p.BannedAt = banned

	return &p, nil
}
