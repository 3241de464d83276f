package repository

import (
	"context"
	"encoding/json"

	"raid_backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RaidRepository struct {
	db *pgxpool.Pool
}

func NewRaidRepository(db *pgxpool.Pool) *RaidRepository {
	return &RaidRepository{db: db}
}

// CreateWithTx records the resolved raid in the settlement transaction, so
// the attempt row, ledger entries and balance updates commit together.
func (r *RaidRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, a *domain.RaidAttempt) error {
	deckJSON, err := json.Marshal(a.DefenderDeck)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx,
		`INSERT INTO raid_attempts (attacker, defender, attacker_power, defender_power, outcome, reward, defender_deck)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		a.Attacker, a.Defender, a.AttackerPower, a.DefenderPower, a.Outcome, a.Reward, deckJSON,
	).Scan(&a.ID, &a.CreatedAt)
}

// GetByAttacker returns recent raids launched by an address.
func (r *RaidRepository) GetByAttacker(ctx context.Context, attacker string, limit int) ([]domain.RaidAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, attacker, defender, attacker_power, defender_power, outcome, reward, defender_deck, created_at
		 FROM raid_attempts
		 WHERE attacker = $1
		 ORDER BY id DESC
		 LIMIT $2`, attacker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRaids(rows)
}

// GetByDefender returns recent raids received by an address.
func (r *RaidRepository) GetByDefender(ctx context.Context, defender string, limit int) ([]domain.RaidAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, attacker, defender, attacker_power, defender_power, outcome, reward, defender_deck, created_at
		 FROM raid_attempts
		 WHERE defender = $1
		 ORDER BY id DESC
		 LIMIT $2`, defender, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRaids(rows)
}

func collectRaids(rows pgx.Rows) ([]domain.RaidAttempt, error) {
	var attempts []domain.RaidAttempt
	for rows.Next() {
		var (
			a        domain.RaidAttempt
			deckJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.Attacker, &a.Defender, &a.AttackerPower,
			&a.DefenderPower, &a.Outcome, &a.Reward, &deckJSON, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(deckJSON) > 0 {
			_ = json.Unmarshal(deckJSON, &a.DefenderDeck)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
