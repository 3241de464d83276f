package domain

import "time"

// Profile is a player account keyed by wallet address (stored lowercase).
type Profile struct {
	Address            string     `db:"address" json:"address"`
	Username           string     `db:"username" json:"username"`
	Coins              int64      `db:"coins" json:"coins"`
	LifetimeEarned     int64      `db:"lifetime_earned" json:"lifetime_earned"`
	LifetimeSpent      int64      `db:"lifetime_spent" json:"lifetime_spent"`
	AttacksToday       int        `db:"attacks_today" json:"attacks_today"`
	LastAttackDate     string     `db:"last_attack_date" json:"last_attack_date,omitempty"` // YYYY-MM-DD (UTC)
	DefenseDeck        []Card     `db:"defense_deck" json:"defense_deck,omitempty"`
	DeckVersion        int64      `db:"deck_version" json:"deck_version"`
	HasFullDefenseDeck bool       `db:"has_full_defense_deck" json:"has_full_defense_deck"`
	AttackWins         int        `db:"attack_wins" json:"attack_wins"`
	AttackLosses       int        `db:"attack_losses" json:"attack_losses"`
	DefenseWins        int        `db:"defense_wins" json:"defense_wins"`
	DefenseLosses      int        `db:"defense_losses" json:"defense_losses"`
	TotalPower         int64      `db:"total_power" json:"total_power"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	BannedAt           *time.Time `db:"banned_at" json:"banned_at,omitempty"`
}

// DeckSize is the number of cards in a complete defense deck.
const DeckSize = 5
