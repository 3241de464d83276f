package domain

import "time"

// RaidOutcome is the result of a raid from the attacker's point of view.
type RaidOutcome string

const (
	RaidOutcomeWin  RaidOutcome = "win"
	RaidOutcomeLoss RaidOutcome = "loss"
)

// RaidAttempt is one resolved raid. Exactly one record is written per
// resolution, carrying the defender's deck as it was scored.
type RaidAttempt struct {
	ID            int64       `db:"id" json:"id"`
	Attacker      string      `db:"attacker" json:"attacker"`
	Defender      string      `db:"defender" json:"defender"`
	AttackerPower int64       `db:"attacker_power" json:"attacker_power"`
	DefenderPower int64       `db:"defender_power" json:"defender_power"`
	Outcome       RaidOutcome `db:"outcome" json:"outcome"`
	Reward        int64       `db:"reward" json:"reward"` // attacker delta; negative on loss
	DefenderDeck  []Card      `db:"defender_deck" json:"defender_deck,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// RaidResult is returned to the attacker after settlement.
type RaidResult struct {
	Winner        string      `json:"winner"`
	Outcome       RaidOutcome `json:"outcome"`
	AttackerPower int64       `json:"attacker_power"`
	DefenderPower int64       `json:"defender_power"`
	Reward        int64       `json:"reward"`
	NewBalance    int64       `json:"new_balance"`
}
