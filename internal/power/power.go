// Package power computes effective battle power for cards and decks.
// It is pure: no I/O, no clock, no randomness, so client-side previews and
// the authoritative server computation always agree. The server result wins
// whenever they differ.
package power

import (
	"raid_backend/internal/domain"
	"raid_backend/internal/logger"
)

// Multiplier returns the collection power multiplier as a rational
// (numerator, denominator) so evaluation stays in integer math.
// VibeFID cards double up on leaderboard attacks.
func Multiplier(c domain.Collection, leaderboardAttack bool) (num, den int64) {
	switch c {
	case domain.CollectionVibeFID:
		if leaderboardAttack {
			return 10, 1
		}
		return 5, 1
	case domain.CollectionVibe:
		return 2, 1
	case domain.CollectionNothing:
		return 1, 2
	case domain.CollectionBase:
		return 1, 1
	default:
		// Unknown collections score 1x but are a fail path, not a
		// normal case: log loudly so new collections get mapped.
		logger.Warn("unrecognized collection tag, defaulting to 1x", "collection", string(c))
		return 1, 1
	}
}

// CardPower returns floor(basePower * multiplier) for one card.
// A card with no base power scores 0.
func CardPower(card domain.Card, leaderboardAttack bool) int64 {
	if card.BasePower <= 0 {
		return 0
	}
	num, den := Multiplier(card.Collection, leaderboardAttack)
	return card.BasePower * num / den
}

// DeckPower sums CardPower over a deck.
func DeckPower(deck []domain.Card, leaderboardAttack bool) int64 {
	var total int64
	for _, c := range deck {
		total += CardPower(c, leaderboardAttack)
	}
	return total
}
