package domain

import "time"

// LedgerEntry is one immutable balance delta with full provenance.
// Entries are append-only: never updated, never deleted. The sum of all
// deltas for an address must equal the profile's projected balance.
type LedgerEntry struct {
	ID               int64     `db:"id" json:"id"`
	Address          string    `db:"address" json:"address"`
	Delta            int64     `db:"delta" json:"delta"`
	Reason           string    `db:"reason" json:"reason"`
	SourceFunction   string    `db:"source_function" json:"source_function"`
	ExternalID       string    `db:"external_id" json:"external_id,omitempty"`
	ResultingBalance int64     `db:"resulting_balance" json:"resulting_balance"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Ledger reasons.
const (
	ReasonRaidWin         = "raid_win"
	ReasonRaidLoss        = "raid_loss"
	ReasonDefenseWin      = "defense_win"
	ReasonDefenseLoss     = "defense_loss"
	ReasonPvPWin          = "pvp_win"
	ReasonPvPLoss         = "pvp_loss"
	ReasonClaimDebit      = "claim_debit"
	ReasonClaimCompensate = "claim_compensate"
	ReasonAdminAdjust     = "admin_adjust"
)

// Ledger source functions. These name the code path that produced the entry
// and, together with an external id, form the idempotency key for retries.
const (
	SourceResolveRaid  = "resolveRaid"
	SourceFinishRoom   = "finishRoom"
	SourcePrepareClaim = "prepareClaim"
	SourceCompensate   = "compensateClaim"
	SourceAdmin        = "adminAdjust"
)
