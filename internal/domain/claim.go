package domain

import "time"

// ClaimStatus tracks a claim through its lifecycle:
// pending -> signed -> confirmed, or pending -> expired after timeout.
// A failed signing attempt whose debit was already durable is compensated
// and marked failed; the nonce is burned either way.
type ClaimStatus string

const (
	ClaimStatusPending   ClaimStatus = "pending"
	ClaimStatusSigned    ClaimStatus = "signed"
	ClaimStatusConfirmed ClaimStatus = "confirmed"
	ClaimStatusExpired   ClaimStatus = "expired"
	ClaimStatusFailed    ClaimStatus = "failed"
)

// ClaimRequest converts off-chain coins into an on-chain transfer.
// The nonce is globally unique and single-use.
type ClaimRequest struct {
	ID          string      `db:"id" json:"id"` // uuid
	Address     string      `db:"address" json:"address"`
	Amount      int64       `db:"amount" json:"amount"`
	Nonce       string      `db:"nonce" json:"nonce"`
	Signature   string      `db:"signature" json:"signature,omitempty"`
	Status      ClaimStatus `db:"status" json:"status"`
	TxHash      string      `db:"tx_hash" json:"tx_hash,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	SignedAt    *time.Time  `db:"signed_at" json:"signed_at,omitempty"`
	ConfirmedAt *time.Time  `db:"confirmed_at" json:"confirmed_at,omitempty"`
	ExpiresAt   time.Time   `db:"expires_at" json:"expires_at"`
}

// MinClaimAmount is the smallest claimable amount in coins.
const MinClaimAmount = 100
