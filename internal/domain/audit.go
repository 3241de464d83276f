package domain

import "time"

// AuditReportKind classifies a flag raised by the offline ledger scan.
type AuditReportKind string

const (
	// AuditKindZeroThenCredit flags a balance dropping to zero immediately
	// followed by a large credit, the signature of the historical
	// debit-before-signature-confirmed bug.
	AuditKindZeroThenCredit AuditReportKind = "zero_then_large_credit"
	// AuditKindBurnBurst flags a burst of identical burn sources faster
	// than legitimate play allows.
	AuditKindBurnBurst AuditReportKind = "burn_burst"
	// AuditKindQuotaOverrun flags attacks_today above the configured max.
	AuditKindQuotaOverrun AuditReportKind = "quota_overrun"
	// AuditKindReconciliationMismatch flags SUM(deltas) != balance.
	AuditKindReconciliationMismatch AuditReportKind = "reconciliation_mismatch"
)

// AuditReport is a flagged finding. Reports only observe; any corrective
// action goes back through the ledger so it leaves its own entry.
type AuditReport struct {
	ID        string                 `db:"id" json:"id"` // uuid
	Address   string                 `db:"address" json:"address"`
	Kind      AuditReportKind        `db:"kind" json:"kind"`
	Details   map[string]interface{} `db:"details" json:"details,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// AuditSummary aggregates one address's ledger activity.
type AuditSummary struct {
	Address     string                     `json:"address"`
	EntryCount  int                        `json:"entry_count"`
	TotalEarned int64                      `json:"total_earned"`
	TotalSpent  int64                      `json:"total_spent"`
	NetBalance  int64                      `json:"net_balance"`
	BySource    map[string]SourceAggregate `json:"by_source"`
	Flags       []AuditReport              `json:"flags,omitempty"`
}

// SourceAggregate totals ledger entries produced by one source function.
type SourceAggregate struct {
	Count int   `json:"count"`
	Total int64 `json:"total"`
}
