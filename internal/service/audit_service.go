package service

import (
	"context"
	"time"

	"raid_backend/internal/domain"
	"raid_backend/internal/logger"
	"raid_backend/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// largeCreditThreshold marks a credit as suspicious when it lands
	// right after a balance hit zero.
	largeCreditThreshold = 500
	// burnBurstCount / burnBurstWindow: this many debits from the same
	// source inside the window is faster than legitimate play allows.
	burnBurstCount  = 5
	burnBurstWindow = 30 * time.Second
	auditBatchSize  = 500
)

// AuditService is the offline anti-cheat scan. It reads the ledger stream
// per address and produces reports; it never mutates balances. Corrective
// action goes through the ledger so it leaves its own entry.
type AuditService struct {
	auditRepo   *repository.AuditRepository
	ledgerRepo  *repository.LedgerRepository
	profileRepo *repository.ProfileRepository
	ledger      *LedgerService
	maxAttacks  int
}

func NewAuditService(db *pgxpool.Pool, ledger *LedgerService, maxAttacks int) *AuditService {
	if maxAttacks <= 0 {
		maxAttacks = 5
	}
	return &AuditService{
		auditRepo:   repository.NewAuditRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		profileRepo: repository.NewProfileRepository(db),
		ledger:      ledger,
		maxAttacks:  maxAttacks,
	}
}

// ScanAddress runs every detector over one address and stores the findings.
func (s *AuditService) ScanAddress(ctx context.Context, address string) ([]domain.AuditReport, error) {
	entries, err := s.ledgerRepo.AllByAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	var reports []domain.AuditReport
	reports = append(reports, detectZeroThenCredit(address, entries)...)
	reports = append(reports, detectBurnBursts(address, entries)...)

	profile, err := s.profileRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if profile != nil && profile.AttacksToday > s.maxAttacks {
		reports = append(reports, domain.AuditReport{
			Address: address,
			Kind:    domain.AuditKindQuotaOverrun,
			Details: map[string]interface{}{
				"attacks_today": profile.AttacksToday,
				"max_attacks":   s.maxAttacks,
			},
		})
	}

	balance, replayed, ok, err := s.ledger.Reconcile(ctx, address)
	if err != nil {
		return nil, err
	}
	if !ok {
		reports = append(reports, domain.AuditReport{
			Address: address,
			Kind:    domain.AuditKindReconciliationMismatch,
			Details: map[string]interface{}{
				"balance":  balance,
				"replayed": replayed,
			},
		})
	}

	for i := range reports {
		reports[i].ID = uuid.New().String()
		if err := s.auditRepo.CreateReport(ctx, &reports[i]); err != nil {
			return nil, err
		}
		logger.Warn("audit finding",
			"address", address, "kind", string(reports[i].Kind))
	}
	return reports, nil
}

// ScanAll walks every address with ledger activity. Scheduled nightly.
func (s *AuditService) ScanAll(ctx context.Context) (int, error) {
	var flagged int
	for offset := 0; ; offset += auditBatchSize {
		addrs, err := s.ledgerRepo.ActiveAddresses(ctx, auditBatchSize, offset)
		if err != nil {
			return flagged, err
		}
		if len(addrs) == 0 {
			return flagged, nil
		}
		for _, addr := range addrs {
			reports, err := s.ScanAddress(ctx, addr)
			if err != nil {
				logger.Error("audit scan failed", "address", addr, "error", err.Error())
				continue
			}
			flagged += len(reports)
		}
	}
}

// Summary aggregates one address's ledger activity plus stored findings.
func (s *AuditService) Summary(ctx context.Context, address string) (*domain.AuditSummary, error) {
	entries, err := s.ledgerRepo.AllByAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	summary := &domain.AuditSummary{
		Address:  address,
		BySource: make(map[string]domain.SourceAggregate),
	}
	for _, e := range entries {
		summary.EntryCount++
		summary.NetBalance += e.Delta
		if e.Delta > 0 {
			summary.TotalEarned += e.Delta
		} else {
			summary.TotalSpent += -e.Delta
		}
		agg := summary.BySource[e.SourceFunction]
		agg.Count++
		agg.Total += e.Delta
		summary.BySource[e.SourceFunction] = agg
	}

	flags, err := s.auditRepo.ReportsByAddress(ctx, address, 50)
	if err != nil {
		return nil, err
	}
	summary.Flags = flags
	return summary, nil
}

// RecentReports lists the latest findings across all addresses.
func (s *AuditService) RecentReports(ctx context.Context, limit int) ([]domain.AuditReport, error) {
	return s.auditRepo.RecentReports(ctx, limit)
}

// detectZeroThenCredit flags a balance hitting zero immediately followed by
// a large credit.
func detectZeroThenCredit(address string, entries []domain.LedgerEntry) []domain.AuditReport {
	var reports []domain.AuditReport
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if prev.ResultingBalance == 0 && cur.Delta >= largeCreditThreshold {
			reports = append(reports, domain.AuditReport{
				Address: address,
				Kind:    domain.AuditKindZeroThenCredit,
				Details: map[string]interface{}{
					"zero_entry_id":   prev.ID,
					"credit_entry_id": cur.ID,
					"credit":          cur.Delta,
				},
			})
		}
	}
	return reports
}

// detectBurnBursts flags runs of same-source debits tighter than the burst
// window.
func detectBurnBursts(address string, entries []domain.LedgerEntry) []domain.AuditReport {
	bySource := make(map[string][]domain.LedgerEntry)
	for _, e := range entries {
		if e.Delta < 0 {
			bySource[e.SourceFunction] = append(bySource[e.SourceFunction], e)
		}
	}

	var reports []domain.AuditReport
	for source, debits := range bySource {
		for i := 0; i+burnBurstCount <= len(debits); i++ {
			window := debits[i+burnBurstCount-1].CreatedAt.Sub(debits[i].CreatedAt)
			if window <= burnBurstWindow {
				reports = append(reports, domain.AuditReport{
					Address: address,
					Kind:    domain.AuditKindBurnBurst,
					Details: map[string]interface{}{
						"source":         source,
						"count":          burnBurstCount,
						"window_seconds": window.Seconds(),
						"first_entry_id": debits[i].ID,
					},
				})
				break
			}
		}
	}
	return reports
}
