package repository

import (
	"context"
	"encoding/json"

	"raid_backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateReport stores one flagged finding.
func (r *AuditRepository) CreateReport(ctx context.Context, rep *domain.AuditReport) error {
	detailsJSON, err := json.Marshal(rep.Details)
	if err != nil {
		return err
	}

	return r.db.QueryRow(ctx,
		`INSERT INTO audit_reports (id, address, kind, details)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		rep.ID, rep.Address, rep.Kind, detailsJSON,
	).Scan(&rep.CreatedAt)
}

// ReportsByAddress returns findings for one address, newest first.
func (r *AuditRepository) ReportsByAddress(ctx context.Context, address string, limit int) ([]domain.AuditReport, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, address, kind, details, created_at
		 FROM audit_reports
		 WHERE address = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReports(rows)
}

// RecentReports returns the latest findings across all addresses.
func (r *AuditRepository) RecentReports(ctx context.Context, limit int) ([]domain.AuditReport, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, address, kind, details, created_at
		 FROM audit_reports
		 ORDER BY created_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReports(rows)
}

func collectReports(rows pgx.Rows) ([]domain.AuditReport, error) {
	var reports []domain.AuditReport
	for rows.Next() {
		var (
			rep         domain.AuditReport
			detailsJSON []byte
		)
		if err := rows.Scan(&rep.ID, &rep.Address, &rep.Kind, &detailsJSON, &rep.CreatedAt); err != nil {
			return nil, err
		}
		if len(detailsJSON) > 0 {
			_ = json.Unmarshal(detailsJSON, &rep.Details)
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}
