package repository

import (
	"context"
	"errors"
	"time"

	"raid_backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNonceUsed is returned when a claim nonce has already been consumed.
var ErrNonceUsed = errors.New("claim nonce already used")

type ClaimRepository struct {
	db *pgxpool.Pool
}

func NewClaimRepository(db *pgxpool.Pool) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// CreateWithTx inserts a pending claim in the same transaction as its debit.
// The unique index on nonce makes replayed nonces fail the whole
// transaction, so a replay never debits.
func (r *ClaimRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, c *domain.ClaimRequest) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO claim_requests (id, address, amount, nonce, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		c.ID, c.Address, c.Amount, c.Nonce, c.Status, c.ExpiresAt,
	).Scan(&c.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrNonceUsed
	}
	return err
}

// GetByID retrieves a claim, or nil if absent.
func (r *ClaimRepository) GetByID(ctx context.Context, id string) (*domain.ClaimRequest, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, address, amount, nonce, COALESCE(signature, ''), status, COALESCE(tx_hash, ''),
		        created_at, signed_at, confirmed_at, expires_at
		 FROM claim_requests WHERE id = $1`, id)
	return scanClaim(row)
}

// GetByNonce retrieves a claim by its nonce, or nil if absent.
func (r *ClaimRepository) GetByNonce(ctx context.Context, nonce string) (*domain.ClaimRequest, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, address, amount, nonce, COALESCE(signature, ''), status, COALESCE(tx_hash, ''),
		        created_at, signed_at, confirmed_at, expires_at
		 FROM claim_requests WHERE nonce = $1`, nonce)
	return scanClaim(row)
}

// MarkSigned attaches the signature and moves pending -> signed.
func (r *ClaimRepository) MarkSigned(ctx context.Context, id, signature string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE claim_requests
		 SET status = $2, signature = $3, signed_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, domain.ClaimStatusSigned, signature, domain.ClaimStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkFailed moves pending -> failed after a compensated signing failure.
func (r *ClaimRepository) MarkFailed(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE claim_requests SET status = $2 WHERE id = $1 AND status = $3`,
		id, domain.ClaimStatusFailed, domain.ClaimStatusPending)
	return err
}

// ClaimedTodayTx sums the claims opened since dayStart that still hold
// coins. Failed and expired claims were refunded, so they do not count
// against the daily allowance.
func (r *ClaimRepository) ClaimedTodayTx(ctx context.Context, tx pgx.Tx, address string, dayStart time.Time) (int64, error) {
	var sum int64
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM claim_requests
		 WHERE address = $1 AND created_at >= $2 AND status NOT IN ($3, $4)`,
		address, dayStart, domain.ClaimStatusFailed, domain.ClaimStatusExpired).Scan(&sum)
	return sum, err
}

// ForceExpire moves an unredeemed claim to expired regardless of its
// expiry time. Confirmed claims are never touched.
func (r *ClaimRepository) ForceExpire(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE claim_requests SET status = $2 WHERE id = $1 AND status IN ($3, $4)`,
		id, domain.ClaimStatusExpired, domain.ClaimStatusPending, domain.ClaimStatusSigned)
	return err
}

// MarkConfirmed records the on-chain transaction, moving signed -> confirmed.
func (r *ClaimRepository) MarkConfirmed(ctx context.Context, id, txHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE claim_requests
		 SET status = $2, tx_hash = $3, confirmed_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, domain.ClaimStatusConfirmed, txHash, domain.ClaimStatusSigned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ExpireStale marks pending claims past their deadline as expired and
// returns them for compensation. Nonces stay burned. Signed claims are
// never swept: their signature is already in the player's hands and stays
// redeemable on chain, so an automatic refund would pay twice. A stuck
// signed claim goes through the operator ForceExpire path instead.
func (r *ClaimRepository) ExpireStale(ctx context.Context, now time.Time) ([]domain.ClaimRequest, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE claim_requests
		 SET status = $1
		 WHERE status = $2 AND expires_at < $3
		 RETURNING id, address, amount, nonce, COALESCE(signature, ''), status, COALESCE(tx_hash, ''),
		           created_at, signed_at, confirmed_at, expires_at`,
		domain.ClaimStatusExpired, domain.ClaimStatusPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []domain.ClaimRequest
	for rows.Next() {
		c, err := scanClaimRow(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

// CreateBattleSignature burns the battle id as a single-use nonce. A
// second insert for the same battle returns ErrNonceUsed.
func (r *ClaimRepository) CreateBattleSignature(ctx context.Context, battleID, winner, signature string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO battle_signatures (battle_id, winner, signature) VALUES ($1, $2, $3)`,
		battleID, winner, signature)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrNonceUsed
	}
	return err
}

// GetBattleSignature returns the stored signature for a battle, or "" if
// none was issued yet.
func (r *ClaimRepository) GetBattleSignature(ctx context.Context, battleID string) (string, error) {
	var sig string
	err := r.db.QueryRow(ctx,
		`SELECT signature FROM battle_signatures WHERE battle_id = $1`, battleID).Scan(&sig)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return sig, err
}

func scanClaim(row pgx.Row) (*domain.ClaimRequest, error) {
	c, err := scanClaimRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func scanClaimRow(row pgx.Row) (*domain.ClaimRequest, error) {
	var c domain.ClaimRequest
	if err := row.Scan(&c.ID, &c.Address, &c.Amount, &c.Nonce, &c.Signature,
		&c.Status, &c.TxHash, &c.CreatedAt, &c.SignedAt, &c.ConfirmedAt, &c.ExpiresAt); err != nil {
		return nil, err
	}
	return &c, nil
}
