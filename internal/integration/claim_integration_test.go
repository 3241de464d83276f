package integration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"raid_backend/internal/chain"
	"raid_backend/internal/domain"
	"raid_backend/internal/service"
	"raid_backend/internal/signer"

	"github.com/jackc/pgx/v5/pgxpool"
)

// deterministic throwaway key, 32-byte ed25519 seed
const testSignerKey = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func newClaimService(t *testing.T, db *pgxpool.Pool) (*service.ClaimService, *service.LedgerService) {
	t.Helper()
	sg, err := signer.New(testSignerKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	ledger := service.NewLedgerService(db)
	return service.NewClaimService(db, ledger, sg, nil, time.Hour, 0), ledger
}

// chainStub serves a successful indexed transaction for any hash.
func chainStub(t *testing.T) *chain.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hash":"stub","success":true}`))
	}))
	t.Cleanup(srv.Close)
	return chain.NewClient(srv.URL, "")
}

func newClaimServiceWith(t *testing.T, db *pgxpool.Pool, ch *chain.Client) *service.ClaimService {
	t.Helper()
	sg, err := signer.New(testSignerKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return service.NewClaimService(db, service.NewLedgerService(db), sg, ch, time.Hour, 0)
}

func TestPrepareClaim_DebitsAndSigns(t *testing.T) {
	db := connectDB(t)
	claims, _ := newClaimService(t, db)
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 500, baseDeck(10))

	claim, err := claims.PrepareClaim(ctx, addr, 200, "nonce-"+addr)
	if err != nil {
		t.Fatalf("prepare claim: %v", err)
	}

	if claim.Status != domain.ClaimStatusSigned {
		t.Errorf("status = %s, want signed", claim.Status)
	}
	if claim.Signature == "" {
		t.Error("claim has no signature")
	}
	if got := currentBalance(t, db, addr); got != 300 {
		t.Errorf("balance after claim = %d, want 300", got)
	}
	if replayBalance(t, db, addr) != 300 {
		t.Error("ledger does not reconcile after claim")
	}

	// stored row matches what was handed out
	stored, err := claims.Get(ctx, claim.ID)
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if stored.Signature != claim.Signature || stored.Amount != 200 {
		t.Errorf("stored claim diverges: %+v", stored)
	}
}

func TestPrepareClaim_DuplicateNonce(t *testing.T) {
	db := connectDB(t)
	claims, _ := newClaimService(t, db)
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 1000, baseDeck(10))
	nonce := "nonce-" + addr

	if _, err := claims.PrepareClaim(ctx, addr, 200, nonce); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	_, err := claims.PrepareClaim(ctx, addr, 200, nonce)
	if !errors.Is(err, service.ErrDuplicateNonce) {
		t.Fatalf("expected ErrDuplicateNonce, got %v", err)
	}

	// the replayed nonce must not debit a second time
	if got := currentBalance(t, db, addr); got != 800 {
		t.Errorf("balance = %d, want 800", got)
	}
	if replayBalance(t, db, addr) != 800 {
		t.Error("ledger does not reconcile after rejected replay")
	}
}

func TestPrepareClaim_Validation(t *testing.T) {
	db := connectDB(t)
	claims, _ := newClaimService(t, db)
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 150, baseDeck(10))

	if _, err := claims.PrepareClaim(ctx, addr, domain.MinClaimAmount-1, "small-"+addr); !errors.Is(err, service.ErrClaimTooSmall) {
		t.Errorf("expected ErrClaimTooSmall, got %v", err)
	}
	if _, err := claims.PrepareClaim(ctx, addr, 9999, "big-"+addr); !errors.Is(err, service.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := currentBalance(t, db, addr); got != 150 {
		t.Errorf("rejected claims changed balance: %d", got)
	}
	if n := entryCount(t, db, addr); n != 1 {
		t.Errorf("rejected claims wrote ledger entries: %d", n)
	}
}

func TestPrepareClaim_DisabledSigner(t *testing.T) {
	db := connectDB(t)
	sg, err := signer.New("")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	claims := service.NewClaimService(db, service.NewLedgerService(db), sg, nil, time.Hour, 0)

	addr := newAddr(t)
	seedProfile(t, db, addr, 500, baseDeck(10))

	if _, err := claims.PrepareClaim(context.Background(), addr, 200, "n-"+addr); !errors.Is(err, signer.ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
	if got := currentBalance(t, db, addr); got != 500 {
		t.Errorf("disabled signer debited anyway: %d", got)
	}
}

func TestExpireStale_CompensatesPending(t *testing.T) {
	db := connectDB(t)
	claims, _ := newClaimService(t, db)
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 500, baseDeck(10))

	claim, err := claims.PrepareClaim(ctx, addr, 200, "nonce-"+addr)
	if err != nil {
		t.Fatalf("prepare claim: %v", err)
	}
	if got := currentBalance(t, db, addr); got != 300 {
		t.Fatalf("balance after claim = %d, want 300", got)
	}

	// a crash between the debit commit and MarkSigned leaves the claim
	// pending with no signature issued
	if _, err := db.Exec(ctx,
		`UPDATE claim_requests
		 SET status = 'pending', signature = NULL, signed_at = NULL,
		     expires_at = now() - interval '1 minute'
		 WHERE id = $1`,
		claim.ID); err != nil {
		t.Fatalf("reset claim to pending: %v", err)
	}

	expired, err := claims.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	if expired < 1 {
		t.Fatalf("expired = %d, want at least 1", expired)
	}

	stored, err := claims.Get(ctx, claim.ID)
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if stored.Status != domain.ClaimStatusExpired {
		t.Errorf("status = %s, want expired", stored.Status)
	}
	if got := currentBalance(t, db, addr); got != 500 {
		t.Errorf("balance after compensation = %d, want 500", got)
	}
	if replayBalance(t, db, addr) != 500 {
		t.Error("ledger does not reconcile after compensation")
	}

	// a second sweep must not credit again
	if _, err := claims.ExpireStale(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if got := currentBalance(t, db, addr); got != 500 {
		t.Errorf("second sweep double-credited: %d", got)
	}
}

func TestExpireStale_LeavesSignedClaims(t *testing.T) {
	db := connectDB(t)
	claims, _ := newClaimService(t, db)
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 500, baseDeck(10))

	claim, err := claims.PrepareClaim(ctx, addr, 200, "nonce-"+addr)
	if err != nil {
		t.Fatalf("prepare claim: %v", err)
	}
	if claim.Status != domain.ClaimStatusSigned {
		t.Fatalf("status = %s, want signed", claim.Status)
	}

	if _, err := db.Exec(ctx,
		`UPDATE claim_requests SET expires_at = now() - interval '1 minute' WHERE id = $1`,
		claim.ID); err != nil {
		t.Fatalf("backdate claim: %v", err)
	}

	// the signature is out: an automatic refund here would let the holder
	// collect the refund and still redeem the signature on chain
	if _, err := claims.ExpireStale(ctx); err != nil {
		t.Fatalf("expire stale: %v", err)
	}

	stored, err := claims.Get(ctx, claim.ID)
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if stored.Status != domain.ClaimStatusSigned {
		t.Errorf("status = %s, want signed", stored.Status)
	}
	if got := currentBalance(t, db, addr); got != 300 {
		t.Errorf("sweep refunded a signed claim: balance = %d, want 300", got)
	}

	// the stuck claim is an operator decision
	comp, err := claims.Compensate(ctx, claim.ID)
	if err != nil {
		t.Fatalf("compensate: %v", err)
	}
	if comp.Status != domain.ClaimStatusExpired {
		t.Errorf("status after compensate = %s, want expired", comp.Status)
	}
	if got := currentBalance(t, db, addr); got != 500 {
		t.Errorf("balance after operator compensation = %d, want 500", got)
	}
}

func TestPrepareClaim_DailyCap(t *testing.T) {
	db := connectDB(t)
	sg, err := signer.New(testSignerKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	claims := service.NewClaimService(db, service.NewLedgerService(db), sg, nil, time.Hour, 300)
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 1000, baseDeck(10))

	if _, err := claims.PrepareClaim(ctx, addr, 200, "first-"+addr); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	if _, err := claims.PrepareClaim(ctx, addr, 200, "second-"+addr); !errors.Is(err, service.ErrDailyClaimCap) {
		t.Fatalf("expected ErrDailyClaimCap, got %v", err)
	}

	// rejected claim rolled its debit back
	if got := currentBalance(t, db, addr); got != 800 {
		t.Errorf("balance = %d, want 800", got)
	}

	// remaining headroom still claimable
	if _, err := claims.PrepareClaim(ctx, addr, 100, "third-"+addr); err != nil {
		t.Fatalf("claim within cap: %v", err)
	}
}

func TestCompensate_Operator(t *testing.T) {
	db := connectDB(t)
	claims, _ := newClaimService(t, db)
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 500, baseDeck(10))

	claim, err := claims.PrepareClaim(ctx, addr, 200, "nonce-"+addr)
	if err != nil {
		t.Fatalf("prepare claim: %v", err)
	}

	comp, err := claims.Compensate(ctx, claim.ID)
	if err != nil {
		t.Fatalf("compensate: %v", err)
	}
	if comp.Status != domain.ClaimStatusExpired {
		t.Errorf("status = %s, want expired", comp.Status)
	}
	if got := currentBalance(t, db, addr); got != 500 {
		t.Errorf("balance = %d, want 500", got)
	}

	// repeating the compensation must not pay twice
	if _, err := claims.Compensate(ctx, claim.ID); err != nil {
		t.Fatalf("repeat compensate: %v", err)
	}
	if got := currentBalance(t, db, addr); got != 500 {
		t.Errorf("repeat compensation changed balance: %d", got)
	}
	if replayBalance(t, db, addr) != 500 {
		t.Error("ledger does not reconcile after compensation")
	}
}

func TestCompensate_RefusesConfirmed(t *testing.T) {
	db := connectDB(t)
	claims := newClaimServiceWith(t, db, chainStub(t))
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 500, baseDeck(10))
	nonce := "nonce-" + addr

	claim, err := claims.PrepareClaim(ctx, addr, 200, nonce)
	if err != nil {
		t.Fatalf("prepare claim: %v", err)
	}
	if _, err := claims.Confirm(ctx, addr, nonce, "0x"+strings.Repeat("cd", 32)); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := claims.Compensate(ctx, claim.ID); !errors.Is(err, service.ErrClaimConfirmed) {
		t.Fatalf("expected ErrClaimConfirmed, got %v", err)
	}
	if got := currentBalance(t, db, addr); got != 300 {
		t.Errorf("confirmed claim was refunded: %d", got)
	}
}

func TestSignBattleResult_VerifiesSettledOutcome(t *testing.T) {
	db := connectDB(t)
	claims, _ := newClaimService(t, db)
	rooms := newRoomService(t, db, time.Hour)
	ctx := context.Background()

	host := newAddr(t)
	guest := newAddr(t)
	seedProfile(t, db, host, 100, baseDeck(100))
	seedProfile(t, db, guest, 100, vibefidDeck(100))

	room, err := rooms.CreateRoom(ctx, host)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	// nothing to attest before settlement
	if _, err := claims.SignBattleResult(ctx, room.RoomID, host); !errors.Is(err, service.ErrBattleOpen) {
		t.Errorf("expected ErrBattleOpen, got %v", err)
	}
	if _, err := claims.SignBattleResult(ctx, "no-such-battle", host); !errors.Is(err, service.ErrBattleNotFound) {
		t.Errorf("expected ErrBattleNotFound, got %v", err)
	}

	if _, err := rooms.JoinRoom(ctx, room.RoomID, guest); err != nil {
		t.Fatalf("join room: %v", err)
	}
	if _, err := rooms.StartBattle(ctx, room.RoomID); err != nil {
		t.Fatalf("start battle: %v", err)
	}
	result, err := rooms.FinishRoom(ctx, room.RoomID)
	if err != nil {
		t.Fatalf("finish room: %v", err)
	}
	if result.Winner != guest {
		t.Fatalf("winner = %s, want guest", result.Winner)
	}

	// the loser cannot mint a signature naming themselves winner
	if _, err := claims.SignBattleResult(ctx, room.RoomID, host); !errors.Is(err, service.ErrWinnerMismatch) {
		t.Fatalf("expected ErrWinnerMismatch, got %v", err)
	}

	sig, err := claims.SignBattleResult(ctx, room.RoomID, guest)
	if err != nil {
		t.Fatalf("sign battle result: %v", err)
	}
	if sig == "" {
		t.Fatal("empty signature")
	}

	// the battle id is burned: repeated calls return the stored signature
	again, err := claims.SignBattleResult(ctx, room.RoomID, guest)
	if err != nil {
		t.Fatalf("repeat sign: %v", err)
	}
	if again != sig {
		t.Errorf("repeat sign produced a different signature")
	}

	// and the mismatch guard still holds after issuance
	if _, err := claims.SignBattleResult(ctx, room.RoomID, host); err == nil {
		t.Error("conflicting winner accepted after signature issuance")
	}
}

func TestConfirm_RequiresSignedClaim(t *testing.T) {
	db := connectDB(t)
	claims := newClaimServiceWith(t, db, chainStub(t))
	ctx := context.Background()

	addr := newAddr(t)
	other := newAddr(t)
	seedProfile(t, db, addr, 500, baseDeck(10))
	nonce := "nonce-" + addr

	if _, err := claims.PrepareClaim(ctx, addr, 200, nonce); err != nil {
		t.Fatalf("prepare claim: %v", err)
	}

	txHash := "0x" + strings.Repeat("ab", 32)

	// without an indexer nothing can be treated as confirmed
	unwired, _ := newClaimService(t, db)
	if _, err := unwired.Confirm(ctx, addr, nonce, txHash); !errors.Is(err, service.ErrChainNotConfig) {
		t.Errorf("expected ErrChainNotConfig, got %v", err)
	}

	// only the claim owner may confirm it
	if _, err := claims.Confirm(ctx, other, nonce, txHash); !errors.Is(err, service.ErrClaimNotFound) {
		t.Errorf("expected ErrClaimNotFound for foreign caller, got %v", err)
	}
	if got := currentBalance(t, db, addr); got != 300 {
		t.Fatalf("rejected confirmations touched the balance: %d", got)
	}

	confirmed, err := claims.Confirm(ctx, addr, nonce, txHash)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != domain.ClaimStatusConfirmed || confirmed.TxHash != txHash {
		t.Errorf("confirmed claim = %+v", confirmed)
	}

	// confirming twice fails: the claim left the signed state
	if _, err := claims.Confirm(ctx, addr, nonce, txHash); !errors.Is(err, service.ErrClaimNotSigned) {
		t.Errorf("expected ErrClaimNotSigned, got %v", err)
	}
	if _, err := claims.Confirm(ctx, addr, "missing-"+addr, txHash); !errors.Is(err, service.ErrClaimNotFound) {
		t.Errorf("expected ErrClaimNotFound, got %v", err)
	}
	if _, err := claims.Confirm(ctx, addr, nonce, "not-a-hash"); !errors.Is(err, service.ErrInvalidTxHash) {
		t.Errorf("expected ErrInvalidTxHash, got %v", err)
	}
}

func TestConfirm_UnindexedTx(t *testing.T) {
	db := connectDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	claims := newClaimServiceWith(t, db, chain.NewClient(srv.URL, ""))
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 500, baseDeck(10))
	nonce := "nonce-" + addr

	claim, err := claims.PrepareClaim(ctx, addr, 200, nonce)
	if err != nil {
		t.Fatalf("prepare claim: %v", err)
	}
	if _, err := claims.Confirm(ctx, addr, nonce, "0x"+strings.Repeat("ef", 32)); !errors.Is(err, service.ErrTxNotConfirmed) {
		t.Errorf("expected ErrTxNotConfirmed, got %v", err)
	}
	stored, err := claims.Get(ctx, claim.ID)
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if stored.Status != domain.ClaimStatusSigned {
		t.Errorf("status = %s, want signed", stored.Status)
	}
}
