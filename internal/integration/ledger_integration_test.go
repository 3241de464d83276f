package integration

import (
	"context"
	"errors"
	"testing"

	"raid_backend/internal/domain"
	"raid_backend/internal/service"
)

func TestLedgerAdjust_CreditAndDebit(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 100, baseDeck(10))

	entry, err := ledger.Adjust(ctx, addr, 50, domain.ReasonRaidWin, domain.SourceResolveRaid, "")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if entry.ResultingBalance != 150 {
		t.Errorf("resulting balance = %d, want 150", entry.ResultingBalance)
	}

	entry, err = ledger.Adjust(ctx, addr, -30, domain.ReasonRaidLoss, domain.SourceResolveRaid, "")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if entry.ResultingBalance != 120 {
		t.Errorf("resulting balance = %d, want 120", entry.ResultingBalance)
	}

	if got := replayBalance(t, db, addr); got != 120 {
		t.Errorf("replayed balance = %d, want 120", got)
	}
	if got := currentBalance(t, db, addr); got != 120 {
		t.Errorf("projected balance = %d, want 120", got)
	}
}

func TestLedgerAdjust_InsufficientBalance(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 30, baseDeck(10))
	before := entryCount(t, db, addr)

	_, err := ledger.Adjust(ctx, addr, -50, domain.ReasonClaimDebit, domain.SourcePrepareClaim, "")
	if !errors.Is(err, service.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if got := entryCount(t, db, addr); got != before {
		t.Errorf("rejected debit appended an entry: %d -> %d", before, got)
	}
	if got := currentBalance(t, db, addr); got != 30 {
		t.Errorf("balance changed on rejected debit: %d", got)
	}
}

func TestLedgerAdjust_IdempotentRetry(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 100, baseDeck(10))

	first, err := ledger.Adjust(ctx, addr, 40, domain.ReasonAdminAdjust, domain.SourceAdmin, "op-1")
	if err != nil {
		t.Fatalf("first adjust: %v", err)
	}

	second, err := ledger.Adjust(ctx, addr, 40, domain.ReasonAdminAdjust, domain.SourceAdmin, "op-1")
	if err != nil {
		t.Fatalf("retried adjust: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("retry produced a new entry: %d vs %d", second.ID, first.ID)
	}
	if got := currentBalance(t, db, addr); got != 140 {
		t.Errorf("balance = %d, want 140 (delta applied once)", got)
	}
}

func TestLedgerReconcile(t *testing.T) {
	db := connectDB(t)
	ledger := service.NewLedgerService(db)
	ctx := context.Background()

	addr := newAddr(t)
	seedProfile(t, db, addr, 200, baseDeck(10))

	if _, err := ledger.Adjust(ctx, addr, -50, domain.ReasonClaimDebit, domain.SourcePrepareClaim, ""); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	balance, replayed, ok, err := ledger.Reconcile(ctx, addr)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !ok {
		t.Errorf("reconcile mismatch: balance=%d replayed=%d", balance, replayed)
	}
}
