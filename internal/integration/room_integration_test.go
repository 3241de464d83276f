package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"raid_backend/internal/domain"
	"raid_backend/internal/service"
	"raid_backend/internal/ws"

	"github.com/jackc/pgx/v5/pgxpool"
)

func newRoomService(t *testing.T, db *pgxpool.Pool, ttl time.Duration) *service.RoomService {
	t.Helper()
	return service.NewRoomService(db, service.NewLedgerService(db), ws.NewHub(), ttl)
}

func TestRoomLifecycle(t *testing.T) {
	db := connectDB(t)
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
	if room.Status != domain.RoomStatusWaiting {
		t.Fatalf("new room status = %s, want waiting", room.Status)
	}

	if _, err := rooms.JoinRoom(ctx, room.RoomID, host); !errors.Is(err, service.ErrSelfJoin) {
		t.Errorf("expected ErrSelfJoin, got %v", err)
	}

	joined, err := rooms.JoinRoom(ctx, room.RoomID, guest)
	if err != nil {
		t.Fatalf("join room: %v", err)
	}
	if joined.Status != domain.RoomStatusMatched || joined.GuestAddress != guest {
		t.Fatalf("joined room = %+v", joined)
	}

	// the guest slot is taken now
	third := newAddr(t)
	seedProfile(t, db, third, 100, baseDeck(100))
	if _, err := rooms.JoinRoom(ctx, room.RoomID, third); !errors.Is(err, service.ErrRoomState) {
		t.Errorf("expected ErrRoomState for full room, got %v", err)
	}

	started, err := rooms.StartBattle(ctx, room.RoomID)
	if err != nil {
		t.Fatalf("start battle: %v", err)
	}
	if started.Status != domain.RoomStatusInBattle {
		t.Fatalf("started room status = %s", started.Status)
	}
	if started.HostPower != 500 || started.GuestPower != 2500 {
		t.Errorf("snapshotted powers = %d vs %d, want 500 vs 2500", started.HostPower, started.GuestPower)
	}

	result, err := rooms.FinishRoom(ctx, room.RoomID)
	if err != nil {
		t.Fatalf("finish room: %v", err)
	}
	if result.Winner != guest {
		t.Errorf("winner = %s, want guest", result.Winner)
	}

	if got := currentBalance(t, db, guest); got != 200 {
		t.Errorf("winner balance = %d, want 200", got)
	}
	if got := currentBalance(t, db, host); got != 80 {
		t.Errorf("loser balance = %d, want 80", got)
	}
	for _, addr := range []string{host, guest} {
		if replayBalance(t, db, addr) != currentBalance(t, db, addr) {
			t.Errorf("ledger does not reconcile for %s", addr)
		}
	}

	// a second finish must not settle again
	if _, err := rooms.FinishRoom(ctx, room.RoomID); !errors.Is(err, service.ErrRoomState) {
		t.Errorf("expected ErrRoomState on double finish, got %v", err)
	}
	if got := currentBalance(t, db, guest); got != 200 {
		t.Errorf("double finish changed winner balance: %d", got)
	}
}

func TestFinishRoom_TieGoesToHost(t *testing.T) {
	db := connectDB(t)
	rooms := newRoomService(t, db, time.Hour)
	ctx := context.Background()

	host := newAddr(t)
	guest := newAddr(t)
	seedProfile(t, db, host, 100, baseDeck(100))
	seedProfile(t, db, guest, 100, baseDeck(100))

	room, err := rooms.CreateRoom(ctx, host)
	if err != nil {
		t.Fatalf("create room: %v", err)
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
	if result.Winner != host {
		t.Errorf("tie winner = %s, want host", result.Winner)
	}
}

func TestStartBattle_RequiresMatchedRoom(t *testing.T) {
	db := connectDB(t)
	rooms := newRoomService(t, db, time.Hour)
	ctx := context.Background()

	host := newAddr(t)
	seedProfile(t, db, host, 100, baseDeck(100))

	room, err := rooms.CreateRoom(ctx, host)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if _, err := rooms.StartBattle(ctx, room.RoomID); !errors.Is(err, service.ErrRoomState) {
		t.Errorf("expected ErrRoomState for waiting room, got %v", err)
	}
	if _, err := rooms.FinishRoom(ctx, room.RoomID); !errors.Is(err, service.ErrRoomState) {
		t.Errorf("expected ErrRoomState for unfinishable room, got %v", err)
	}
	if _, err := rooms.FinishRoom(ctx, "no-such-room"); !errors.Is(err, service.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestSweep_RemovesOnlyStaleRooms(t *testing.T) {
	db := connectDB(t)
	rooms := newRoomService(t, db, time.Hour)
	ctx := context.Background()

	host := newAddr(t)
	seedProfile(t, db, host, 100, baseDeck(100))

	fresh, err := rooms.CreateRoom(ctx, host)
	if err != nil {
		t.Fatalf("create fresh room: %v", err)
	}
	stale, err := rooms.CreateRoom(ctx, host)
	if err != nil {
		t.Fatalf("create stale room: %v", err)
	}

	if _, err := db.Exec(ctx,
		`UPDATE rooms SET last_heartbeat = now() - interval '2 hours' WHERE room_id = $1`,
		stale.RoomID); err != nil {
		t.Fatalf("backdate room: %v", err)
	}

	if _, err := rooms.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if _, _, err := rooms.Get(ctx, stale.RoomID); !errors.Is(err, service.ErrRoomNotFound) {
		t.Errorf("stale room survived the sweep: %v", err)
	}
	got, presence, err := rooms.Get(ctx, fresh.RoomID)
	if err != nil {
		t.Fatalf("fresh room gone after sweep: %v", err)
	}
	if got.Status != domain.RoomStatusWaiting {
		t.Errorf("fresh room status = %s", got.Status)
	}
	if len(presence) != 1 || presence[0].Address != host {
		t.Errorf("fresh room presence = %+v", presence)
	}

	// presence rows of the deleted room are gone too
	var n int
	if err := db.QueryRow(ctx,
		`SELECT count(*) FROM room_presence WHERE room_id = $1`, stale.RoomID).Scan(&n); err != nil {
		t.Fatalf("count presence: %v", err)
	}
	if n != 0 {
		t.Errorf("stale presence rows left behind: %d", n)
	}
}

func TestRoomHeartbeat(t *testing.T) {
	db := connectDB(t)
	rooms := newRoomService(t, db, time.Hour)
	ctx := context.Background()

	host := newAddr(t)
	seedProfile(t, db, host, 100, baseDeck(100))

	room, err := rooms.CreateRoom(ctx, host)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	before := room.LastHeartbeat

	time.Sleep(20 * time.Millisecond)
	if err := rooms.Heartbeat(ctx, room.RoomID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	got, _, err := rooms.Get(ctx, room.RoomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if !got.LastHeartbeat.After(before) {
		t.Errorf("heartbeat did not advance: %v -> %v", before, got.LastHeartbeat)
	}
}
