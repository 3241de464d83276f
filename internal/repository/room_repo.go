package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"raid_backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRoomConflict is returned when a room transition races another writer,
// e.g. two guests joining the same waiting room.
var ErrRoomConflict = errors.New("room state conflict")

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create opens a waiting room and records the host's presence.
func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx,
		`INSERT INTO rooms (room_id, host_address, status, last_heartbeat)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING last_heartbeat, created_at`,
		room.RoomID, room.HostAddress, room.Status,
	).Scan(&room.LastHeartbeat, &room.CreatedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO room_presence (room_id, address) VALUES ($1, $2)`,
		room.RoomID, room.HostAddress); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a room, or nil if absent.
func (r *RoomRepository) GetByID(ctx context.Context, roomID string) (*domain.Room, error) {
	row := r.db.QueryRow(ctx,
		`SELECT room_id, host_address, COALESCE(guest_address, ''), status,
		        host_deck, guest_deck, host_power, guest_power,
		        COALESCE(winner_address, ''), last_heartbeat, created_at
		 FROM rooms WHERE room_id = $1`, roomID)
	return scanRoom(row)
}

// Join seats a guest in a waiting room. The WHERE clause is the guard: only
// one of two racing joins will find the row still waiting and guestless.
func (r *RoomRepository) Join(ctx context.Context, roomID, guest string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE rooms
		 SET guest_address = $2, status = $3, last_heartbeat = NOW()
		 WHERE room_id = $1 AND status = $4 AND guest_address IS NULL`,
		roomID, guest, domain.RoomStatusMatched, domain.RoomStatusWaiting)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomConflict
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO room_presence (room_id, address) VALUES ($1, $2)`,
		roomID, guest); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// StartBattle snapshots both decks and moves matched -> in_battle.
func (r *RoomRepository) StartBattle(ctx context.Context, roomID string, hostDeck, guestDeck []domain.Card, hostPower, guestPower int64) error {
	hostJSON, err := json.Marshal(hostDeck)
	if err != nil {
		return err
	}
	guestJSON, err := json.Marshal(guestDeck)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE rooms
		 SET status = $2, host_deck = $3, guest_deck = $4,
		     host_power = $5, guest_power = $6, last_heartbeat = NOW()
		 WHERE room_id = $1 AND status = $7`,
		roomID, domain.RoomStatusInBattle, hostJSON, guestJSON,
		hostPower, guestPower, domain.RoomStatusMatched)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomConflict
	}
	return nil
}

// FinishTx moves in_battle -> finished inside the settlement transaction so
// the terminal status and payouts commit atomically. The guard makes a
// second finish call a no-op at the caller's level.
func (r *RoomRepository) FinishTx(ctx context.Context, tx pgx.Tx, roomID, winner string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE rooms
		 SET status = $2, winner_address = $3, last_heartbeat = NOW()
		 WHERE room_id = $1 AND status = $4`,
		roomID, domain.RoomStatusFinished, winner, domain.RoomStatusInBattle)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomConflict
	}
	return nil
}

// Heartbeat refreshes the eviction clock for a live room.
func (r *RoomRepository) Heartbeat(ctx context.Context, roomID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE rooms SET last_heartbeat = NOW()
		 WHERE room_id = $1 AND status NOT IN ($2, $3)`,
		roomID, domain.RoomStatusFinished, domain.RoomStatusExpired)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SweepExpired deletes rooms whose heartbeat is strictly past the TTL,
// regardless of state, together with their presence rows. Rooms exactly at
// the threshold are left alone, so the sweep is safe to run alongside an
// active match. Returns the reclaimed room ids.
func (r *RoomRepository) SweepExpired(ctx context.Context, ttl time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-ttl)

	// room_presence rows go with their room via ON DELETE CASCADE.
	rows, err := r.db.Query(ctx,
		`DELETE FROM rooms WHERE last_heartbeat < $1 RETURNING room_id`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Presence lists the participants currently attached to a room.
func (r *RoomRepository) Presence(ctx context.Context, roomID string) ([]domain.RoomPresence, error) {
	rows, err := r.db.Query(ctx,
		`SELECT room_id, address, joined_at FROM room_presence WHERE room_id = $1 ORDER BY joined_at`,
		roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presence []domain.RoomPresence
	for rows.Next() {
		var p domain.RoomPresence
		if err := rows.Scan(&p.RoomID, &p.Address, &p.JoinedAt); err != nil {
			return nil, err
		}
		presence = append(presence, p)
	}
	return presence, rows.Err()
}

// OpenRooms lists waiting rooms for matchmaking, oldest first.
func (r *RoomRepository) OpenRooms(ctx context.Context, limit int) ([]domain.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT room_id, host_address, COALESCE(guest_address, ''), status,
		        host_deck, guest_deck, host_power, guest_power,
		        COALESCE(winner_address, ''), last_heartbeat, created_at
		 FROM rooms
		 WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT $2`, domain.RoomStatusWaiting, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		room, err := scanRoomRow(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

func scanRoom(row pgx.Row) (*domain.Room, error) {
	room, err := scanRoomRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

func scanRoomRow(row pgx.Row) (*domain.Room, error) {
	var (
		room      domain.Room
		hostJSON  []byte
		guestJSON []byte
	)
	if err := row.Scan(&room.RoomID, &room.HostAddress, &room.GuestAddress, &room.Status,
		&hostJSON, &guestJSON, &room.HostPower, &room.GuestPower,
		&room.WinnerAddress, &room.LastHeartbeat, &room.CreatedAt); err != nil {
		return nil, err
	}
	if len(hostJSON) > 0 {
		_ = json.Unmarshal(hostJSON, &room.HostDeck)
	}
	if len(guestJSON) > 0 {
		_ = json.Unmarshal(guestJSON, &room.GuestDeck)
	}
	return &room, nil
}
