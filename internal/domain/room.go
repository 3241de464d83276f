package domain

import "time"

// RoomStatus is the live-PvP room state machine:
// waiting -> matched -> in_battle -> finished, with expired reachable from
// waiting or matched via the TTL sweep.
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusMatched  RoomStatus = "matched"
	RoomStatusInBattle RoomStatus = "in_battle"
	RoomStatusFinished RoomStatus = "finished"
	RoomStatusExpired  RoomStatus = "expired"
)

// Room is a live PvP room. LastHeartbeat drives TTL eviction.
type Room struct {
	RoomID        string     `db:"room_id" json:"room_id"`
	HostAddress   string     `db:"host_address" json:"host_address"`
	GuestAddress  string     `db:"guest_address" json:"guest_address,omitempty"`
	Status        RoomStatus `db:"status" json:"status"`
	HostDeck      []Card     `db:"host_deck" json:"host_deck,omitempty"`
	GuestDeck     []Card     `db:"guest_deck" json:"guest_deck,omitempty"`
	HostPower     int64      `db:"host_power" json:"host_power"`
	GuestPower    int64      `db:"guest_power" json:"guest_power"`
	WinnerAddress string     `db:"winner_address" json:"winner_address,omitempty"`
	LastHeartbeat time.Time  `db:"last_heartbeat" json:"last_heartbeat"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// RoomPresence is an ephemeral participant record tied to a room; the TTL
// sweep removes presence rows together with their room.
type RoomPresence struct {
	RoomID   string    `db:"room_id" json:"room_id"`
	Address  string    `db:"address" json:"address"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}
