package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raid_backend/internal/domain"
	"raid_backend/internal/logger"
	"raid_backend/internal/power"
	"raid_backend/internal/repository"
	"raid_backend/internal/ws"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomState    = errors.New("room is not in the required state")
	ErrSelfJoin     = errors.New("cannot join your own room")
)

// RoomService runs the live-PvP room lifecycle. Rooms live in the database;
// the websocket hub only mirrors transitions to subscribers, so a crashed
// process loses no room state.
type RoomService struct {
	db          *pgxpool.Pool
	roomRepo    *repository.RoomRepository
	profileRepo *repository.ProfileRepository
	raidRepo    *repository.RaidRepository
	ledger      *LedgerService
	hub         *ws.Hub
	ttl         time.Duration
}

func NewRoomService(db *pgxpool.Pool, ledger *LedgerService, hub *ws.Hub, ttl time.Duration) *RoomService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RoomService{
		db:          db,
		roomRepo:    repository.NewRoomRepository(db),
		profileRepo: repository.NewProfileRepository(db),
		raidRepo:    repository.NewRaidRepository(db),
		ledger:      ledger,
		hub:         hub,
		ttl:         ttl,
	}
}

func (s *RoomService) requireActive(ctx context.Context, address string) error {
	p, err := s.profileRepo.GetByAddress(ctx, address)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrProfileNotFound
	}
	if p.BannedAt != nil {
		return ErrBanned
	}
	return nil
}

// CreateRoom opens a waiting room hosted by the given address.
func (s *RoomService) CreateRoom(ctx context.Context, host string) (*domain.Room, error) {
	if err := s.requireActive(ctx, host); err != nil {
		return nil, err
	}

	room := &domain.Room{
		RoomID:      uuid.New().String(),
		HostAddress: host,
		Status:      domain.RoomStatusWaiting,
	}
	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, err
	}

	logger.Info("room created", "room_id", room.RoomID, "host", host)
	return room, nil
}

// JoinRoom seats a guest. Only a waiting room can be joined; a racing
// second guest loses the update and gets ErrRoomState.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, guest string) (*domain.Room, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.HostAddress == guest {
		return nil, ErrSelfJoin
	}
	if err := s.requireActive(ctx, guest); err != nil {
		return nil, err
	}

	if err := s.roomRepo.Join(ctx, roomID, guest); err != nil {
		if errors.Is(err, repository.ErrRoomConflict) {
			return nil, ErrRoomState
		}
		return nil, err
	}

	s.hub.Publish(roomID, ws.EventGuestJoined, map[string]string{"guest": guest})

	room.GuestAddress = guest
	room.Status = domain.RoomStatusMatched
	return room, nil
}

// StartBattle snapshots both players' defense decks and powers and moves the
// room into battle. Both players need a full deck.
func (s *RoomService) StartBattle(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.Status != domain.RoomStatusMatched {
		return nil, ErrRoomState
	}

	host, err := s.profileRepo.GetByAddress(ctx, room.HostAddress)
	if err != nil {
		return nil, err
	}
	guest, err := s.profileRepo.GetByAddress(ctx, room.GuestAddress)
	if err != nil {
		return nil, err
	}
	if host == nil || guest == nil {
		return nil, ErrProfileNotFound
	}
	if !host.HasFullDefenseDeck || !guest.HasFullDefenseDeck {
		return nil, ErrNoDefenseDeck
	}

	hostPower := power.DeckPower(host.DefenseDeck, false)
	guestPower := power.DeckPower(guest.DefenseDeck, false)

	if err := s.roomRepo.StartBattle(ctx, roomID, host.DefenseDeck, guest.DefenseDeck, hostPower, guestPower); err != nil {
		if errors.Is(err, repository.ErrRoomConflict) {
			return nil, ErrRoomState
		}
		return nil, err
	}

	s.hub.Publish(roomID, ws.EventBattleStarted, map[string]int64{
		"host_power":  hostPower,
		"guest_power": guestPower,
	})

	room.Status = domain.RoomStatusInBattle
	room.HostDeck = host.DefenseDeck
	room.GuestDeck = guest.DefenseDeck
	room.HostPower = hostPower
	room.GuestPower = guestPower
	return room, nil
}

// FinishRoom settles the battle from the snapshotted powers: higher power
// wins, a tie goes to the host, who stood as the defending side. Settlement
// writes the match record and both ledger entries in one transaction; the
// in_battle guard makes a second finish a clean ErrRoomState.
func (s *RoomService) FinishRoom(ctx context.Context, roomID string) (*domain.RaidResult, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.Status != domain.RoomStatusInBattle {
		return nil, ErrRoomState
	}

	guestWon := room.GuestPower > room.HostPower
	winner, loser := room.HostAddress, room.GuestAddress
	if guestWon {
		winner, loser = room.GuestAddress, room.HostAddress
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.roomRepo.FinishTx(ctx, tx, roomID, winner); err != nil {
		if errors.Is(err, repository.ErrRoomConflict) {
			return nil, ErrRoomState
		}
		return nil, err
	}

	// Match history reuses the raid record: the guest challenged, the host
	// defended.
	outcome := domain.RaidOutcomeLoss
	if guestWon {
		outcome = domain.RaidOutcomeWin
	}
	attempt := &domain.RaidAttempt{
		Attacker:      room.GuestAddress,
		Defender:      room.HostAddress,
		AttackerPower: room.GuestPower,
		DefenderPower: room.HostPower,
		Outcome:       outcome,
		DefenderDeck:  room.HostDeck,
	}

	// Same address-order locking as the raid path, so a settlement and a
	// raid touching the same pair cannot deadlock.
	first, second := winner, loser
	if first > second {
		first, second = second, first
	}
	profiles := map[string]*domain.Profile{}
	for _, addr := range []string{first, second} {
		p, err := s.profileRepo.GetForUpdateTx(ctx, tx, addr)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, ErrProfileNotFound
		}
		profiles[addr] = p
	}
	loserProfile := profiles[loser]

	winDelta := int64(pvpWinReward)
	lossDelta := -clampPenalty(pvpLossPenalty, loserProfile.Coins)
	if guestWon {
		attempt.Reward = winDelta
	} else {
		attempt.Reward = lossDelta
	}

	if err := s.raidRepo.CreateWithTx(ctx, tx, attempt); err != nil {
		return nil, err
	}

	winEntry, err := s.ledger.AdjustTx(ctx, tx, winner, winDelta,
		domain.ReasonPvPWin, domain.SourceFinishRoom, fmt.Sprintf("room:%s:win", roomID))
	if err != nil {
		return nil, err
	}
	if lossDelta != 0 {
		if _, err := s.ledger.AdjustTx(ctx, tx, loser, lossDelta,
			domain.ReasonPvPLoss, domain.SourceFinishRoom, fmt.Sprintf("room:%s:loss", roomID)); err != nil {
			return nil, err
		}
	}
	if err := s.profileRepo.RecordRaidStatsTx(ctx, tx, room.GuestAddress, room.HostAddress, guestWon); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.hub.Publish(roomID, ws.EventBattleFinished, map[string]interface{}{
		"winner":      winner,
		"host_power":  room.HostPower,
		"guest_power": room.GuestPower,
	})

	logger.Info("room finished",
		"room_id", roomID, "winner", winner,
		"host_power", room.HostPower, "guest_power", room.GuestPower)

	return &domain.RaidResult{
		Winner:        winner,
		Outcome:       outcome,
		AttackerPower: room.GuestPower,
		DefenderPower: room.HostPower,
		Reward:        attempt.Reward,
		NewBalance:    winEntry.ResultingBalance,
	}, nil
}

// Heartbeat keeps a live room off the sweep's radar.
func (s *RoomService) Heartbeat(ctx context.Context, roomID string) error {
	err := s.roomRepo.Heartbeat(ctx, roomID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRoomNotFound
	}
	return err
}

// Get returns a room with its presence list.
func (s *RoomService) Get(ctx context.Context, roomID string) (*domain.Room, []domain.RoomPresence, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if room == nil {
		return nil, nil, ErrRoomNotFound
	}
	presence, err := s.roomRepo.Presence(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	return room, presence, nil
}

// OpenRooms lists joinable rooms, oldest first.
func (s *RoomService) OpenRooms(ctx context.Context, limit int) ([]domain.Room, error) {
	return s.roomRepo.OpenRooms(ctx, limit)
}

// Sweep reclaims rooms whose heartbeat is strictly past the TTL. Safe to
// run concurrently with live matches and with itself.
func (s *RoomService) Sweep(ctx context.Context) (int, error) {
	ids, err := s.roomRepo.SweepExpired(ctx, s.ttl)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		s.hub.Publish(id, ws.EventRoomExpired, nil)
	}
	if len(ids) > 0 {
		logger.Info("swept expired rooms", "count", len(ids))
	}
	return len(ids), nil
}
