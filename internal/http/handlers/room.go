package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"raid_backend/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateRoom opens a waiting PvP room hosted by the caller.
func (h *Handler) CreateRoom(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	room, err := h.Rooms.CreateRoom(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	c.JSON(http.StatusCreated, room)
}

// JoinRoom seats the caller as guest in a waiting room.
func (h *Handler) JoinRoom(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	room, err := h.Rooms.JoinRoom(c.Request.Context(), c.Param("id"), address)
	if err != nil {
		h.roomError(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

// StartBattle snapshots decks and moves a matched room into battle.
func (h *Handler) StartBattle(c *gin.Context) {
	if !h.requireParticipant(c) {
		return
	}

	room, err := h.Rooms.StartBattle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.roomError(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

// FinishRoom settles a battle and pays out through the ledger.
func (h *Handler) FinishRoom(c *gin.Context) {
	if !h.requireParticipant(c) {
		return
	}

	result, err := h.Rooms.FinishRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.roomError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RoomHeartbeat keeps a room alive against the TTL sweep.
func (h *Handler) RoomHeartbeat(c *gin.Context) {
	if _, ok := getAddress(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.Rooms.Heartbeat(c.Request.Context(), c.Param("id")); err != nil {
		h.roomError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Room returns a room with its presence list.
func (h *Handler) Room(c *gin.Context) {
	room, presence, err := h.Rooms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.roomError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room":     room,
		"presence": presence,
	})
}

// OpenRooms lists joinable rooms.
func (h *Handler) OpenRooms(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	rooms, err := h.Rooms.OpenRooms(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// requireParticipant checks the caller is host or guest of the room.
func (h *Handler) requireParticipant(c *gin.Context) bool {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}

	room, _, err := h.Rooms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.roomError(c, err)
		return false
	}
	if room.HostAddress != address && room.GuestAddress != address {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room participant"})
		return false
	}
	return true
}

func (h *Handler) roomError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, service.ErrRoomState):
		c.JSON(http.StatusConflict, gin.H{"error": "room is not in the required state"})
	case errors.Is(err, service.ErrSelfJoin):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot join your own room"})
	case errors.Is(err, service.ErrNoDefenseDeck):
		c.JSON(http.StatusConflict, gin.H{"error": "both players need a full defense deck"})
	case errors.Is(err, service.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
	case errors.Is(err, service.ErrBanned):
		c.JSON(http.StatusForbidden, gin.H{"error": "address is banned"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "room operation failed"})
	}
}
