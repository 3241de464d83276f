package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"raid_backend/internal/chain"
	"raid_backend/internal/http/middleware"
	"raid_backend/internal/service"

	"github.com/gin-gonic/gin"
)

type RaidRequest struct {
	Defender    string            `json:"defender" binding:"required"`
	AttackDeck  []service.CardRef `json:"attack_deck" binding:"required"`
	Leaderboard bool              `json:"leaderboard"`
}

// Raid resolves one raid against a defender's standing defense deck.
func (h *Handler) Raid(c *gin.Context) {
	attacker, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req RaidRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if !chain.ValidAddress(req.Defender) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid defender address"})
		return
	}
	defender := chain.NormalizeAddress(req.Defender)

	ctx := c.Request.Context()
	deck, err := h.Profiles.Resolve(ctx, attacker, req.AttackDeck)
	if err != nil {
		if errors.Is(err, service.ErrCardNotOwned) {
			c.JSON(http.StatusForbidden, gin.H{"error": "card not owned"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve attack deck"})
		return
	}

	result, err := h.Raids.ResolveRaid(ctx, attacker, defender, deck, req.Leaderboard)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfRaid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot raid yourself"})
		case errors.Is(err, service.ErrIncompleteDeck):
			c.JSON(http.StatusBadRequest, gin.H{"error": "attack deck must have exactly 5 cards"})
		case errors.Is(err, service.ErrQuotaExceeded):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily attack limit reached"})
		case errors.Is(err, service.ErrNoDefenseDeck):
			c.JSON(http.StatusConflict, gin.H{"error": "defender has no full defense deck"})
		case errors.Is(err, service.ErrConcurrentDeckChange):
			c.JSON(http.StatusConflict, gin.H{"error": "defender deck changed, retry"})
		case errors.Is(err, service.ErrProfileNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		case errors.Is(err, service.ErrBanned):
			c.JSON(http.StatusForbidden, gin.H{"error": "address is banned"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "raid failed"})
		}
		return
	}

	middleware.RaidsResolved.WithLabelValues(string(result.Outcome)).Inc()
	c.JSON(http.StatusOK, result)
}

// RaidHistory returns the caller's recent raids, attacking and defending.
func (h *Handler) RaidHistory(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	ctx := c.Request.Context()
	attacks, err := h.Raids.History(ctx, address, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	defenses, err := h.Raids.DefenseHistory(ctx, address, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attacks":  attacks,
		"defenses": defenses,
	})
}

// RaidQuota reports the caller's remaining attacks for today.
func (h *Handler) RaidQuota(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	remaining, err := h.Raids.AttacksRemaining(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, service.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load quota"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"attacks_remaining": remaining})
}
