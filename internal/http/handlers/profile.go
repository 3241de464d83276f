package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"raid_backend/internal/service"

	"github.com/gin-gonic/gin"
)

// Me returns the authenticated profile.
func (h *Handler) Me(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	profile, err := h.Profiles.Get(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, service.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// Profile returns a public profile by address.
func (h *Handler) Profile(c *gin.Context) {
	profile, err := h.Profiles.Get(c.Request.Context(), c.Param("address"))
	if err != nil {
		if errors.Is(err, service.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}

	c.JSON(http.StatusOK, profile)
}

type DefenseDeckRequest struct {
	Cards []service.CardRef `json:"cards" binding:"required"`
}

// UpdateDefenseDeck replaces the caller's defense deck after ownership
// verification.
func (h *Handler) UpdateDefenseDeck(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req DefenseDeckRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	profile, err := h.Profiles.UpdateDefenseDeck(c.Request.Context(), address, req.Cards)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrIncompleteDeck):
			c.JSON(http.StatusBadRequest, gin.H{"error": "deck must have 1 to 5 cards"})
		case errors.Is(err, service.ErrCardNotOwned):
			c.JSON(http.StatusForbidden, gin.H{"error": "card not owned"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update deck"})
		}
		return
	}

	c.JSON(http.StatusOK, profile)
}

// Leaderboard lists raidable profiles by total power.
func (h *Handler) Leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	profiles, err := h.Profiles.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": profiles})
}
