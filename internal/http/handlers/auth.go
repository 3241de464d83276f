package handlers

import (
	"net/http"

	"raid_backend/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthRequest struct {
	Address  string `json:"address" binding:"required"`
	Username string `json:"username"`
}

// Auth issues a JWT for a wallet address, creating the profile on first
// connection. Wallet-signature verification happens at the gateway; this
// service trusts the forwarded address after format validation.
func (h *Handler) Auth(c *gin.Context) {
	var req AuthRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	profile, err := h.Profiles.GetOrCreate(c.Request.Context(), req.Address, req.Username)
	if err != nil {
		if err == service.ErrInvalidAddress {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}

	token, err := service.GenerateJWT(profile.Address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"profile": profile,
	})
}
