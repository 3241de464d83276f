package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"raid_backend/internal/service"

	"github.com/gin-gonic/gin"
)

// MyLedger returns the caller's recent ledger entries.
func (h *Handler) MyLedger(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.Ledger.History(c.Request.Context(), address, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Reconcile replays the caller's ledger and reports whether it matches the
// projected balance.
func (h *Handler) Reconcile(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	balance, replayed, match, err := h.Ledger.Reconcile(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, service.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":  balance,
		"replayed": replayed,
		"match":    match,
	})
}
