package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"raid_backend/internal/chain"
	"raid_backend/internal/domain"
	"raid_backend/internal/service"

	"github.com/gin-gonic/gin"
)

// AuditScan runs the full anti-cheat scan across all active addresses.
func (h *Handler) AuditScan(c *gin.Context) {
	flagged, err := h.Audits.ScanAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed", "flagged": flagged})
		return
	}

	c.JSON(http.StatusOK, gin.H{"flagged": flagged})
}

// AuditReports lists recent anti-cheat findings.
func (h *Handler) AuditReports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	reports, err := h.Audits.RecentReports(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reports"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// AuditSummary aggregates one address's ledger activity and findings.
func (h *Handler) AuditSummary(c *gin.Context) {
	address := chain.NormalizeAddress(c.Param("address"))
	if !chain.ValidAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}

	summary, err := h.Audits.Summary(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

type AdminAdjustRequest struct {
	Address    string `json:"address" binding:"required"`
	Delta      int64  `json:"delta" binding:"required"`
	ExternalID string `json:"external_id" binding:"required"`
}

// AdminAdjust applies a manual ledger correction. The mandatory external id
// keeps retried corrections idempotent, and the entry itself records the
// intervention.
func (h *Handler) AdminAdjust(c *gin.Context) {
	var req AdminAdjustRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if !chain.ValidAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}

	entry, err := h.Ledger.Adjust(c.Request.Context(), chain.NormalizeAddress(req.Address),
		req.Delta, domain.ReasonAdminAdjust, domain.SourceAdmin, req.ExternalID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProfileNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		case errors.Is(err, service.ErrInsufficientBalance):
			c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance"})
		case errors.Is(err, service.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "adjustment failed"})
		}
		return
	}

	c.JSON(http.StatusOK, entry)
}

// ClaimCompensate force-expires a stuck claim and re-credits its debit.
// The credit is idempotent on the claim id, so repeating the call after a
// partial failure is safe.
func (h *Handler) ClaimCompensate(c *gin.Context) {
	claim, err := h.Claims.Compensate(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrClaimNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "claim not found"})
		case errors.Is(err, service.ErrClaimConfirmed):
			c.JSON(http.StatusConflict, gin.H{"error": "claim already confirmed on chain"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "compensation failed"})
		}
		return
	}

	c.JSON(http.StatusOK, claim)
}

type ProfileBanRequest struct {
	Banned *bool `json:"banned" binding:"required"`
}

// ProfileBan bans or unbans an address. Banned profiles keep their coins
// and history but cannot raid, join rooms or claim.
func (h *Handler) ProfileBan(c *gin.Context) {
	address := chain.NormalizeAddress(c.Param("address"))
	if !chain.ValidAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}

	var req ProfileBanRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	if err := h.Profiles.SetBanned(c.Request.Context(), address, *req.Banned); err != nil {
		if errors.Is(err, service.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ban update failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"address": address, "banned": *req.Banned})
}
