package handlers

import (
	"errors"
	"net/http"

	"raid_backend/internal/http/middleware"
	"raid_backend/internal/service"
	"raid_backend/internal/signer"

	"github.com/gin-gonic/gin"
)

type ClaimSignRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Nonce  string `json:"nonce" binding:"required"`
}

// ClaimSign debits the claimed amount and returns a signed redemption
// message for the on-chain contract.
func (h *Handler) ClaimSign(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req ClaimSignRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	claim, err := h.Claims.PrepareClaim(c.Request.Context(), address, req.Amount, req.Nonce)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrClaimTooSmall):
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount below minimum claim"})
		case errors.Is(err, service.ErrInsufficientBalance):
			c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance"})
		case errors.Is(err, service.ErrDuplicateNonce):
			c.JSON(http.StatusConflict, gin.H{"error": "nonce already used"})
		case errors.Is(err, service.ErrDailyClaimCap):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily claim limit reached"})
		case errors.Is(err, signer.ErrNoKey):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signer unavailable"})
		case errors.Is(err, service.ErrBanned):
			c.JSON(http.StatusForbidden, gin.H{"error": "address is banned"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "claim failed"})
		}
		return
	}

	middleware.ClaimsSigned.Inc()
	c.JSON(http.StatusOK, claim)
}

type ClaimConfirmRequest struct {
	Nonce  string `json:"nonce" binding:"required"`
	TxHash string `json:"tx_hash" binding:"required"`
}

// ClaimConfirm records the observed on-chain transaction for a signed
// claim. The claim must belong to the caller.
func (h *Handler) ClaimConfirm(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req ClaimConfirmRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	claim, err := h.Claims.Confirm(c.Request.Context(), address, req.Nonce, req.TxHash)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTxHash):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction hash"})
		case errors.Is(err, service.ErrChainNotConfig):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chain indexer unavailable"})
		case errors.Is(err, service.ErrClaimNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "claim not found"})
		case errors.Is(err, service.ErrClaimNotSigned):
			c.JSON(http.StatusConflict, gin.H{"error": "claim is not in signed state"})
		case errors.Is(err, service.ErrTxNotConfirmed):
			c.JSON(http.StatusBadRequest, gin.H{"error": "transaction not confirmed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "confirmation failed"})
		}
		return
	}

	c.JSON(http.StatusOK, claim)
}

// Claim returns one claim by id.
func (h *Handler) Claim(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	claim, err := h.Claims.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrClaimNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "claim not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load claim"})
		return
	}
	if claim.Address != address {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your claim"})
		return
	}

	c.JSON(http.StatusOK, claim)
}

type BattleSignRequest struct {
	BattleID string `json:"battle_id" binding:"required"`
	Winner   string `json:"winner" binding:"required"`
}

// BattleSign signs the settled result of a finished battle. The claimed
// winner must match what settlement recorded.
func (h *Handler) BattleSign(c *gin.Context) {
	if _, ok := getAddress(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req BattleSignRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	sig, err := h.Claims.SignBattleResult(c.Request.Context(), req.BattleID, req.Winner)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBattleNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "battle not found"})
		case errors.Is(err, service.ErrBattleOpen):
			c.JSON(http.StatusConflict, gin.H{"error": "battle is not settled yet"})
		case errors.Is(err, service.ErrWinnerMismatch):
			c.JSON(http.StatusConflict, gin.H{"error": "winner does not match the settled result"})
		case errors.Is(err, signer.ErrNoKey):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signer unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "signing failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"signature": sig})
}
