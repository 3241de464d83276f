package http

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"raid_backend/internal/config"
	"raid_backend/internal/http/handlers"
	"raid_backend/internal/http/middleware"
	"raid_backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegisterRoutes wires the full API surface and returns the handler so the
// caller can schedule background jobs against its services.
func RegisterRoutes(r *gin.Engine, db *pgxpool.Pool, cfg *config.Config, hub *ws.Hub, version string) *handlers.Handler {
	h := handlers.NewHandler(db, cfg, middleware.RateLimiterClient(), hub)
	healthHandler := handlers.NewHealthHandler(db, h.Cache, h.Signer, version)

	// read limits from env, with safe defaults
	apiRateLimit := 60
	if v := os.Getenv("API_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			apiRateLimit = n
		}
	}
	apiRateWindow := time.Minute
	if v := os.Getenv("API_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			apiRateWindow = time.Duration(n) * time.Second
		}
	}

	authRateLimit := 5
	if v := os.Getenv("AUTH_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			authRateLimit = n
		}
	}
	authRateWindow := time.Minute

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	raidRL := middleware.RaidRateLimit(cfg.RaidRateLimit,
		time.Duration(cfg.RaidRateWindow)*time.Second)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(apiRateLimit, apiRateWindow))
	{
		// Auth
		v1.POST("/auth", middleware.RedisRateLimit(authRateLimit, authRateWindow), h.Auth)

		// Profile
		v1.GET("/me", middleware.JWT(), h.Me)
		v1.PUT("/me/defense-deck", middleware.JWT(), h.UpdateDefenseDeck)
		v1.GET("/me/ledger", middleware.JWT(), h.MyLedger)
		v1.GET("/me/reconcile", middleware.JWT(), h.Reconcile)
		v1.GET("/me/raids", middleware.JWT(), h.RaidHistory)
		v1.GET("/me/quota", middleware.JWT(), h.RaidQuota)
		v1.GET("/profile/:address", h.Profile)
		v1.GET("/leaderboard", h.Leaderboard)

		// Raids
		v1.POST("/raid", middleware.JWT(), raidRL, h.Raid)

		// Claims
		v1.POST("/claim/sign", middleware.JWT(), h.ClaimSign)
		v1.POST("/claim/confirm", middleware.JWT(), h.ClaimConfirm)
		v1.GET("/claim/:id", middleware.JWT(), h.Claim)
		v1.POST("/battle/sign", middleware.JWT(), h.BattleSign)

		// Rooms
		rooms := v1.Group("/rooms")
		rooms.Use(middleware.JWT())
		{
			rooms.POST("", h.CreateRoom)
			rooms.GET("", h.OpenRooms)
			rooms.GET("/:id", h.Room)
			rooms.POST("/:id/join", h.JoinRoom)
			rooms.POST("/:id/start", h.StartBattle)
			rooms.POST("/:id/finish", h.FinishRoom)
			rooms.POST("/:id/heartbeat", h.RoomHeartbeat)
		}

		// Admin
		admin := v1.Group("/admin")
		admin.Use(adminAuth())
		{
			admin.POST("/audit/scan", h.AuditScan)
			admin.GET("/audit/reports", h.AuditReports)
			admin.GET("/audit/:address", h.AuditSummary)
			admin.POST("/adjust", h.AdminAdjust)
			admin.POST("/profile/:address/ban", h.ProfileBan)
			admin.POST("/claim/:id/compensate", h.ClaimCompensate)
		}
	}

	// WebSocket room event stream
	r.GET("/ws/rooms/:id", h.RoomEvents)

	return h
}

// adminAuth gates admin endpoints on a shared token header.
func adminAuth() gin.HandlerFunc {
	token := os.Getenv("ADMIN_TOKEN")
	return func(c *gin.Context) {
		if token == "" || c.GetHeader("X-Admin-Token") != token {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
