package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raid_backend/internal/config"
	"raid_backend/internal/db"
	httpServer "raid_backend/internal/http"
	"raid_backend/internal/http/handlers"
	"raid_backend/internal/http/middleware"
	"raid_backend/internal/logger"
	"raid_backend/internal/service"
	"raid_backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT()

	dbPool := db.Connect(cfg.DatabaseURL)
	defer dbPool.Close()

	r := gin.Default()

	// CORS for production (frontend on different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	hub := ws.NewHub()
	h := httpServer.RegisterRoutes(r, dbPool, cfg, hub, version())

	scheduler := startJobs(h)
	defer func() { _ = scheduler.Shutdown() }()

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err.Error())
	}

	logger.Info("server exited")
}

// startJobs schedules the periodic workers: room TTL sweep and claim expiry
// every minute, the anti-cheat scan nightly.
func startJobs(h *handlers.Handler) gocron.Scheduler {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		logger.Fatal("failed to create scheduler", "error", err.Error())
	}

	jobs := []struct {
		name string
		def  gocron.JobDefinition
		task func(context.Context) (int, error)
	}{
		{"room_sweep", gocron.DurationJob(time.Minute), h.Rooms.Sweep},
		{"claim_expiry", gocron.DurationJob(time.Minute), h.Claims.ExpireStale},
		{"audit_scan", gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))), h.Audits.ScanAll},
	}
	for _, j := range jobs {
		name, task := j.name, j.task
		if _, err := scheduler.NewJob(j.def, gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, err := task(ctx); err != nil {
				logger.Error("scheduled job failed", "job", name, "error", err.Error())
			}
		})); err != nil {
			logger.Fatal("failed to schedule job", "job", name, "error", err.Error())
		}
	}

	scheduler.Start()
	return scheduler
}

func version() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "dev"
}
