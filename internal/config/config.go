package config

import (
	"os"
	"strconv"

	"raid_backend/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort        string
	DatabaseURL    string
	JWTSecret      string
	ClaimSignerKey string // hex ed25519 private key, never logged in full

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Raid limits
	MaxAttacksPerDay int
	RaidRateLimit    int
	RaidRateWindow   int // seconds

	// Room lifecycle
	RoomTTLMinutes int

	// Claim lifecycle
	ClaimExpiryMinutes int
	ClaimDailyLimit    int64

	// Collection metadata provider
	MetadataBaseURL string
	MetadataAPIKey  string

	// Read-only chain indexer for claim confirmations
	ChainAPIURL string
	ChainAPIKey string

	LogLevel string
	LogJSON  bool
}

// Load reads configuration from the environment, falling back to .env.
func Load() *Config {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	return &Config{
		AppPort:        port,
		DatabaseURL:    dbURL,
		JWTSecret:      jwtSecret,
		ClaimSignerKey: os.Getenv("CLAIM_SIGNER_KEY"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		MaxAttacksPerDay: envInt("MAX_ATTACKS_PER_DAY", 5),
		RaidRateLimit:    envInt("RAID_RATE_LIMIT", 30),
		RaidRateWindow:   envInt("RAID_RATE_WINDOW_SECONDS", 60),

		RoomTTLMinutes:     envInt("ROOM_TTL_MINUTES", 30),
		ClaimExpiryMinutes: envInt("CLAIM_EXPIRY_MINUTES", 15),
		ClaimDailyLimit:    int64(envInt("CLAIM_DAILY_LIMIT", 10000)),

		MetadataBaseURL: os.Getenv("METADATA_BASE_URL"),
		MetadataAPIKey:  os.Getenv("METADATA_API_KEY"),

		ChainAPIURL: os.Getenv("CHAIN_API_URL"),
		ChainAPIKey: os.Getenv("CHAIN_API_KEY"),

		LogLevel: envDefault("LOG_LEVEL", "info"),
		LogJSON:  os.Getenv("LOG_JSON") == "true",
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
