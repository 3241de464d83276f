package handlers

import (
	"time"

	"raid_backend/internal/chain"
	"raid_backend/internal/config"
	"raid_backend/internal/nft"
	"raid_backend/internal/service"
	"raid_backend/internal/signer"
	"raid_backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
)

type Handler struct {
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Signer   *signer.Signer
	Profiles *service.ProfileService
	Ledger   *service.LedgerService
	Raids    *service.RaidService
	Claims   *service.ClaimService
	Rooms    *service.RoomService
	Audits   *service.AuditService
	Hub      *ws.Hub
}

func NewHandler(db *pgxpool.Pool, cfg *config.Config, cache *redis.Client, hub *ws.Hub) *Handler {
	sg, err := signer.New(cfg.ClaimSignerKey)
	if err != nil {
		// a bad key is a deploy mistake; run with signing disabled so the
		// rest of the API stays up
		sg, _ = signer.New("")
	}

	var chainClient *chain.Client
	if cfg.ChainAPIURL != "" {
		chainClient = chain.NewClient(cfg.ChainAPIURL, cfg.ChainAPIKey)
	}
	cards := nft.NewProvider(cfg.MetadataBaseURL, cfg.MetadataAPIKey, cache)

	ledger := service.NewLedgerService(db)
	return &Handler{
		DB:       db,
		Cache:    cache,
		Signer:   sg,
		Profiles: service.NewProfileService(db, cards),
		Ledger:   ledger,
		Raids:    service.NewRaidService(db, ledger, cfg.MaxAttacksPerDay),
		Claims: service.NewClaimService(db, ledger, sg, chainClient,
			time.Duration(cfg.ClaimExpiryMinutes)*time.Minute, cfg.ClaimDailyLimit),
		Rooms: service.NewRoomService(db, ledger, hub,
			time.Duration(cfg.RoomTTLMinutes)*time.Minute),
		Audits: service.NewAuditService(db, ledger, cfg.MaxAttacksPerDay),
		Hub:    hub,
	}
}

// getAddress pulls the authenticated wallet address set by the JWT
// middleware.
func getAddress(c *gin.Context) (string, bool) {
	val, ok := c.Get("address")
	if !ok {
		return "", false
	}
	address, ok := val.(string)
	return address, ok && address != ""
}
