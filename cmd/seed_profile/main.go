package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"raid_backend/internal/domain"
	"raid_backend/internal/power"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Seeds a local profile with a full defense deck and a starting balance so
// raids can be exercised without the NFT provider.
func main() {
	address := flag.String("address", "", "wallet address (0x...)")
	coins := flag.Int64("coins", 1000, "starting balance")
	flag.Parse()

	if *address == "" {
		log.Fatal("-address is required")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	deck := make([]domain.Card, 0, domain.DeckSize)
	for i := 0; i < domain.DeckSize; i++ {
		deck = append(deck, domain.Card{
			TokenID:    fmt.Sprintf("seed-%d", i+1),
			Name:       fmt.Sprintf("Seed Card %d", i+1),
			Collection: domain.CollectionBase,
			BasePower:  100,
		})
	}
	deckJSON, err := json.Marshal(deck)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	_, err = db.Exec(ctx,
		`INSERT INTO profiles (address, username, coins, lifetime_earned, defense_deck, has_full_defense_deck, total_power)
		 VALUES ($1, $2, $3, $3, $4, TRUE, $5)
		 ON CONFLICT (address) DO UPDATE
		 SET coins = EXCLUDED.coins, defense_deck = EXCLUDED.defense_deck,
		     has_full_defense_deck = TRUE, total_power = EXCLUDED.total_power`,
		*address, "seed", *coins, deckJSON, power.DeckPower(deck, false))
	if err != nil {
		log.Fatal(err)
	}

	if *coins > 0 {
		_, err = db.Exec(ctx,
			`INSERT INTO ledger_entries (address, delta, reason, source_function, external_id, resulting_balance)
			 VALUES ($1, $2, $3, $4, $5, $2)
			 ON CONFLICT (source_function, external_id) WHERE external_id IS NOT NULL DO NOTHING`,
			*address, *coins, domain.ReasonAdminAdjust, domain.SourceAdmin, "seed:"+*address)
		if err != nil {
			log.Fatal(err)
		}
	}

	fmt.Printf("seeded profile %s with %d coins\n", *address, *coins)
}
