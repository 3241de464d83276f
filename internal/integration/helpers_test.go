package integration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"raid_backend/internal/domain"
	"raid_backend/internal/power"

	"github.com/jackc/pgx/v5/pgxpool"
)

func connectDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	applyMigrations(t, db)
	return db
}

func applyMigrations(t *testing.T, db *pgxpool.Pool) {
	t.Helper()
	migDir := filepath.Join("..", "..", "internal", "migrations")
	entries, err := os.ReadDir(migDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	var names []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(migDir, name))
		if err != nil {
			t.Fatalf("read file: %v", err)
		}
		if _, err := db.Exec(context.Background(), string(b)); err != nil {
			t.Fatalf("apply migration %s: %v", name, err)
		}
	}
}

// newAddr generates a unique address so tests never collide on profiles.
func newAddr(t *testing.T) string {
	t.Helper()
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return "0x" + hex.EncodeToString(b)
}

// baseDeck builds a full deck of base-collection cards with the given power
// per card.
func baseDeck(perCard int64) []domain.Card {
	deck := make([]domain.Card, 0, domain.DeckSize)
	for i := 0; i < domain.DeckSize; i++ {
		deck = append(deck, domain.Card{
			TokenID:    fmt.Sprintf("t%d", i+1),
			Collection: domain.CollectionBase,
			BasePower:  perCard,
		})
	}
	return deck
}

// seedProfile inserts a profile with a full defense deck and balance.
func seedProfile(t *testing.T, db *pgxpool.Pool, address string, coins int64, deck []domain.Card) {
	t.Helper()
	deckJSON, err := json.Marshal(deck)
	if err != nil {
		t.Fatalf("marshal deck: %v", err)
	}

	_, err = db.Exec(context.Background(),
		`INSERT INTO profiles (address, username, coins, lifetime_earned, defense_deck, has_full_defense_deck, total_power)
		 VALUES ($1, 'test', $2, $2, $3, $4, $5)`,
		address, coins, deckJSON, len(deck) == domain.DeckSize, power.DeckPower(deck, false))
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	if coins > 0 {
		_, err = db.Exec(context.Background(),
			`INSERT INTO ledger_entries (address, delta, reason, source_function, external_id, resulting_balance)
			 VALUES ($1, $2, 'admin_adjust', 'adminAdjust', $3, $2)`,
			address, coins, "seed:"+address)
		if err != nil {
			t.Fatalf("seed ledger: %v", err)
		}
	}
}

// replayBalance sums ledger deltas for reconciliation checks.
func replayBalance(t *testing.T, db *pgxpool.Pool, address string) int64 {
	t.Helper()
	var sum int64
	err := db.QueryRow(context.Background(),
		`SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE address = $1`, address).Scan(&sum)
	if err != nil {
		t.Fatalf("replay balance: %v", err)
	}
	return sum
}

func currentBalance(t *testing.T, db *pgxpool.Pool, address string) int64 {
	t.Helper()
	var coins int64
	err := db.QueryRow(context.Background(),
		`SELECT coins FROM profiles WHERE address = $1`, address).Scan(&coins)
	if err != nil {
		t.Fatalf("current balance: %v", err)
	}
	return coins
}

func entryCount(t *testing.T, db *pgxpool.Pool, address string) int {
	t.Helper()
	var n int
	err := db.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM ledger_entries WHERE address = $1`, address).Scan(&n)
	if err != nil {
		t.Fatalf("entry count: %v", err)
	}
	return n
}
