package service

import (
	"context"
	"errors"

	"raid_backend/internal/chain"
	"raid_backend/internal/domain"
	"raid_backend/internal/logger"
	"raid_backend/internal/nft"
	"raid_backend/internal/power"
	"raid_backend/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrCardNotOwned   = errors.New("card not owned by address")
	ErrBanned         = errors.New("address is banned")
)

// CardRef identifies one card in a deck update.
type CardRef struct {
	Collection string `json:"collection" binding:"required"`
	TokenID    string `json:"token_id" binding:"required"`
}

// ProfileService manages player profiles and defense decks. Deck updates
// verify ownership against the NFT provider before anything is stored.
type ProfileService struct {
	profileRepo *repository.ProfileRepository
	cards       *nft.Provider
}

func NewProfileService(db *pgxpool.Pool, cards *nft.Provider) *ProfileService {
	return &ProfileService{
		profileRepo: repository.NewProfileRepository(db),
		cards:       cards,
	}
}

// GetOrCreate returns the profile for an address, creating it on first
// connection. The address is normalized to lowercase before use.
func (s *ProfileService) GetOrCreate(ctx context.Context, address, username string) (*domain.Profile, error) {
	if !chain.ValidAddress(address) {
		return nil, ErrInvalidAddress
	}
	address = chain.NormalizeAddress(address)

	profile, err := s.profileRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}

	profile = &domain.Profile{Address: address, Username: username}
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		return nil, err
	}

	logger.Info("profile created", "address", address)
	return profile, nil
}

// Get returns a profile, or ErrProfileNotFound.
func (s *ProfileService) Get(ctx context.Context, address string) (*domain.Profile, error) {
	profile, err := s.profileRepo.GetByAddress(ctx, chain.NormalizeAddress(address))
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}

// UpdateDefenseDeck replaces the caller's defense deck. Each card must be
// owned by the address; metadata comes from the provider so the client
// cannot inflate base power.
func (s *ProfileService) UpdateDefenseDeck(ctx context.Context, address string, refs []CardRef) (*domain.Profile, error) {
	if len(refs) == 0 || len(refs) > domain.DeckSize {
		return nil, ErrIncompleteDeck
	}

	deck, err := s.Resolve(ctx, address, refs)
	if err != nil {
		return nil, err
	}

	totalPower := power.DeckPower(deck, false)
	if err := s.profileRepo.UpdateDefenseDeck(ctx, address, deck, totalPower); err != nil {
		return nil, err
	}

	return s.Get(ctx, address)
}

// Resolve builds a deck from card references with ownership checks, used
// for attack decks which are supplied per raid rather than stored.
func (s *ProfileService) Resolve(ctx context.Context, address string, refs []CardRef) ([]domain.Card, error) {
	deck := make([]domain.Card, 0, len(refs))
	for _, ref := range refs {
		owned, err := s.cards.OwnsCard(ctx, address, ref.Collection, ref.TokenID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, ErrCardNotOwned
		}
		card, err := s.cards.GetCard(ctx, ref.Collection, ref.TokenID)
		if err != nil {
			return nil, err
		}
		deck = append(deck, *card)
	}
	return deck, nil
}

// Leaderboard returns the raidable profiles ranked by total power.
func (s *ProfileService) Leaderboard(ctx context.Context, limit int) ([]domain.Profile, error) {
	return s.profileRepo.Leaderboard(ctx, limit)
}

// SetBanned bans or unbans an address. Banned addresses keep their balance
// and history but are locked out of raids, rooms and claims.
func (s *ProfileService) SetBanned(ctx context.Context, address string, banned bool) error {
	err := s.profileRepo.SetBanned(ctx, chain.NormalizeAddress(address), banned)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProfileNotFound
	}
	if err == nil {
		logger.Info("ban flag updated", "address", address, "banned", banned)
	}
	return err
}
