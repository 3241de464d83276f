// Package nft fetches card metadata (base power, rarity, foil, wear) from
// the collection indexer, with a redis cache in front so raid resolution
// does not block on the upstream API for every deck save.
package nft

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"raid_backend/internal/chain"
	"raid_backend/internal/domain"
	"raid_backend/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

const cacheTTL = 15 * time.Minute

// Provider serves card metadata and ownership lookups.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *redis.Client // nil disables caching
}

// NewProvider creates a metadata provider. cache may be nil.
func NewProvider(baseURL, apiKey string, cache *redis.Client) *Provider {
	return &Provider{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache: cache,
	}
}

type cardMetadata struct {
	TokenID    string `json:"token_id"`
	Name       string `json:"name"`
	Collection string `json:"collection"`
	Power      int64  `json:"power"`
	Rarity     string `json:"rarity"`
	Foil       string `json:"foil"`
	Wear       string `json:"wear"`
	Owner      string `json:"owner"`
}

// GetCard returns one card's metadata as a domain card, cache-first.
func (p *Provider) GetCard(ctx context.Context, collection, tokenID string) (*domain.Card, error) {
	meta, err := p.getMetadata(ctx, collection, tokenID)
	if err != nil {
		return nil, err
	}
	return &domain.Card{
		TokenID:    meta.TokenID,
		Name:       meta.Name,
		Collection: domain.Collection(meta.Collection),
		BasePower:  meta.Power,
		Rarity:     meta.Rarity,
		Foil:       meta.Foil,
		Wear:       meta.Wear,
	}, nil
}

// OwnsCard reports whether address owns the given token. Addresses are
// compared in normalized form, so a checksummed owner matches a lowercase
// caller.
func (p *Provider) OwnsCard(ctx context.Context, address, collection, tokenID string) (bool, error) {
	meta, err := p.getMetadata(ctx, collection, tokenID)
	if err != nil {
		return false, err
	}
	return chain.NormalizeAddress(meta.Owner) == chain.NormalizeAddress(address), nil
}

// getMetadata serves the raw indexer record cache-first, so ownership
// checks ride the same cached entry as metadata reads.
func (p *Provider) getMetadata(ctx context.Context, collection, tokenID string) (*cardMetadata, error) {
	key := fmt.Sprintf("nft:%s:%s", collection, tokenID)

	if p.cache != nil {
		if raw, err := p.cache.Get(ctx, key).Bytes(); err == nil {
			var meta cardMetadata
			if err := json.Unmarshal(raw, &meta); err == nil {
				return &meta, nil
			}
		}
	}

	meta, err := p.fetch(ctx, collection, tokenID)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if raw, err := json.Marshal(meta); err == nil {
			if err := p.cache.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
				logger.Warn("nft cache set failed", "key", key, "error", err)
			}
		}
	}
	return meta, nil
}

func (p *Provider) fetch(ctx context.Context, collection, tokenID string) (*cardMetadata, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("metadata provider not configured")
	}

	url := fmt.Sprintf("%s/collections/%s/tokens/%s", p.baseURL, collection, tokenID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("metadata API error: %s - %s", resp.Status, string(body))
	}

	var meta cardMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
