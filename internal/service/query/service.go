// Package query is the read side: listing search, price history and single
// listing lookups, served through the Redis cache with short TTLs.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hdtickets/scout/internal/domain"
	redisx "github.com/hdtickets/scout/internal/redis"
	"github.com/hdtickets/scout/internal/repository"
	postgresrepo "github.com/hdtickets/scout/internal/repository/postgres"
	redisrepo "github.com/hdtickets/scout/internal/repository/redis"
)

type Config struct {
	ListingTTL  time.Duration
	SearchTTL   time.Duration
	HistoryTTL  time.Duration
	DefaultPage int
	MaxPage     int
}

type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.ListingTTL <= 0 {
		cfg.ListingTTL = 30 * time.Second
	}

	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = 15 * time.Second
	}

	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = 60 * time.Second
	}

	if cfg.DefaultPage <= 0 {
		cfg.DefaultPage = 50
	}

	if cfg.MaxPage <= 0 {
		cfg.MaxPage = 200
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// GetListing retrieves one canonical listing by fingerprint.
//
// Returns query.ErrListingNotFound when no listing exists.
func (s *Service) GetListing(ctx context.Context, fingerprint string) (*domain.Listing, error) {
	const op = "service.query.GetListing"

	key := redisx.KeyListing(fingerprint)

	listing, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.ListingTTL,
		func(ctx context.Context) (domain.Listing, error) {
			l, err := s.store.Listings().GetByFingerprint(ctx, fingerprint)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Listing{}, ErrListingNotFound
				}

				return domain.Listing{}, err
			}

			return *l, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &listing, nil
}

// SearchListings returns listings matching the filter, best score first.
// Results are cached per distinct filter for a short TTL; the scrape cycle
// makes anything longer stale on arrival.
func (s *Service) SearchListings(ctx context.Context, f postgresrepo.SearchFilter) ([]domain.Listing, error) {
	const op = "service.query.SearchListings"

	if f.Limit <= 0 {
		f.Limit = s.cfg.DefaultPage
	}

	if f.Limit > s.cfg.MaxPage {
		f.Limit = s.cfg.MaxPage
	}

	if f.Offset < 0 {
		f.Offset = 0
	}

	key := redisx.KeyListingSearch(filterHash(f))

	listings, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.SearchTTL,
		func(ctx context.Context) ([]domain.Listing, error) {
			return s.store.Listings().Search(ctx, f)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return listings, nil
}

// PriceHistory returns a listing's price observations, newest first.
//
// Returns query.ErrListingNotFound when the listing does not exist.
func (s *Service) PriceHistory(ctx context.Context, fingerprint string, limit int) ([]domain.PriceObservation, error) {
	const op = "service.query.PriceHistory"

	if limit <= 0 {
		limit = s.cfg.DefaultPage
	}

	if limit > s.cfg.MaxPage {
		limit = s.cfg.MaxPage
	}

	if _, err := s.GetListing(ctx, fingerprint); err != nil {
		return nil, fmt.Errorf("%s: %w", op, errors.Unwrap(err))
	}

	key := redisx.KeyPriceHistory(fingerprint)

	obs, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.HistoryTTL,
		func(ctx context.Context) ([]domain.PriceObservation, error) {
			return s.store.Listings().RecentObservations(ctx, fingerprint, limit)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(obs) > limit {
		obs = obs[:limit]
	}

	return obs, nil
}

// filterHash keys the search cache by the exact filter.
func filterHash(f postgresrepo.SearchFilter) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%t|%t|%s|%s|%d|%d",
		f.Platform, f.OnlyAvailable, f.OnlyHighDemand,
		f.MinPrice, f.MaxPrice, f.Limit, f.Offset)))

	return hex.EncodeToString(sum[:8])
}
