package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nurpe/contracts-service/internal/config"
	"github.com/nurpe/contracts-service/internal/model"
)

const (
	listKeyPrefix = "contracts:list:"
	// generationKey is bumped on every write. Cached lists are stored under
	// the generation they were read at, so a list read before a write can
	// never be served after it.
	generationKey = "contracts:list:gen"
)

// Store is the record store being cached.
type Store interface {
	List(ctx context.Context) ([]model.Contract, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Contract, error)
	Create(ctx context.Context, contract *model.Contract) error
	Update(ctx context.Context, id uuid.UUID, fields model.ContractFields, attachment *string) (*model.Contract, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Connect returns a redis client for cfg, or nil when caching is disabled or
// the server cannot be reached.
func Connect(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) *redis.Client {
	if cfg.Addr == "" {
		log.Info().Msg("REDIS_ADDR is not set, list caching disabled")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unreachable, list caching disabled")
		_ = rdb.Close()
		return nil
	}

	log.Info().Str("addr", cfg.Addr).Msg("connected to redis")
	return rdb
}

// CachedStore caches the full contract list in redis. Every successful write
// starts a new cache generation. Redis failures are logged and the call falls
// through to the underlying store.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// Wrap returns store unchanged when rdb is nil.
func Wrap(store Store, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) Store {
	if rdb == nil {
		return store
	}
	return &CachedStore{
		Store: store,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "cache").Logger(),
	}
}

func (s *CachedStore) List(ctx context.Context) ([]model.Contract, error) {
	key, ok := s.listKey(ctx)
	if ok {
		if contracts, hit := s.cached(ctx, key); hit {
			return contracts, nil
		}
	}

	contracts, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return contracts, nil
	}

	if payload, err := json.Marshal(contracts); err == nil {
		if err := s.rdb.Set(ctx, key, payload, s.ttl).Err(); err != nil {
			s.log.Warn().Err(err).Msg("redis SET failed")
		}
	}
	return contracts, nil
}

// listKey returns the key of the current generation. It must be read before
// the store is queried.
func (s *CachedStore) listKey(ctx context.Context) (string, bool) {
	gen, err := s.rdb.Get(ctx, generationKey).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		gen = 0
	case err != nil:
		s.log.Warn().Err(err).Msg("redis GET generation failed")
		return "", false
	}
	return fmt.Sprintf("%s%d", listKeyPrefix, gen), true
}

func (s *CachedStore) cached(ctx context.Context, key string) ([]model.Contract, bool) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("redis GET failed")
		}
		return nil, false
	}
	var contracts []model.Contract
	if err := json.Unmarshal(raw, &contracts); err != nil || contracts == nil {
		s.log.Warn().Msg("discarding unreadable cached contract list")
		return nil, false
	}
	return contracts, true
}

func (s *CachedStore) Create(ctx context.Context, contract *model.Contract) error {
	if err := s.Store.Create(ctx, contract); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStore) Update(ctx context.Context, id uuid.UUID, fields model.ContractFields, attachment *string) (*model.Contract, error) {
	contract, err := s.Store.Update(ctx, id, fields, attachment)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return contract, nil
}

func (s *CachedStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context) {
	if err := s.rdb.Incr(context.WithoutCancel(ctx), generationKey).Err(); err != nil {
		s.log.Warn().Err(err).Msg("redis INCR failed, cached list may be stale until it expires")
	}
}
