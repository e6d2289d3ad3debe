package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/territory-studio/engine/internal/models"
	"github.com/territory-studio/engine/pkg/logger"
)

// Cache is the subset of the go-redis client used by CachedStore.
type Cache interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// CachedStore is a read-through Redis cache in front of another Store.
// Concurrent loads share one backend call. Cache failures are logged and
// never fail an operation.
type CachedStore struct {
	inner Store
	cache Cache
	key   string
	ttl   time.Duration
	group singleflight.Group
}

var _ Store = (*CachedStore)(nil)

func NewCachedStore(inner Store, cache Cache, key string, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedStore{inner: inner, cache: cache, key: "territory:document:" + key, ttl: ttl}
}

func (s *CachedStore) LoadAll(ctx context.Context) (*models.Document, error) {
	v, err, shared := s.group.Do(s.key, func() (interface{}, error) {
		if doc, ok := s.fromCache(ctx); ok {
			return doc, nil
		}
		doc, err := s.inner.LoadAll(ctx)
		if err != nil {
			return nil, err
		}
		s.store(ctx, doc)
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	doc := v.(*models.Document)
	if shared {
		return doc.Clone(), nil
	}
	return doc, nil
}

func (s *CachedStore) SaveAll(ctx context.Context, doc *models.Document) error {
	if err := s.inner.SaveAll(ctx, doc); err != nil {
		if derr := s.cache.Del(ctx, s.key).Err(); derr != nil {
			logger.L().Warn("cache invalidate failed", zap.String("key", s.key), zap.Error(derr))
		}
		return err
	}
	s.store(ctx, doc)
	return nil
}

// Unwrap returns the wrapped store.
func (s *CachedStore) Unwrap() Store { return s.inner }

func (s *CachedStore) fromCache(ctx context.Context) (*models.Document, bool) {
	raw, err := s.cache.Get(ctx, s.key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			logger.L().Warn("cache read failed", zap.String("key", s.key), zap.Error(err))
		}
		return nil, false
	}
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		logger.L().Warn("cache entry undecodable", zap.String("key", s.key), zap.Error(err))
		return nil, false
	}
	return &doc, true
}

func (s *CachedStore) store(ctx context.Context, doc *models.Document) {
	raw, err := json.Marshal(doc)
	if err != nil {
		logger.L().Warn("cache encode failed", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, s.key, raw, s.ttl).Err(); err != nil {
		logger.L().Warn("cache write failed", zap.String("key", s.key), zap.Error(err))
	}
}
