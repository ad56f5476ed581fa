package cache

import (
	"log/slog"

	"github.com/ZacMelendez/passporter/config"
	"github.com/ZacMelendez/passporter/internal/model"
	gocache "github.com/patrickmn/go-cache"
)

// LocalCache is the in-process ResultCache for single-instance deployments.
type LocalCache struct {
	store *gocache.Cache
	log   *slog.Logger
}

func NewLocalCache(cacheConfig *config.CacheConfig, log *slog.Logger) *LocalCache {
	ttl := cacheConfig.TtlForResult
	return &LocalCache{
		store: gocache.New(ttl, ttl),
		log:   log,
	}
}

func (lc *LocalCache) GetResult(origin string) (*model.DiscoveryResult, bool) {
	v, ok := lc.store.Get(hashOrigin(origin))
	if !ok {
		return nil, false
	}
	result, ok := v.(*model.DiscoveryResult)
	return result, ok
}

func (lc *LocalCache) SaveResult(origin string, result *model.DiscoveryResult) {
	lc.store.Set(hashOrigin(origin), result, gocache.DefaultExpiration)
	lc.log.Debug("discovery result saved to cache.")
}

func (lc *LocalCache) Close() {}
