package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/ZacMelendez/passporter/config"
	"github.com/ZacMelendez/passporter/internal/model"
	"github.com/bradfitz/gomemcache/memcache"
	jsoniter "github.com/json-iterator/go"
)

// ResultCache keeps discovery results per origin so repeated entries for the
// same site (different usernames) do not refetch it.
type ResultCache interface {
	GetResult(origin string) (*model.DiscoveryResult, bool)
	SaveResult(origin string, result *model.DiscoveryResult)
	Close()
}

// MemcachedClient is the shared cache for multi-instance deployments.
type MemcachedClient struct {
	client *memcache.Client
	cfg    *config.CacheConfig
	log    *slog.Logger
}

func NewMemcachedClient(cacheConfig *config.CacheConfig, log *slog.Logger) *MemcachedClient {
	log.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	servers := strings.Split(cacheConfig.Servers, ",")
	err := ss.SetServers(servers...)
	if err != nil {
		log.Error("failed to set memcached servers.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c := &MemcachedClient{
		client: memcache.NewFromSelector(ss),
		cfg:    cacheConfig,
		log:    log,
	}
	c.log.Info("pinging the memcached.")
	err = c.client.Ping()
	if err != nil {
		log.Error("connection to the memcached is failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c.log.Info("connected to memcached!")

	return c
}

func (mc *MemcachedClient) GetResult(origin string) (*model.DiscoveryResult, bool) {
	key := hashOrigin(origin)
	item, err := mc.client.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			mc.log.Warn("failed to read result from cache.", slog.String("key", key),
				slog.String("err", err.Error()))
		}
		return nil, false
	}
	var result model.DiscoveryResult
	if err = jsoniter.Unmarshal(item.Value, &result); err != nil {
		mc.log.Warn("failed to unmarshal cached result.", slog.String("key", key),
			slog.String("err", err.Error()))
		return nil, false
	}

	return &result, true
}

func (mc *MemcachedClient) SaveResult(origin string, result *model.DiscoveryResult) {
	key := hashOrigin(origin)
	body, err := jsoniter.Marshal(result)
	if err != nil {
		mc.log.Error("failed to marshal result for cache.", slog.String("key", key),
			slog.String("err", err.Error()))
		return
	}
	item := &memcache.Item{
		Key:        key,
		Value:      body,
		Expiration: int32((mc.cfg.TtlForResult).Seconds()),
	}
	if err = mc.client.Set(item); err != nil {
		mc.log.Error("failed to save result to cache.", slog.String("key", key),
			slog.String("err", err.Error()))
		return
	}
	mc.log.Debug("discovery result saved to cache.")
}

func (mc *MemcachedClient) Close() {
	mc.log.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		mc.log.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

func hashOrigin(origin string) string {
	hash := sha256.New()
	hash.Write([]byte(origin))
	return hex.EncodeToString(hash.Sum(nil))
}
