package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shipscreen/smh-service/internal/config"
	"github.com/shipscreen/smh-service/internal/metrics"
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
)

const (
	// CacheKeyPrefix префикс ключа снимка: smh:{imo}
	CacheKeyPrefix = "smh:"
	// DefaultCacheTTL время жизни снимка в горячем слое
	DefaultCacheTTL = 6 * time.Hour
)

// CacheKey ключ снимка для IMO
func CacheKey(imo int) string {
	return CacheKeyPrefix + strconv.Itoa(imo)
}

// RedisStore горячий слой поверх постоянного хранилища
//
// Чтение: Redis, при промахе нижний Store с прогревом ключа.
// Запись: сначала нижний Store, затем Redis. Ошибки Redis не фатальны.
type RedisStore struct {
	client *redis.Client
	inner  Store
	ttl    time.Duration
	logger *utils.Logger
}

// NewRedisClient создает клиент по конфигурации
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.Password = cfg.Password
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.ConnMaxIdleTime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	return redis.NewClient(opt), nil
}

// NewRedisStore оборачивает inner горячим слоем
func NewRedisStore(client *redis.Client, inner Store, ttl time.Duration, logger *utils.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if inner == nil {
		return nil, fmt.Errorf("inner store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisStore{client: client, inner: inner, ttl: ttl, logger: logger}, nil
}

// Ping проверяет Redis и нижний слой
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		metrics.RedisConnectionStatus.Set(0)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	metrics.RedisConnectionStatus.Set(1)
	return r.inner.Ping(ctx)
}

// Close закрывает Redis и нижний слой
func (r *RedisStore) Close() error {
	redisErr := r.client.Close()
	innerErr := r.inner.Close()
	return errors.Join(redisErr, innerErr)
}

// GetLatest читает снимок из Redis, при промахе из нижнего слоя
func (r *RedisStore) GetLatest(ctx context.Context, imo int) (*models.CacheEntry, error) {
	key := CacheKey(imo)

	start := time.Now()
	data, err := r.client.Get(ctx, key).Bytes()
	metrics.RedisOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		var entry models.CacheEntry
		if jsonErr := json.Unmarshal(data, &entry); jsonErr == nil {
			r.logger.WithField("imo", imo).Debug("Smh cache hit in Redis")
			return &entry, nil
		} else {
			r.logger.WithField("imo", imo).WithField("error", jsonErr).Warn("Dropping corrupted smh entry from Redis")
			r.client.Del(ctx, key)
		}
	case errors.Is(err, redis.Nil):
		// промах, идем в нижний слой
	default:
		metrics.RedisOperationErrors.WithLabelValues("get").Inc()
		r.logger.WithField("imo", imo).WithField("error", err).Warn("Redis read failed, falling back to persistent store")
	}

	entry, err := r.inner.GetLatest(ctx, imo)
	if err != nil {
		return nil, err
	}
	r.put(ctx, entry)
	return entry, nil
}

// Save пишет в нижний слой и обновляет Redis
func (r *RedisStore) Save(ctx context.Context, entry *models.CacheEntry, overwrite bool) error {
	if err := r.inner.Save(ctx, entry, overwrite); err != nil {
		if errors.Is(err, ErrCacheConflict) {
			// в Redis может лежать проигравшая версия
			r.client.Del(ctx, CacheKey(entry.IMO))
		}
		return err
	}
	r.put(ctx, entry)
	return nil
}

func (r *RedisStore) put(ctx context.Context, entry *models.CacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		r.logger.WithField("imo", entry.IMO).WithField("error", err).Warn("Failed to encode smh entry for Redis")
		return
	}

	start := time.Now()
	err = r.client.Set(ctx, CacheKey(entry.IMO), data, r.ttl).Err()
	metrics.RedisOperationDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RedisOperationErrors.WithLabelValues("set").Inc()
		r.logger.WithField("imo", entry.IMO).WithField("error", err).Warn("Failed to write smh entry to Redis")
	}
}
