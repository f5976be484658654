package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/asset-engine/depreciation"
)

const defaultKeyPrefix = "assets:default_finance_book:"

// RedisConfig holds the connection settings of the redis cache.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

// Redis is a BookCache shared between server instances. Redis failures
// degrade to cache misses; the store stays the source of truth.
type Redis struct {
	client     *redis.Client
	ownsClient bool
	keyPrefix  string
	ttl        time.Duration
	logger     *zap.Logger
}

// NewRedis connects to redis and pings it.
func NewRedis(cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := NewRedisWithClient(client, cfg.TTL, logger)
	c.ownsClient = true
	return c, nil
}

// NewRedisWithClient wraps an existing client. The caller keeps ownership
// of the client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (r *Redis) key(company string) string {
	return r.keyPrefix + company
}

func (r *Redis) Get(ctx context.Context, company string) (string, bool) {
	book, err := r.client.Get(ctx, r.key(company)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		r.logger.Warn("failed to read default finance book from redis",
			zap.String("company", company),
			zap.Error(err))
		return "", false
	}
	return book, true
}

func (r *Redis) Set(ctx context.Context, company, book string) {
	if err := r.client.Set(ctx, r.key(company), book, r.ttl).Err(); err != nil {
		r.logger.Warn("failed to cache default finance book in redis",
			zap.String("company", company),
			zap.Error(err))
	}
}

func (r *Redis) Invalidate(ctx context.Context, company string) error {
	if err := r.client.Del(ctx, r.key(company)).Err(); err != nil {
		return fmt.Errorf("invalidate default finance book of %s: %w", company, err)
	}
	return nil
}

// Close closes the client when the cache created it.
func (r *Redis) Close() error {
	if r.ownsClient {
		return r.client.Close()
	}
	return nil
}

var _ depreciation.BookCache = (*Redis)(nil)
