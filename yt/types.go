package yt

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/redis/go-redis/v9"
)

const (
	metaKeyPrefix  = "ytmeta:"
	audioKeyPrefix = "video:"
)

// VideoMeta is the part of a video's metadata kept in the cache.
type VideoMeta struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Author   string        `json:"author"`
	Duration time.Duration `json:"duration"`
}

// VideoClient is the subset of youtube.Client the resolver uses.
type VideoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// Cache is a string key-value store with expiry. Get returns ErrCacheMiss for absent keys.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

var ErrCacheMiss = errors.New("cache miss")

type redisCache struct {
	rdb *redis.Client
}

// NewRedisCache adapts a redis client to Cache.
func NewRedisCache(rdb *redis.Client) Cache {
	return &redisCache{rdb: rdb}
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}
