package redis

import (
	"context"
	"errors"
	"time"

	"imagegen/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client to centralize configuration.
type Client struct {
	inner *redis.Client
}

var errNotInitialized = errors.New("redis client not initialized")

// NewClient creates the redis client from config and pings it.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Client{inner: client}, nil
}

// SetNX stores key only if it does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if c == nil || c.inner == nil {
		return false, errNotInitialized
	}
	return c.inner.SetNX(ctx, key, value, ttl).Result()
}

// Eval runs a Lua script through EVALSHA, loading it on first use.
func (c *Client) Eval(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	if c == nil || c.inner == nil {
		return nil, errNotInitialized
	}
	return script.Run(ctx, c.inner, keys, args...).Result()
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return c.inner.Ping(ctx).Err()
}

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
