package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis configuration
type Config struct {
	Host        string
	Port        string
	Password    string
	DB          int
	MaxRetries  int
	PoolSize    int
	MinIdleConn int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// NewRedisClient creates a new Redis client and verifies the connection
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConn,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Close gracefully closes the Redis client
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// KV is a namespaced string key/value view over a Redis client
type KV struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewKV creates a KV storing every key under prefix. A zero ttl keeps keys
// until they are deleted.
func NewKV(client redis.Cmdable, prefix string, ttl time.Duration) *KV {
	return &KV{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the namespaced Redis key
func (kv *KV) Key(key string) string {
	if kv.prefix == "" {
		return key
	}
	return kv.prefix + ":" + key
}

// Get returns the value stored at key. ok is false when the key is absent.
func (kv *KV) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	value, err = kv.client.Get(ctx, kv.Key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value at key
func (kv *KV) Set(ctx context.Context, key, value string) error {
	return kv.client.Set(ctx, kv.Key(key), value, kv.ttl).Err()
}

// Delete removes keys
func (kv *KV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = kv.Key(k)
	}
	return kv.client.Del(ctx, full...).Err()
}

// GetMultiple retrieves several keys at once; absent keys yield "".
func (kv *KV) GetMultiple(ctx context.Context, keys ...string) ([]string, error) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = kv.Key(k)
	}
	values, err := kv.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[i] = s
		}
	}
	return out, nil
}
