package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when no invoices are cached under a key
var ErrCacheMiss = errors.New("invoice cache miss")

// InvoiceCache keeps the last successful invoice list per customer identity.
// Keys come from invoiceCacheKey and never carry raw credentials.
type InvoiceCache interface {
	Load(ctx context.Context, key string) ([]Invoice, error)
	Store(ctx context.Context, key string, invoices []Invoice) error
}

// RedisCache stores invoice lists in Redis
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a cache keeping entries for ttl (zero keeps forever)
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// invoiceCacheKey scopes a cached list to the document, password and
// contract that fetched it
func invoiceCacheKey(creds Credentials) string {
	sum := sha256.Sum256([]byte(CleanDocument(creds.Document) + "\x00" + creds.Contract + "\x00" + creds.Password))
	return hex.EncodeToString(sum[:])
}

func redisKey(key string) string {
	return "billing:invoices:" + key
}

// Load returns the invoices cached under key
func (c *RedisCache) Load(ctx context.Context, key string) ([]Invoice, error) {
	raw, err := c.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var invoices []Invoice
	if err := sonic.Unmarshal(raw, &invoices); err != nil {
		return nil, fmt.Errorf("decode cached invoices: %w", err)
	}
	return invoices, nil
}

// Store replaces the invoices cached under key
func (c *RedisCache) Store(ctx context.Context, key string, invoices []Invoice) error {
	raw, err := sonic.Marshal(invoices)
	if err != nil {
		return fmt.Errorf("encode invoices: %w", err)
	}
	if err := c.rdb.Set(ctx, redisKey(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
