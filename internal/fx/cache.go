package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "fx:version"

// Cache keeps resolved rates in Redis. Keys carry a version so a refresh can drop every
// cached rate at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) key(ctx context.Context, currency string, date time.Time) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{"fx", "rate", fmt.Sprint(ver), currency, Day(date).Format(time.DateOnly)}, ":"), nil
}

// Get looks up the rate resolved for a currency on a requested day.
func (c *Cache) Get(ctx context.Context, currency string, date time.Time) (Rate, bool, error) {
	if c == nil || c.client == nil {
		return Rate{}, false, nil
	}
	key, err := c.key(ctx, currency, date)
	if err != nil {
		return Rate{}, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Rate{}, false, nil
	}
	if err != nil {
		return Rate{}, false, err
	}
	var rate Rate
	if err := json.Unmarshal(payload, &rate); err != nil {
		return Rate{}, false, err
	}
	return rate, true, nil
}

// Set stores the rate resolved for a requested day.
func (c *Cache) Set(ctx context.Context, date time.Time, rate Rate) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.key(ctx, rate.Currency, date)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rate)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate drops every cached rate by bumping the key version.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
