// Package redisclient caches travel-time estimates so the pricing engine
// does not hit the routing collaborator on every quote for the same
// neighborhood.
package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// travelKeyPrecision buckets distances to one decimal so nearby quotes
// share a cache entry.
func travelKey(distanceKm float64) string {
	return fmt.Sprintf("travel:%.1f", distanceKm)
}

type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings Redis.
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetTravelMinutes returns a cached estimate for a distance bucket.
// ok=false means cache miss.
func (c *Client) GetTravelMinutes(ctx context.Context, distanceKm float64) (minutes int, ok bool, err error) {
	val, err := c.rdb.Get(ctx, travelKey(distanceKm)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	mins, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt travel cache entry: %w", err)
	}
	return mins, true, nil
}

// SetTravelMinutes caches an estimate for a distance bucket.
func (c *Client) SetTravelMinutes(ctx context.Context, distanceKm float64, minutes int, ttl time.Duration) error {
	return c.rdb.Set(ctx, travelKey(distanceKm), strconv.Itoa(minutes), ttl).Err()
}
