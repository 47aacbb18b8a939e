package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrAvailabilityNotSeeded is returned when an allocation has no mirrored
// counters yet, for example after a Redis restart or flush. Callers seed from
// Postgres and retry, or fall back to the database check.
var ErrAvailabilityNotSeeded = errors.New("availability not mirrored")

//go:embed scripts/hold_units.lua
var holdUnitsScript string

//go:embed scripts/release_units.lua
var releaseUnitsScript string

//go:embed scripts/consume_units.lua
var consumeUnitsScript string

// Client mirrors per-allocation availability counters in Redis so checkout
// can reject obviously-oversubscribed reservations without a database round
// trip. Postgres stays authoritative; these counters are advisory and are
// resynced from the database at boot.
type Client struct {
	rdb           *redis.Client
	holdScript    *redis.Script
	releaseScript *redis.Script
	consumeScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return &Client{
		rdb:           rdb,
		holdScript:    redis.NewScript(holdUnitsScript),
		releaseScript: redis.NewScript(releaseUnitsScript),
		consumeScript: redis.NewScript(consumeUnitsScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func availabilityKey(allocationID string) string {
	return fmt.Sprintf("allocation:%s", allocationID)
}

// HoldUnits atomically records a soft hold against an allocation's mirrored
// counters. Returns false when remaining minus held cannot cover qty, and
// ErrAvailabilityNotSeeded when the mirror does not exist for the allocation.
func (c *Client) HoldUnits(ctx context.Context, allocationID string, qty int) (bool, error) {
	result, err := c.holdScript.Run(ctx, c.rdb, []string{availabilityKey(allocationID)}, qty).Result()
	if err != nil {
		return false, fmt.Errorf("hold units script failed: %w", err)
	}

	ok, isInt := result.(int64)
	if !isInt {
		return false, fmt.Errorf("unexpected script result type")
	}
	if ok == -1 {
		return false, ErrAvailabilityNotSeeded
	}
	return ok == 1, nil
}

// ReleaseUnits atomically releases a soft hold (cancel/expire paths).
func (c *Client) ReleaseUnits(ctx context.Context, allocationID string, qty int) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{availabilityKey(allocationID)}, qty).Result()
	if err != nil {
		return fmt.Errorf("release units script failed: %w", err)
	}
	return nil
}

// ConsumeUnits atomically moves qty from remaining (and any matching held
// portion) when vouchers are issued.
func (c *Client) ConsumeUnits(ctx context.Context, allocationID string, qty int) error {
	_, err := c.consumeScript.Run(ctx, c.rdb, []string{availabilityKey(allocationID)}, qty).Result()
	if err != nil {
		return fmt.Errorf("consume units script failed: %w", err)
	}
	return nil
}

// InitAvailability seeds the mirrored counters for an allocation.
func (c *Client) InitAvailability(ctx context.Context, allocationID string, remaining, held int) error {
	key := availabilityKey(allocationID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "remaining", remaining)
	pipe.HSet(ctx, key, "held", held)

	_, err := pipe.Exec(ctx)
	return err
}

// GetAvailability retrieves the mirrored counters for an allocation.
func (c *Client) GetAvailability(ctx context.Context, allocationID string) (remaining, held int, err error) {
	result, err := c.rdb.HGetAll(ctx, availabilityKey(allocationID)).Result()
	if err != nil {
		return 0, 0, err
	}

	if len(result) == 0 {
		return 0, 0, fmt.Errorf("availability not mirrored for allocation %s", allocationID)
	}

	fmt.Sscanf(result["remaining"], "%d", &remaining)
	fmt.Sscanf(result["held"], "%d", &held)
	return remaining, held, nil
}

// AcquireLock acquires a distributed lock. The sweep uses it as a cheap
// leader election so overlapping ticks across replicas skip instead of
// hammering the same rows.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
