package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct{ R *redis.Client }

func New(r *redis.Client) *Cache { return &Cache{R: r} }

const keyLeaderboard = "leaderboard:top"

func (c *Cache) GetLeaderboard(ctx context.Context, dst any) (bool, error) {
	b, err := c.R.Get(ctx, keyLeaderboard).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *Cache) SetLeaderboard(ctx context.Context, v any, ttl time.Duration) error {
	b, _ := json.Marshal(v)
	return c.R.Set(ctx, keyLeaderboard, b, ttl).Err()
}

// InvalidateLeaderboard é chamado pelo settlement-worker após recalcular ranks
func (c *Cache) InvalidateLeaderboard(ctx context.Context) error {
	return c.R.Del(ctx, keyLeaderboard).Err()
}
