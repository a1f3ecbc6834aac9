package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/hyperboard/pkg/points/leaderboard"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultBoardTTL bounds how long a computed board is kept.
	DefaultBoardTTL = 30 * time.Second
	boardKeyPrefix  = "hyperboard:board:"
)

// LeaderboardCache stores ranked boards as JSON. Keys embed the ledger version and asOf,
// so an entry never goes stale; the TTL only bounds memory.
type LeaderboardCache struct {
	client *Client
	ttl    time.Duration
}

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

// NewLeaderboardCache returns a cache over client. ttl <= 0 uses DefaultBoardTTL.
func NewLeaderboardCache(client *Client, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = DefaultBoardTTL
	}
	return &LeaderboardCache{client: client, ttl: ttl}
}

// BoardKey returns the Redis key for a board.
func BoardKey(key leaderboard.CacheKey) string {
	return boardKeyPrefix + key.String()
}

// Get implements leaderboard.Cache.
func (c *LeaderboardCache) Get(ctx context.Context, key leaderboard.CacheKey) (leaderboard.Board, bool, error) {
	raw, err := c.client.client.Get(ctx, BoardKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return leaderboard.Board{}, false, nil
	}
	if err != nil {
		return leaderboard.Board{}, false, err
	}

	var board leaderboard.Board
	if err := json.Unmarshal(raw, &board); err != nil {
		// drop the corrupt entry so the next request recomputes it
		c.client.logger.Warn("Discarding undecodable cached board", zap.String("key", BoardKey(key)), zap.Error(err))
		_ = c.client.client.Del(ctx, BoardKey(key)).Err()
		return leaderboard.Board{}, false, nil
	}
	return board, true, nil
}

// Set implements leaderboard.Cache.
func (c *LeaderboardCache) Set(ctx context.Context, key leaderboard.CacheKey, board leaderboard.Board) error {
	payload, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	return c.client.client.Set(ctx, BoardKey(key), payload, c.ttl).Err()
}
