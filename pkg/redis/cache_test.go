package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/canopy-network/hyperboard/pkg/points/leaderboard"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	c, err := NewFromOptions(context.Background(), &goredis.Options{Addr: srv.Addr()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func TestLeaderboardCacheRoundTrip(t *testing.T) {
	client, srv := newTestClient(t)
	cache := NewLeaderboardCache(client, time.Minute)
	ctx := context.Background()

	structure := ledger.StructureID(9)
	key := leaderboard.CacheKey{Scope: leaderboard.ScopePlayers, Version: 3, AsOf: 1000, StructureID: &structure}

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	board := leaderboard.Board{
		Scope:       leaderboard.ScopePlayers,
		AsOf:        1000,
		Version:     3,
		StructureID: &structure,
		Entries:     []leaderboard.Entry{{Rank: 1, Identity: "A", Points: 7.5}, {Rank: 2, Identity: "B", Points: 2.5}},
		Failed:      []leaderboard.StructureFailure{{StructureID: 4, Reason: "missing epoch"}},
	}
	require.NoError(t, cache.Set(ctx, key, board))

	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, board, got)

	assert.True(t, srv.Exists("hyperboard:board:players:v3:t1000:s9"))
	assert.Equal(t, time.Minute, srv.TTL("hyperboard:board:players:v3:t1000:s9"))
}

func TestLeaderboardCacheDropsCorruptEntries(t *testing.T) {
	client, srv := newTestClient(t)
	cache := NewLeaderboardCache(client, 0)
	key := leaderboard.CacheKey{Scope: leaderboard.ScopeGroups, Version: 1}

	require.NoError(t, srv.Set(BoardKey(key), "{not json"))

	_, ok, err := cache.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, srv.Exists(BoardKey(key)))
}

func TestLeaderboardCacheBackendError(t *testing.T) {
	client, srv := newTestClient(t)
	cache := NewLeaderboardCache(client, 0)
	srv.Close()

	_, _, err := cache.Get(context.Background(), leaderboard.CacheKey{Scope: leaderboard.ScopePlayers})
	require.Error(t, err)
}
