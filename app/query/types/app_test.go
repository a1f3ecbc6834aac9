package types

import (
	"context"
	"errors"
	"testing"

	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/canopy-network/hyperboard/pkg/points/config"
	"github.com/canopy-network/hyperboard/pkg/points/engine"
	"github.com/canopy-network/hyperboard/pkg/points/leaderboard"
	"github.com/canopy-network/hyperboard/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type scriptedLoader struct {
	results []loadResult
	calls   int
}

type loadResult struct {
	snap    *ledger.Snapshot
	changed bool
	err     error
}

func (s *scriptedLoader) Load(context.Context) (*ledger.Snapshot, ledger.GroupMap, bool, error) {
	r := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return r.snap, ledger.GroupMap{}, r.changed, r.err
}

func newApp(t *testing.T, loader SnapshotLoader) *App {
	t.Helper()
	logger := zaptest.NewLogger(t)
	eng := engine.New(config.Defaults(), engine.WithWorkers(1), engine.WithLogger(logger))
	t.Cleanup(eng.Close)
	return &App{
		Loader:     loader,
		Engine:     eng,
		Aggregator: leaderboard.New(engine.NewMemo(eng, 0), leaderboard.WithLogger(logger)),
		CronSpec:   "*/30 * * * * *",
		Logger:     logger,
	}
}

func TestRefreshInstallsChangedSnapshots(t *testing.T) {
	v1 := ledger.NewBuilder().Build(1)
	v2 := ledger.NewBuilder().Build(2)
	loader := &scriptedLoader{results: []loadResult{
		{snap: v1, changed: true},
		{snap: v1, changed: false},
		{snap: v2, changed: true},
	}}
	app := newApp(t, loader)
	ctx := context.Background()

	require.NoError(t, app.Refresh(ctx))
	assert.Same(t, v1, app.Aggregator.Snapshot())

	require.NoError(t, app.Refresh(ctx))
	assert.Same(t, v1, app.Aggregator.Snapshot())

	require.NoError(t, app.Refresh(ctx))
	assert.Same(t, v2, app.Aggregator.Snapshot())
}

func TestRefreshInstallsUnchangedSnapshotWhenEmpty(t *testing.T) {
	snap := ledger.NewBuilder().Build(5)
	app := newApp(t, &scriptedLoader{results: []loadResult{{snap: snap, changed: false}}})

	require.NoError(t, app.Refresh(context.Background()))
	assert.Same(t, snap, app.Aggregator.Snapshot())
}

func TestRefreshKeepsSnapshotOnFailure(t *testing.T) {
	snap := ledger.NewBuilder().Build(1)
	cause := errors.New("clickhouse unavailable")
	loader := &scriptedLoader{results: []loadResult{
		{snap: snap, changed: true},
		{err: retry.Permanent(cause)},
	}}
	app := newApp(t, loader)
	ctx := context.Background()

	require.NoError(t, app.Refresh(ctx))
	err := app.Refresh(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Same(t, snap, app.Aggregator.Snapshot())
	assert.Equal(t, 2, loader.calls)
}

func TestRefreshWithoutLoader(t *testing.T) {
	app := newApp(t, nil)
	assert.Error(t, app.Refresh(context.Background()))
}

func TestSetupScheduler(t *testing.T) {
	app := newApp(t, &scriptedLoader{results: []loadResult{{snap: ledger.NewBuilder().Build(1), changed: true}}})
	require.NoError(t, app.SetupScheduler(context.Background()))
	assert.Len(t, app.Cron.Entries(), 1)

	app.CronSpec = "every now and then"
	assert.Error(t, app.SetupScheduler(context.Background()))
}
