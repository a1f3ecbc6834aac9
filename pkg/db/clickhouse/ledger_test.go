package clickhouse

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/canopy-network/hyperboard/pkg/points/config"
	"github.com/canopy-network/hyperboard/pkg/points/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeRows serves canned rows. Only the methods the reader calls are implemented.
type fakeRows struct {
	driver.Rows
	rows [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i := range dest {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

// fakeDB routes queries by the table they read.
type fakeDB struct {
	tables  map[string][][]any
	queries []string
	fail    string
}

func (f *fakeDB) Query(_ context.Context, query string, _ ...interface{}) (driver.Rows, error) {
	f.queries = append(f.queries, query)
	for _, table := range []string{ContributionsTableName, EpochsTableName, StructuresTableName, GroupMembersTableName, SeasonTableName} {
		if strings.Contains(query, `."`+table+`"`) {
			if table == f.fail {
				return nil, errors.New("boom")
			}
			return &fakeRows{rows: f.tables[table]}, nil
		}
	}
	return nil, errors.New("unexpected query")
}

func ledgerFixture() map[string][][]any {
	return map[string][][]any{
		StructuresTableName: {
			{uint64(1), true, uint32(2)},
			{uint64(2), false, uint32(0)},
		},
		EpochsTableName: {
			{uint64(1), uint32(0), int64(100), []string{"A"}, []uint16{10000}},
			{uint64(1), uint32(1), int64(200), []string{"A", "B"}, []uint16{5000, 5000}},
		},
		ContributionsTableName: {
			{uint64(1), "A", uint32(1), uint64(750)},
			{uint64(1), "B", uint32(1), uint64(250)},
		},
		SeasonTableName: {
			{int64(50), int64(0), false},
		},
		GroupMembersTableName: {
			{"A", "g1"},
			{"B", ""},
		},
	}
}

func TestLedgerReaderLoad(t *testing.T) {
	db := &fakeDB{tables: ledgerFixture()}
	reader := newLedgerReader(db, "ledger", zaptest.NewLogger(t))

	reader.now = func() time.Time { return time.Unix(0, 1_000) }

	snap, groups, changed, err := reader.Load(context.Background())
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, uint64(1_000), snap.Version())
	assert.Len(t, db.queries, 5)
	for _, q := range db.queries {
		assert.Contains(t, q, `"ledger".`)
	}

	assert.Equal(t, []ledger.StructureID{1}, snap.CompletedStructureIDs())
	cur, ok := snap.CurrentOwners(1)
	require.True(t, ok)
	assert.Equal(t, int64(200), cur.EpochStart)
	assert.Len(t, cur.Owners, 2)
	assert.Len(t, snap.Contributions(1), 2)

	season, ok := snap.Season()
	require.True(t, ok)
	assert.Equal(t, int64(50), season.StartAt)

	g, ok := groups.GroupOf("A")
	assert.True(t, ok)
	assert.Equal(t, ledger.GroupID("g1"), g)
	_, ok = groups.GroupOf("B")
	assert.False(t, ok)
}

func TestLedgerReaderVersionsOnlyOnChange(t *testing.T) {
	db := &fakeDB{tables: ledgerFixture()}
	reader := newLedgerReader(db, "ledger", zaptest.NewLogger(t))
	// a clock that does not move still yields increasing versions
	reader.now = func() time.Time { return time.Unix(0, 1_000) }
	ctx := context.Background()

	first, _, changed, err := reader.Load(ctx)
	require.NoError(t, err)
	require.True(t, changed)

	again, _, changed, err := reader.Load(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, first, again)

	db.tables[ContributionsTableName] = append(db.tables[ContributionsTableName], []any{uint64(1), "C", uint32(2), uint64(5)})
	next, _, changed, err := reader.Load(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, uint64(1_001), next.Version())
	assert.Len(t, next.Contributions(1), 3)
}

func TestLedgerReaderQueryFailure(t *testing.T) {
	db := &fakeDB{tables: ledgerFixture(), fail: EpochsTableName}
	reader := newLedgerReader(db, "ledger", zaptest.NewLogger(t))

	_, _, _, err := reader.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), EpochsTableName)
}

func TestLedgerReaderSkipsMalformedEpoch(t *testing.T) {
	tables := ledgerFixture()
	tables[StructuresTableName] = append(tables[StructuresTableName], []any{uint64(3), true, uint32(1)})
	tables[EpochsTableName] = append(tables[EpochsTableName],
		[]any{uint64(3), uint32(0), int64(100), []string{"C", "D"}, []uint16{10000}})
	db := &fakeDB{tables: tables}
	reader := newLedgerReader(db, "ledger", zaptest.NewLogger(t))
	ctx := context.Background()

	snap, _, changed, err := reader.Load(ctx)
	require.NoError(t, err)
	require.True(t, changed)

	_, ok := snap.Epoch(3, 0)
	assert.False(t, ok)
	cur, ok := snap.CurrentOwners(1)
	require.True(t, ok)
	assert.Len(t, cur.Owners, 2)

	eng := engine.New(config.Defaults(), engine.WithWorkers(2), engine.WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(eng.Close)
	res := eng.Accrue(snap, engine.Request{AsOf: 300})

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, ledger.StructureID(3), failed[0].ID)
	assert.ErrorIs(t, failed[0].Err, engine.ErrMissingEpoch)
	assert.Positive(t, res.Points["A"])
	assert.Positive(t, res.Points["B"])

	// repairing the row issues a new version
	tables[EpochsTableName][2] = []any{uint64(3), uint32(0), int64(100), []string{"C", "D"}, []uint16{5000, 5000}}
	fixed, _, changed, err := reader.Load(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Greater(t, fixed.Version(), snap.Version())
	_, ok = fixed.Epoch(3, 0)
	assert.True(t, ok)
}

func TestLedgerReaderEmptySeason(t *testing.T) {
	tables := ledgerFixture()
	tables[SeasonTableName] = nil
	reader := newLedgerReader(&fakeDB{tables: tables}, "ledger", zaptest.NewLogger(t))

	snap, _, _, err := reader.Load(context.Background())
	require.NoError(t, err)
	_, ok := snap.Season()
	assert.False(t, ok)
}
