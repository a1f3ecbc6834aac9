package engine_test

import (
	"sync"
	"testing"

	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/canopy-network/hyperboard/pkg/points/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAccruer struct {
	mu    sync.Mutex
	calls int
	inner engine.Accruer
}

func (c *countingAccruer) Accrue(view ledger.View, req engine.Request) engine.Result {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Accrue(view, req)
}

func (c *countingAccruer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestMemoReturnsCachedResult(t *testing.T) {
	counter := &countingAccruer{inner: newEngine(t, cycleConfig(60, 10))}
	memo := engine.NewMemo(counter, 16)
	snap := singleOwner(ledger.Season{})

	first := memo.Accrue(snap, engine.Request{AsOf: 600})
	second := memo.Accrue(snap, engine.Request{AsOf: 600})

	require.Equal(t, first, second)
	assert.Equal(t, 1, counter.count())

	memo.Accrue(snap, engine.Request{AsOf: 1200})
	assert.Equal(t, 2, counter.count(), "different asOf is a different entry")
}

func TestMemoResultsAreCopies(t *testing.T) {
	memo := engine.NewMemo(newEngine(t, cycleConfig(60, 10)), 16)
	snap := singleOwner(ledger.Season{})

	res := memo.Accrue(snap, engine.Request{AsOf: 600})
	res.Points[ownerA] = -1

	again := memo.Accrue(snap, engine.Request{AsOf: 600})
	assert.Equal(t, 100.0, again.Points[ownerA])
}

func TestMemoEvictsOlderVersions(t *testing.T) {
	counter := &countingAccruer{inner: newEngine(t, cycleConfig(60, 10))}
	memo := engine.NewMemo(counter, 16)

	v1 := singleOwner(ledger.Season{})
	memo.Accrue(v1, engine.Request{AsOf: 600})
	memo.Accrue(v1, engine.Request{AsOf: 900})
	require.Equal(t, 2, memo.Len())

	v2 := ledger.NewBuilder().
		SetSeason(ledger.Season{}).
		PutStructure(ledger.Structure{ID: 1, Completed: true, CurrentEpochIndex: 1}).
		AppendEpoch(ledger.Epoch{StructureID: 1, Owners: []ledger.Owner{{Identity: ownerB, ShareBasisPoints: 10000}}}).
		Build(2)
	res := memo.Accrue(v2, engine.Request{AsOf: 600})

	assert.Equal(t, 100.0, res.Points[ownerB])
	assert.Equal(t, 1, memo.Len())
	assert.Equal(t, 3, counter.count())
}

func TestMemoKeysByKeyNameAndFilter(t *testing.T) {
	counter := &countingAccruer{inner: newEngine(t, cycleConfig(60, 10))}
	memo := engine.NewMemo(counter, 16)
	snap := singleOwner(ledger.Season{})
	groups := ledger.GroupMap{ownerA: "guild"}

	memo.Accrue(snap, engine.Request{AsOf: 600})
	g := memo.Accrue(snap, engine.Request{AsOf: 600, Key: engine.GroupKey(groups), KeyName: "groups"})
	memo.Accrue(snap, engine.Request{AsOf: 600, StructureIDs: []ledger.StructureID{1}})
	memo.Accrue(snap, engine.Request{AsOf: 600, StructureIDs: []ledger.StructureID{1, 1}})

	assert.Equal(t, 100.0, g.Points["guild"])
	assert.Equal(t, 3, counter.count())
}

func TestMemoSkipsUnnamedCustomKeys(t *testing.T) {
	counter := &countingAccruer{inner: newEngine(t, cycleConfig(60, 10))}
	memo := engine.NewMemo(counter, 16)
	snap := singleOwner(ledger.Season{})
	custom := func(id ledger.Identity) (ledger.Identity, bool) { return id + "!", true }

	memo.Accrue(snap, engine.Request{AsOf: 600, Key: custom})
	memo.Accrue(snap, engine.Request{AsOf: 600, Key: custom})

	assert.Equal(t, 2, counter.count())
	assert.Zero(t, memo.Len())
}

func TestMemoBoundedSize(t *testing.T) {
	memo := engine.NewMemo(newEngine(t, cycleConfig(60, 10)), 4)
	snap := singleOwner(ledger.Season{})

	for asOf := int64(0); asOf < 20; asOf++ {
		memo.Accrue(snap, engine.Request{AsOf: asOf})
	}
	assert.LessOrEqual(t, memo.Len(), 4)
}
