package engine

import (
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/puzpuzpuz/xsync/v4"
)

// DefaultMemoEntries caps the memo when no size is given.
const DefaultMemoEntries = 1024

type memoKey struct {
	version    uint64
	asOf       int64
	keyName    string
	structures string
}

// Memo caches accrual results keyed by (snapshot version, asOf, key name, structure filter).
// Because accrual is a pure function of those inputs, a hit returns exactly what a fresh
// computation would. Entries from older snapshot versions are dropped as soon as a newer
// version is seen.
type Memo struct {
	inner      Accruer
	entries    *xsync.Map[memoKey, Result]
	latest     atomic.Uint64
	maxEntries int
}

var _ Accruer = (*Memo)(nil)

// NewMemo wraps an Accruer. maxEntries <= 0 uses DefaultMemoEntries.
func NewMemo(inner Accruer, maxEntries int) *Memo {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoEntries
	}
	return &Memo{
		inner:      inner,
		entries:    xsync.NewMap[memoKey, Result](),
		maxEntries: maxEntries,
	}
}

// Accrue returns a memoized result, computing and storing it on a miss.
func (m *Memo) Accrue(view ledger.View, req Request) Result {
	if req.Key != nil && req.KeyName == "" {
		return m.inner.Accrue(view, req)
	}

	version := view.Version()
	m.evictOlderThan(version)

	k := memoKey{
		version:    version,
		asOf:       req.AsOf,
		keyName:    keyNameOf(req),
		structures: structuresKey(req.StructureIDs),
	}
	if res, ok := m.entries.Load(k); ok {
		return res.Clone()
	}

	res := m.inner.Accrue(view, req)
	if version < m.latest.Load() {
		// a newer snapshot arrived while computing; don't keep stale entries
		return res
	}
	if m.entries.Size() >= m.maxEntries {
		m.entries.Clear()
	}
	m.entries.Store(k, res.Clone())
	return res
}

// Len returns the number of cached results.
func (m *Memo) Len() int { return m.entries.Size() }

// Reset drops every cached result.
func (m *Memo) Reset() { m.entries.Clear() }

func (m *Memo) evictOlderThan(version uint64) {
	for {
		cur := m.latest.Load()
		if version <= cur {
			return
		}
		if m.latest.CompareAndSwap(cur, version) {
			break
		}
	}
	m.entries.Range(func(k memoKey, _ Result) bool {
		if k.version < version {
			m.entries.Delete(k)
		}
		return true
	})
}

func keyNameOf(req Request) string {
	if req.KeyName != "" {
		return req.KeyName
	}
	return "players"
}

// structuresKey renders a filter as a canonical string; nil (all completed) differs from empty.
func structuresKey(ids []ledger.StructureID) string {
	if ids == nil {
		return "*"
	}
	sorted := make([]uint64, 0, len(ids))
	for _, id := range ids {
		sorted = append(sorted, uint64(id))
	}
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}
