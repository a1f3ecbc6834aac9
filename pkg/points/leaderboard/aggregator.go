package leaderboard

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/canopy-network/hyperboard/pkg/points/engine"
	"go.uber.org/zap"
)

// ErrNoSnapshot is returned until the first ledger snapshot has been installed.
var ErrNoSnapshot = errors.New("no ledger snapshot loaded")

// Cache stores computed boards so replicas can share them. Implementations must treat
// misses and backend errors alike from the aggregator's point of view.
type Cache interface {
	Get(ctx context.Context, key CacheKey) (Board, bool, error)
	Set(ctx context.Context, key CacheKey, board Board) error
}

type state struct {
	view   ledger.View
	groups ledger.GroupResolver
}

// Aggregator ranks accrued points over the most recently installed snapshot.
// It is safe for concurrent use.
type Aggregator struct {
	accruer engine.Accruer
	cache   Cache
	logger  *zap.Logger
	current atomic.Pointer[state]
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCache adds a shared board cache.
func WithCache(c Cache) Option {
	return func(a *Aggregator) { a.cache = c }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New returns an aggregator without a snapshot; call SetSnapshot before ranking.
func New(accruer engine.Accruer, opts ...Option) *Aggregator {
	a := &Aggregator{accruer: accruer}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// SetSnapshot installs a new ledger view and the group membership that goes with it.
func (a *Aggregator) SetSnapshot(view ledger.View, groups ledger.GroupResolver) {
	a.current.Store(&state{view: view, groups: groups})
}

// Snapshot returns the current view, or nil before the first SetSnapshot.
func (a *Aggregator) Snapshot() ledger.View {
	st := a.current.Load()
	if st == nil {
		return nil
	}
	return st.view
}

// RankPlayers ranks every player by points earned up to asOf, optionally for one structure.
func (a *Aggregator) RankPlayers(ctx context.Context, asOf int64, structure *ledger.StructureID) (Board, error) {
	st := a.current.Load()
	if st == nil {
		return Board{}, ErrNoSnapshot
	}
	req := engine.Request{AsOf: asOf, Key: engine.PlayerKey, KeyName: string(ScopePlayers)}
	return a.rank(ctx, st.view, ScopePlayers, structure, req, true)
}

// RankGroups ranks groups. Identities the resolver does not place in a group are excluded.
// A nil resolver uses the membership installed with the snapshot; only that case is cached,
// since an ad-hoc resolver has no stable identity.
func (a *Aggregator) RankGroups(ctx context.Context, asOf int64, resolver ledger.GroupResolver, structure *ledger.StructureID) (Board, error) {
	st := a.current.Load()
	if st == nil {
		return Board{}, ErrNoSnapshot
	}
	cacheable := resolver == nil
	req := engine.Request{AsOf: asOf}
	if cacheable {
		req.Key = engine.GroupKey(st.groups)
		req.KeyName = string(ScopeGroups)
	} else {
		req.Key = engine.GroupKey(resolver)
	}
	return a.rank(ctx, st.view, ScopeGroups, structure, req, cacheable)
}

// CurrentOwners passes through to the epoch ledger.
func (a *Aggregator) CurrentOwners(id ledger.StructureID) (ledger.CurrentOwners, bool) {
	view := a.Snapshot()
	if view == nil {
		return ledger.CurrentOwners{}, false
	}
	return view.CurrentOwners(id)
}

// ShareOf passes through to the epoch ledger.
func (a *Aggregator) ShareOf(identity ledger.Identity, id ledger.StructureID) float64 {
	view := a.Snapshot()
	if view == nil {
		return 0
	}
	return view.ShareOf(identity, id)
}

func (a *Aggregator) rank(ctx context.Context, view ledger.View, scope Scope, structure *ledger.StructureID, req engine.Request, cacheable bool) (Board, error) {
	if structure != nil {
		req.StructureIDs = []ledger.StructureID{*structure}
	}

	key := CacheKey{Scope: scope, Version: view.Version(), AsOf: req.AsOf, StructureID: structure}
	useCache := cacheable && a.cache != nil
	if useCache {
		board, ok, err := a.cache.Get(ctx, key)
		if err != nil {
			a.logger.Warn("leaderboard cache read failed", zap.String("key", key.String()), zap.Error(err))
		} else if ok {
			return board, nil
		}
	}

	res := a.accruer.Accrue(view, req)
	board := newBoard(scope, structure, res)

	for _, f := range board.Failed {
		a.logger.Warn("structure omitted from leaderboard",
			zap.String("scope", string(scope)),
			zap.Uint64("structureId", uint64(f.StructureID)),
			zap.Uint64("version", board.Version),
			zap.String("reason", f.Reason),
		)
	}
	if board.NoSeason {
		a.logger.Debug("no season data yet", zap.Uint64("version", board.Version))
	}

	if useCache {
		if err := a.cache.Set(ctx, key, board); err != nil {
			a.logger.Warn("leaderboard cache write failed", zap.String("key", key.String()), zap.Error(err))
		}
	}
	return board, nil
}
