package engine

import (
	"fmt"
	"maps"
	"runtime"
	"slices"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/canopy-network/hyperboard/pkg/points/config"
	"go.uber.org/zap"
)

// Request selects what to accrue.
type Request struct {
	// StructureIDs restricts accrual to these structures. Nil means every completed structure.
	StructureIDs []ledger.StructureID
	// AsOf is the query timestamp in unix seconds.
	AsOf int64
	// Key re-keys identities (PlayerKey when nil).
	Key KeyFunc
	// KeyName identifies Key for memoization, e.g. "players" or "groups".
	// Requests with a custom Key and no KeyName are never memoized.
	KeyName string
}

// StructureResult reports whether a structure's points were included.
type StructureResult struct {
	ID  ledger.StructureID
	Err error
}

// OK reports whether the structure was accrued successfully.
func (r StructureResult) OK() bool { return r.Err == nil }

// Result is the outcome of one accrual.
type Result struct {
	Version uint64
	AsOf    int64
	// NoSeason is set when the season record has not been synced yet; Points is empty.
	NoSeason   bool
	Points     map[ledger.Identity]float64
	Structures []StructureResult
}

// Failed returns the structures whose points were omitted.
func (r Result) Failed() []StructureResult {
	var out []StructureResult
	for _, s := range r.Structures {
		if !s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// Clone returns a deep copy.
func (r Result) Clone() Result {
	r.Points = maps.Clone(r.Points)
	r.Structures = slices.Clone(r.Structures)
	return r
}

// Accruer is implemented by Engine and Memo.
type Accruer interface {
	Accrue(view ledger.View, req Request) Result
}

// Engine computes points from a ledger view. It owns a worker pool used to evaluate
// structures concurrently; Close releases it. Engines share no state with each other.
type Engine struct {
	provider config.Provider
	pool     pond.Pool
	logger   *zap.Logger
}

var _ Accruer = (*Engine)(nil)

type options struct {
	workers int
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*options)

// WithWorkers sets the pool size. Values <= 0 use runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds an engine over the given config provider.
func New(provider config.Provider, opts ...Option) *Engine {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = runtime.NumCPU()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return &Engine{
		provider: provider,
		pool:     pond.NewPool(o.workers),
		logger:   o.logger,
	}
}

// Close stops the worker pool after in-flight accruals finish.
func (e *Engine) Close() {
	e.pool.StopAndWait()
}

// Accrue computes points for the requested structures. Structures that fail are reported in
// Result.Structures and contribute nothing; the rest are merged by summation in ascending
// structure id order, so identical inputs always produce identical output.
func (e *Engine) Accrue(view ledger.View, req Request) Result {
	res := Result{
		Version: view.Version(),
		AsOf:    req.AsOf,
		Points:  make(map[ledger.Identity]float64),
	}

	season, ok := view.Season()
	if !ok {
		res.NoSeason = true
		return res
	}

	key := req.Key
	if key == nil {
		key = PlayerKey
	}

	ids := req.StructureIDs
	if ids == nil {
		ids = view.CompletedStructureIDs()
	} else {
		ids = slices.Clone(ids)
		slices.Sort(ids)
		ids = slices.Compact(ids)
	}

	buckets := make([]Buckets, len(ids))
	errs := make([]error, len(ids))

	group := e.pool.NewGroup()
	for i, id := range ids {
		group.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					buckets[i] = nil
					errs[i] = fmt.Errorf("structure %d: accrual panicked: %v", id, r)
				}
			}()
			buckets[i], errs[i] = AccrueStructure(view, e.provider, season, id, req.AsOf, key)
		})
	}
	if err := group.Wait(); err != nil {
		e.logger.Error("accrual group failed", zap.Error(err))
	}

	res.Structures = make([]StructureResult, len(ids))
	for i, id := range ids {
		res.Structures[i] = StructureResult{ID: id, Err: errs[i]}
		if errs[i] != nil {
			continue
		}
		for identity, pts := range buckets[i] {
			res.Points[identity] += pts
		}
	}

	e.logger.Debug("accrued points",
		zap.Uint64("version", res.Version),
		zap.Int64("asOf", req.AsOf),
		zap.Int("structures", len(ids)),
		zap.Int("identities", len(res.Points)),
	)
	return res
}
