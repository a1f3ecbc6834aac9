package leaderboard

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/canopy-network/hyperboard/pkg/points/engine"
)

// Scope names the view a board was computed for.
type Scope string

const (
	ScopePlayers Scope = "players"
	ScopeGroups  Scope = "groups"
)

// Entry is one ranked identity (a player address or a group id).
type Entry struct {
	Rank     int             `json:"rank"`
	Identity ledger.Identity `json:"identity"`
	Points   float64         `json:"points"`
}

// StructureFailure explains why a structure was left out of a board.
type StructureFailure struct {
	StructureID ledger.StructureID `json:"structureId"`
	Reason      string             `json:"reason"`
}

// Board is a ranked leaderboard.
type Board struct {
	Scope       Scope               `json:"scope"`
	AsOf        int64               `json:"asOf"`
	Version     uint64              `json:"version"`
	StructureID *ledger.StructureID `json:"structureId,omitempty"`
	// NoSeason is set when there is no season data yet; Entries is empty and the caller may retry.
	NoSeason bool               `json:"noSeason,omitempty"`
	Entries  []Entry            `json:"entries"`
	Failed   []StructureFailure `json:"failed,omitempty"`
}

// Rank orders points descending; equal points are ordered by identity ascending (byte-wise).
// Identities with no points, or with NaN or infinite points, are left out. Ranks are
// 1-based positions.
func Rank(points map[ledger.Identity]float64) []Entry {
	out := make([]Entry, 0, len(points))
	for id, pts := range points {
		if !(pts > 0) || math.IsInf(pts, 0) {
			continue
		}
		out = append(out, Entry{Identity: id, Points: pts})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.Identity, b.Identity)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func newBoard(scope Scope, structure *ledger.StructureID, res engine.Result) Board {
	b := Board{
		Scope:    scope,
		AsOf:     res.AsOf,
		Version:  res.Version,
		NoSeason: res.NoSeason,
		Entries:  Rank(res.Points),
	}
	if structure != nil {
		id := *structure
		b.StructureID = &id
	}
	for _, f := range res.Failed() {
		b.Failed = append(b.Failed, StructureFailure{StructureID: f.ID, Reason: f.Err.Error()})
	}
	return b
}

// CacheKey identifies a board in a shared cache.
type CacheKey struct {
	Scope       Scope
	Version     uint64
	AsOf        int64
	StructureID *ledger.StructureID
}

func (k CacheKey) String() string {
	s := "all"
	if k.StructureID != nil {
		s = fmt.Sprintf("%d", *k.StructureID)
	}
	return fmt.Sprintf("%s:v%d:t%d:s%s", k.Scope, k.Version, k.AsOf, s)
}
