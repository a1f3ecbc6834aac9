package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/canopy-network/hyperboard/pkg/points/config"
)

var (
	// ErrMissingEpoch means an epoch below the structure's current epoch index is absent.
	ErrMissingEpoch = errors.New("missing epoch")
	// ErrNegativeDuration means an epoch ends before it starts.
	ErrNegativeDuration = errors.New("negative epoch duration")
)

// KeyFunc maps an identity to the bucket its points are credited to.
// Returning false drops the points.
type KeyFunc func(ledger.Identity) (ledger.Identity, bool)

// PlayerKey credits points to the identity itself.
func PlayerKey(id ledger.Identity) (ledger.Identity, bool) { return id, true }

// GroupKey credits points to the identity's group and drops identities without one.
func GroupKey(resolver ledger.GroupResolver) KeyFunc {
	return func(id ledger.Identity) (ledger.Identity, bool) {
		if resolver == nil {
			return "", false
		}
		g, ok := resolver.GroupOf(id)
		if !ok {
			return "", false
		}
		return ledger.Identity(g), true
	}
}

// Buckets holds points per (keyed) identity.
type Buckets map[ledger.Identity]float64

func (b Buckets) add(key KeyFunc, id ledger.Identity, points float64) {
	k, ok := key(id)
	if !ok {
		return
	}
	b[k] += points
}

// AccrueStructure computes the points one structure has produced up to asOf.
// It is a pure function of its inputs. An incomplete or unknown structure yields empty buckets.
// On error the returned buckets are nil and must not be credited.
func AccrueStructure(view ledger.View, provider config.Provider, season ledger.Season, id ledger.StructureID, asOf int64, key KeyFunc) (Buckets, error) {
	if key == nil {
		key = PlayerKey
	}
	out := make(Buckets)

	st, ok := view.Structure(id)
	if !ok || !st.Completed {
		return out, nil
	}

	completionBonus(view, provider, id, key, out)

	if err := cyclePoints(view, provider, season, st, asOf, key, out); err != nil {
		return nil, err
	}
	return out, nil
}

// completionBonus splits PointsOnCompletion across contributors by the weighted value they funded.
func completionBonus(view ledger.ContributionLedger, provider config.Provider, id ledger.StructureID, key KeyFunc, out Buckets) {
	required := provider.RequiredFunding(id)
	precision := provider.Precision()
	if !positive(required) || !positive(precision) {
		return
	}
	total := provider.PointsOnCompletion()

	for _, c := range view.Contributions(id) {
		weight, ok := provider.RarityWeight(c.ResourceType)
		if !ok {
			continue
		}
		effective := float64(c.Amount) * weight / precision
		share := effective / required
		bonus := total * share
		if math.IsNaN(bonus) || math.IsInf(bonus, 0) {
			continue
		}
		out.add(key, c.Contributor, bonus)
	}
}

// cyclePoints credits every closed epoch's owners with whole cycles elapsed during the epoch.
func cyclePoints(view ledger.EpochLedger, provider config.Provider, season ledger.Season, st ledger.Structure, asOf int64, key KeyFunc, out Buckets) error {
	tick := provider.TickIntervalSeconds()
	perCycle := provider.PointsPerCycle()

	for i := uint32(0); i < st.CurrentEpochIndex; i++ {
		epoch, ok := view.Epoch(st.ID, i)
		if !ok {
			return fmt.Errorf("structure %d epoch %d: %w", st.ID, i, ErrMissingEpoch)
		}

		var end int64
		if next, ok := view.Epoch(st.ID, i+1); ok {
			end = next.Start
		} else if season.IsOver {
			end = season.EndedAt
		} else {
			end = asOf
		}

		duration := end - epoch.Start
		if duration < 0 {
			return fmt.Errorf("structure %d epoch %d: start %d end %d: %w", st.ID, i, epoch.Start, end, ErrNegativeDuration)
		}
		if tick <= 0 {
			continue
		}

		cycles := duration / tick
		epochPoints := float64(cycles) * perCycle
		for _, o := range epoch.Owners {
			out.add(key, o.Identity, epochPoints*float64(o.ShareBasisPoints)/ledger.BasisPointsDenominator)
		}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
