package ledger

import (
	"slices"
)

// Snapshot is an immutable, versioned copy of the ledgers. It is safe for concurrent readers.
// Build one with a Builder.
type Snapshot struct {
	version       uint64
	season        *Season
	structures    map[StructureID]Structure
	epochs        map[StructureID]map[uint32]Epoch
	contributions map[StructureID][]Contribution
	ids           []StructureID
}

var _ View = (*Snapshot)(nil)

// Version returns the snapshot version.
func (s *Snapshot) Version() uint64 { return s.version }

// Season returns the season singleton, if the sync layer has delivered it.
func (s *Snapshot) Season() (Season, bool) {
	if s.season == nil {
		return Season{}, false
	}
	return *s.season, true
}

// Structure returns the structure state.
func (s *Snapshot) Structure(id StructureID) (Structure, bool) {
	st, ok := s.structures[id]
	return st, ok
}

// StructureIDs returns every known structure id in ascending order.
func (s *Snapshot) StructureIDs() []StructureID {
	return slices.Clone(s.ids)
}

// CompletedStructureIDs returns the ids of completed structures in ascending order.
func (s *Snapshot) CompletedStructureIDs() []StructureID {
	out := make([]StructureID, 0, len(s.ids))
	for _, id := range s.ids {
		if s.structures[id].Completed {
			out = append(out, id)
		}
	}
	return out
}

// Epoch returns the epoch at index for the structure.
func (s *Snapshot) Epoch(id StructureID, index uint32) (Epoch, bool) {
	byIndex, ok := s.epochs[id]
	if !ok {
		return Epoch{}, false
	}
	ep, ok := byIndex[index]
	if !ok {
		return Epoch{}, false
	}
	ep.Owners = slices.Clone(ep.Owners)
	return ep, true
}

// CurrentOwners returns the owners of the latest recorded epoch.
func (s *Snapshot) CurrentOwners(id StructureID) (CurrentOwners, bool) {
	st, ok := s.structures[id]
	if !ok || st.CurrentEpochIndex == 0 {
		return CurrentOwners{}, false
	}
	ep, ok := s.Epoch(id, st.CurrentEpochIndex-1)
	if !ok {
		return CurrentOwners{}, false
	}
	return CurrentOwners{Owners: ep.Owners, EpochStart: ep.Start}, true
}

// ShareOf returns the identity's share of the structure in the current epoch, or 0.
func (s *Snapshot) ShareOf(identity Identity, id StructureID) float64 {
	cur, ok := s.CurrentOwners(id)
	if !ok {
		return 0
	}
	for _, o := range cur.Owners {
		if o.Identity == identity {
			return o.Share()
		}
	}
	return 0
}

// Contributions returns the structure's contributions in insertion order.
func (s *Snapshot) Contributions(id StructureID) []Contribution {
	return slices.Clone(s.contributions[id])
}

// Stats summarizes the snapshot size for logging.
func (s *Snapshot) Stats() (structures, epochs, contributions int) {
	structures = len(s.structures)
	for _, byIndex := range s.epochs {
		epochs += len(byIndex)
	}
	for _, list := range s.contributions {
		contributions += len(list)
	}
	return structures, epochs, contributions
}
