package ledger

import (
	"slices"
)

// Builder accumulates ledger records and freezes them into a Snapshot.
// It records what it is given; it does not validate or repair the history.
// A Builder is not safe for concurrent use.
type Builder struct {
	season        *Season
	structures    map[StructureID]Structure
	epochs        map[StructureID]map[uint32]Epoch
	contributions map[StructureID][]Contribution
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		structures:    make(map[StructureID]Structure),
		epochs:        make(map[StructureID]map[uint32]Epoch),
		contributions: make(map[StructureID][]Contribution),
	}
}

// SetSeason sets the season singleton.
func (b *Builder) SetSeason(season Season) *Builder {
	b.season = &season
	return b
}

// PutStructure records (or replaces) a structure state update.
func (b *Builder) PutStructure(st Structure) *Builder {
	b.structures[st.ID] = st
	return b
}

// AppendEpoch records an epoch. A later epoch with the same index replaces the earlier one.
func (b *Builder) AppendEpoch(ep Epoch) *Builder {
	byIndex, ok := b.epochs[ep.StructureID]
	if !ok {
		byIndex = make(map[uint32]Epoch)
		b.epochs[ep.StructureID] = byIndex
	}
	ep.Owners = slices.Clone(ep.Owners)
	byIndex[ep.Index] = ep
	return b
}

// AppendContribution records a contribution at the end of the structure's history.
func (b *Builder) AppendContribution(c Contribution) *Builder {
	b.contributions[c.StructureID] = append(b.contributions[c.StructureID], c)
	return b
}

// Build freezes the accumulated records into a Snapshot with the given version.
// The builder can keep being used afterwards; the snapshot does not share state with it.
func (b *Builder) Build(version uint64) *Snapshot {
	s := &Snapshot{
		version:       version,
		structures:    make(map[StructureID]Structure, len(b.structures)),
		epochs:        make(map[StructureID]map[uint32]Epoch, len(b.epochs)),
		contributions: make(map[StructureID][]Contribution, len(b.contributions)),
		ids:           make([]StructureID, 0, len(b.structures)),
	}
	if b.season != nil {
		season := *b.season
		s.season = &season
	}
	for id, st := range b.structures {
		s.structures[id] = st
		s.ids = append(s.ids, id)
	}
	slices.Sort(s.ids)
	for id, byIndex := range b.epochs {
		cp := make(map[uint32]Epoch, len(byIndex))
		for idx, ep := range byIndex {
			ep.Owners = slices.Clone(ep.Owners)
			cp[idx] = ep
		}
		s.epochs[id] = cp
	}
	for id, list := range b.contributions {
		s.contributions[id] = slices.Clone(list)
	}
	return s
}
