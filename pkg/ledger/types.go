package ledger

// BasisPointsDenominator is the number of basis points that make up a full share.
const BasisPointsDenominator = 10000

// Identity is an opaque player identity (usually a lowercase hex address).
// Identities are compared byte-wise, which gives the total order used for tie-breaks.
type Identity string

// GroupID identifies a player group (guild/tribe) used for group rankings.
type GroupID string

// StructureID identifies a hyperstructure.
type StructureID uint64

// Structure is the lifecycle state of a hyperstructure as reported by the sync layer.
type Structure struct {
	ID        StructureID `json:"id"`
	Completed bool        `json:"completed"`
	// CurrentEpochIndex is the index of the next epoch slot, i.e. the number of recorded
	// epochs. Epochs [0, CurrentEpochIndex) are eligible for accrual.
	CurrentEpochIndex uint32 `json:"currentEpochIndex"`
}

// Owner is one holder of a structure during an epoch.
type Owner struct {
	Identity         Identity `json:"identity"`
	ShareBasisPoints uint16   `json:"shareBasisPoints"`
}

// Share returns the owner share as a fraction of the denominator. Shares are used as
// recorded: an epoch whose shares sum above the denominator is neither clamped nor normalised.
func (o Owner) Share() float64 {
	return float64(o.ShareBasisPoints) / BasisPointsDenominator
}

// Epoch is a window of fixed ownership shares. It ends where the next epoch starts.
type Epoch struct {
	StructureID StructureID `json:"structureId"`
	Index       uint32      `json:"index"`
	Start       int64       `json:"start"`
	Owners      []Owner     `json:"owners"`
}

// Contribution is one recorded resource transfer toward a structure's funding requirement.
// Amount is scaled by the configured precision.
type Contribution struct {
	StructureID  StructureID `json:"structureId"`
	Contributor  Identity    `json:"contributor"`
	ResourceType uint32      `json:"resourceType"`
	Amount       uint64      `json:"amount"`
}

// Season bounds all accrual. When IsOver is set, open epochs stop accruing at EndedAt.
type Season struct {
	StartAt int64 `json:"startAt"`
	EndedAt int64 `json:"endedAt"`
	IsOver  bool  `json:"isOver"`
}

// CurrentOwners is the owner list of the latest recorded epoch.
type CurrentOwners struct {
	Owners     []Owner `json:"owners"`
	EpochStart int64   `json:"epochStart"`
}

// EpochLedger is the read view over ownership-share history.
type EpochLedger interface {
	CurrentOwners(id StructureID) (CurrentOwners, bool)
	Epoch(id StructureID, index uint32) (Epoch, bool)
	ShareOf(identity Identity, id StructureID) float64
}

// ContributionLedger is the read view over the append-only contribution history.
type ContributionLedger interface {
	// Contributions returns the contributions of a structure in insertion order.
	Contributions(id StructureID) []Contribution
}

// View is everything the accrual engine needs to read from one consistent snapshot.
type View interface {
	EpochLedger
	ContributionLedger
	Structure(id StructureID) (Structure, bool)
	StructureIDs() []StructureID
	CompletedStructureIDs() []StructureID
	Season() (Season, bool)
	// Version increases every time the sync layer publishes a new snapshot.
	Version() uint64
}

// GroupResolver maps an identity to its group, if any.
type GroupResolver interface {
	GroupOf(identity Identity) (GroupID, bool)
}
