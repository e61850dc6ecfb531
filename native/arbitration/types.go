package arbitration

import "fmt"

// CommitteeSize is the number of arbitrators drawn for every disputed case.
// A strict majority of the committee resolves the case.
const (
	CommitteeSize = 3
	Majority      = 2
)

// Ballot records a single committee member's position on a case.
type Ballot uint8

const (
	BallotNone Ballot = iota
	BallotForBuyer
	BallotForSeller
)

// Valid reports whether the ballot value is supported.
func (b Ballot) Valid() bool {
	return b <= BallotForSeller
}

func (b Ballot) String() string {
	switch b {
	case BallotNone:
		return "none"
	case BallotForBuyer:
		return "for_buyer"
	case BallotForSeller:
		return "for_seller"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(b))
	}
}

// DisputedCase tracks one listing under arbitration, keyed by the listing
// identifier. Committee and Ballots stay empty until the randomness callback
// arrives; they are parallel slices of CommitteeSize entries afterwards. The
// committee is a snapshot: later arbitrator pool mutations never touch it.
type DisputedCase struct {
	ListingID  [32]byte
	RequestID  [32]byte
	Randomness [32]byte
	Committee  [][20]byte
	Ballots    []Ballot
	ForBuyer   uint8
	ForSeller  uint8
	Resolved   bool
}

// Clone returns a deep copy of the case so callers can safely mutate the copy
// without affecting the stored instance.
func (c *DisputedCase) Clone() *DisputedCase {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Committee = append([][20]byte(nil), c.Committee...)
	clone.Ballots = append([]Ballot(nil), c.Ballots...)
	return &clone
}

// SanitizeCase validates the supplied case and returns a cloned instance.
func SanitizeCase(c *DisputedCase) (*DisputedCase, error) {
	if c == nil {
		return nil, fmt.Errorf("arbitration: nil case")
	}
	clone := c.Clone()
	if len(clone.Committee) != 0 && len(clone.Committee) != CommitteeSize {
		return nil, fmt.Errorf("arbitration: committee size %d", len(clone.Committee))
	}
	if len(clone.Ballots) != len(clone.Committee) {
		return nil, fmt.Errorf("arbitration: ballots out of step with committee")
	}
	for _, ballot := range clone.Ballots {
		if !ballot.Valid() {
			return nil, fmt.Errorf("arbitration: invalid ballot %d", ballot)
		}
	}
	if clone.ForBuyer > CommitteeSize || clone.ForSeller > CommitteeSize {
		return nil, fmt.Errorf("arbitration: tally out of range")
	}
	return clone, nil
}
