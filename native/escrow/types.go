package escrow

import (
	"fmt"
	"math/big"
)

// ListingState represents the lifecycle states of a listing. The numeric
// values are part of the persisted layout and must not be reordered.
type ListingState uint8

const (
	ListingOpen ListingState = iota
	ListingFilled
	ListingDelivered
	ListingReleased
	ListingRefunded
	ListingDisputed
	ListingCanceled
)

// Terminal reports whether the state admits no further transitions.
func (s ListingState) Terminal() bool {
	switch s {
	case ListingReleased, ListingRefunded, ListingCanceled:
		return true
	default:
		return false
	}
}

// Valid reports whether the state value is within the supported range.
func (s ListingState) Valid() bool {
	return s <= ListingCanceled
}

func (s ListingState) String() string {
	switch s {
	case ListingOpen:
		return "open"
	case ListingFilled:
		return "filled"
	case ListingDelivered:
		return "delivered"
	case ListingReleased:
		return "released"
	case ListingRefunded:
		return "refunded"
	case ListingDisputed:
		return "disputed"
	case ListingCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// EscrowType selects the delivery-verification strategy a listing is bound to
// at creation time.
type EscrowType uint8

const (
	TypeAPIApproval EscrowType = iota
	TypeOnchainApproval
	TypeDisputable
)

// Valid reports whether the escrow type value is supported.
func (t EscrowType) Valid() bool {
	return t <= TypeDisputable
}

func (t EscrowType) String() string {
	switch t {
	case TypeAPIApproval:
		return "api_approval"
	case TypeOnchainApproval:
		return "onchain_approval"
	case TypeDisputable:
		return "disputable"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// OnchainApprovalData carries the parameters for the call-and-compare
// verification strategy: a read-only call of Data against Destination whose
// returned bytes must hash-match ExpectedResult.
type OnchainApprovalData struct {
	Destination    [20]byte
	Data           []byte
	ExpectedResult []byte
}

// Clone returns a deep copy of the approval data.
func (d *OnchainApprovalData) Clone() *OnchainApprovalData {
	if d == nil {
		return nil
	}
	return &OnchainApprovalData{
		Destination:    d.Destination,
		Data:           append([]byte(nil), d.Data...),
		ExpectedResult: append([]byte(nil), d.ExpectedResult...),
	}
}

// APIApprovalData carries the parameters for the oracle-backed verification
// strategy. RequestID is zero until a request has actually been dispatched and
// always refers to the last outstanding request for the listing.
type APIApprovalData struct {
	Source               string
	EncryptedSecretsURLs []byte
	Args                 []string
	BytesArgs            [][]byte
	RequestID            [32]byte
}

// Clone returns a deep copy of the approval data.
func (d *APIApprovalData) Clone() *APIApprovalData {
	if d == nil {
		return nil
	}
	clone := &APIApprovalData{
		Source:               d.Source,
		EncryptedSecretsURLs: append([]byte(nil), d.EncryptedSecretsURLs...),
		Args:                 append([]string(nil), d.Args...),
		RequestID:            d.RequestID,
	}
	for _, arg := range d.BytesArgs {
		clone.BytesArgs = append(clone.BytesArgs, append([]byte(nil), arg...))
	}
	return clone
}

// Listing captures a single seller-initiated offer together with its runtime
// state. Buyer, Deadline and the strategy payload are zero until the listing
// is filled. The identifier is caller-supplied and unique for the lifetime of
// the engine.
type Listing struct {
	ID         [32]byte
	Seller     [20]byte
	Buyer      [20]byte
	Token      [20]byte
	Amount     *big.Int
	Expiration int64
	Deadline   int64
	CreatedAt  int64
	State      ListingState
	Type       EscrowType
	Onchain    *OnchainApprovalData
	API        *APIApprovalData
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Amount != nil {
		clone.Amount = new(big.Int).Set(l.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	clone.Onchain = l.Onchain.Clone()
	clone.API = l.API.Clone()
	return &clone
}

// SanitizeListing validates the supplied listing and returns a cloned instance
// with a non-nil amount. The strategy payload, when present, must match the
// declared escrow type. The function does not mutate the original value.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("escrow: nil listing")
	}
	clone := l.Clone()
	if clone.Amount == nil {
		clone.Amount = big.NewInt(0)
	}
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("escrow: amount must be non-negative")
	}
	if !clone.State.Valid() {
		return nil, fmt.Errorf("escrow: invalid state %d", clone.State)
	}
	if !clone.Type.Valid() {
		return nil, fmt.Errorf("escrow: invalid escrow type %d", clone.Type)
	}
	if clone.Onchain != nil && clone.Type != TypeOnchainApproval {
		return nil, fmt.Errorf("escrow: onchain payload on %s listing", clone.Type)
	}
	if clone.API != nil && clone.Type != TypeAPIApproval {
		return nil, fmt.Errorf("escrow: api payload on %s listing", clone.Type)
	}
	return clone, nil
}
