package arbitration

import (
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"debazaar/core/events"
	"debazaar/observability"
)

var (
	errNilState   = errors.New("arbitration engine: state not configured")
	errNilEntropy = errors.New("arbitration engine: entropy source not configured")

	ErrAlreadyQueued         = errors.New("arbitration: listing already queued")
	ErrCaseNotFound          = errors.New("arbitration: case not found")
	ErrUnknownRequest        = errors.New("arbitration: unknown correlation token")
	ErrRandomnessNotReceived = errors.New("arbitration: randomness not yet received")
	ErrUnauthorizedCaller    = errors.New("arbitration: unauthorized caller")
	ErrAlreadyVoted          = errors.New("arbitration: arbitrator already voted")
	ErrInvalidState          = errors.New("arbitration: case already resolved")
	ErrPoolTooSmall          = errors.New("arbitration: arbitrator pool smaller than committee")
	ErrInsufficientFee       = errors.New("arbitration: insufficient randomness fee")
)

type engineState interface {
	CasePut(*DisputedCase) error
	CaseGet(listingID [32]byte) (*DisputedCase, bool, error)
	EntropyRequestPut(token, listingID [32]byte) error
	EntropyRequestGet(token [32]byte) ([32]byte, bool, error)
	EntropyRequestDelete(token [32]byte) error
	ArbitratorPoolGet() ([][20]byte, error)
	ArbitratorPoolPut([][20]byte) error
}

// EntropySource is the external verifiable-randomness provider. Fee returns
// the provider-set request price; RequestRandomness issues a request and
// returns the correlation token its callback will carry.
type EntropySource interface {
	Fee() (*big.Int, error)
	RequestRandomness() ([32]byte, error)
}

// ListingResolver is the capability handle back into the listing registry,
// exercised exactly once per case when a tally reaches the majority.
type ListingResolver interface {
	ResolveFromArbitration(listingID [32]byte, toBuyer bool) error
}

// FeeLedger moves the randomness fee from the disputing party to the entropy
// billing account.
type FeeLedger interface {
	Transfer(token, from, to [20]byte, amount *big.Int) error
}

// Engine owns the dispute state machine and the arbitrator pool. Enqueue is
// reachable only through the handle the listing registry holds; votes come
// from committee members selected by the randomness callback.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	entropy    EntropySource
	resolver   ListingResolver
	feeLedger  FeeLedger
	metrics    *observability.EscrowMetrics
	admin      [20]byte
	provider   [20]byte
	feeToken   [20]byte
	feeAccount [20]byte
}

// NewEngine creates an arbitration engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEntropySource wires the external randomness provider.
func (e *Engine) SetEntropySource(src EntropySource) { e.entropy = src }

// SetResolver wires the listing registry capability handle.
func (e *Engine) SetResolver(r ListingResolver) { e.resolver = r }

// SetFeeLedger configures how the randomness fee is collected. feeToken is the
// asset the fee is denominated in and feeAccount the entropy billing address.
// Without a ledger no fee is moved; the quote check still applies.
func (e *Engine) SetFeeLedger(ledger FeeLedger, feeToken, feeAccount [20]byte) {
	e.feeLedger = ledger
	e.feeToken = feeToken
	e.feeAccount = feeAccount
}

// SetAdmin configures the address allowed to mutate the arbitrator pool.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// SetEntropyProvider pins the identity expected on randomness callbacks.
// When unset, any provider identity is accepted.
func (e *Engine) SetEntropyProvider(addr [20]byte) { e.provider = addr }

// SetMetrics attaches the operation counters. Passing nil disables metric
// recording.
func (e *Engine) SetMetrics(m *observability.EscrowMetrics) { e.metrics = m }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

// QuoteFee returns the current randomness request price.
func (e *Engine) QuoteFee() (*big.Int, error) {
	if e == nil || e.entropy == nil {
		return nil, errNilEntropy
	}
	return e.entropy.Fee()
}

// GetCase returns a copy of the stored case, if any. Read-only callers see an
// unreadable store the same as a missing case.
func (e *Engine) GetCase(listingID [32]byte) (*DisputedCase, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	disputed, ok, err := e.state.CaseGet(listingID)
	if err != nil || !ok {
		return nil, false
	}
	return disputed, true
}

// Arbitrators returns the current arbitrator pool.
func (e *Engine) Arbitrators() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.ArbitratorPoolGet()
}

// Enqueue opens a case for the listing and issues the randomness request.
// payer covers the provider fee; value is the amount they authorised. Two
// disputes queued in the same batch get distinct correlation tokens and
// independent cases.
func (e *Engine) Enqueue(listingID [32]byte, payer [20]byte, value *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.entropy == nil {
		return errNilEntropy
	}
	// An unreadable store must not pass for "no case yet": re-queueing an
	// existing dispute would issue a second randomness request.
	if _, exists, err := e.state.CaseGet(listingID); err != nil {
		return err
	} else if exists {
		return ErrAlreadyQueued
	}
	pool, err := e.state.ArbitratorPoolGet()
	if err != nil {
		return err
	}
	if len(pool) < CommitteeSize {
		return ErrPoolTooSmall
	}
	fee, err := e.entropy.Fee()
	if err != nil {
		return err
	}
	if value == nil || value.Cmp(fee) < 0 {
		return ErrInsufficientFee
	}
	if e.feeLedger != nil && fee.Sign() > 0 {
		if err := e.feeLedger.Transfer(e.feeToken, payer, e.feeAccount, fee); err != nil {
			return err
		}
	}
	token, err := e.entropy.RequestRandomness()
	if err != nil {
		return err
	}
	if err := e.state.EntropyRequestPut(token, listingID); err != nil {
		return err
	}
	disputed := &DisputedCase{ListingID: listingID, RequestID: token}
	if err := e.state.CasePut(disputed); err != nil {
		return err
	}
	e.emit(NewCaseQueuedEvent(disputed))
	e.emit(NewRandomnessRequestedEvent(disputed))
	return nil
}

// OnRandomness is invoked by the entropy provider. It correlates the token
// back to the pending case, records the randomness and snapshots the
// committee from the current pool. Stale or unknown tokens are rejected.
func (e *Engine) OnRandomness(token [32]byte, provider [20]byte, random [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.provider != ([20]byte{}) && provider != e.provider {
		return ErrUnauthorizedCaller
	}
	listingID, ok, err := e.state.EntropyRequestGet(token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownRequest
	}
	disputed, exists, err := e.state.CaseGet(listingID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrCaseNotFound
	}
	if disputed.Resolved || len(disputed.Committee) != 0 {
		return ErrInvalidState
	}
	if disputed.RequestID != token {
		return ErrUnknownRequest
	}
	pool, err := e.state.ArbitratorPoolGet()
	if err != nil {
		return err
	}
	if len(pool) < CommitteeSize {
		return ErrPoolTooSmall
	}
	disputed.Randomness = random
	disputed.Committee = SelectCommittee(random, pool)
	disputed.Ballots = make([]Ballot, CommitteeSize)
	if err := e.state.EntropyRequestDelete(token); err != nil {
		return err
	}
	if err := e.state.CasePut(disputed); err != nil {
		return err
	}
	e.emit(NewCommitteeSelectedEvent(disputed))
	return nil
}

// SelectCommittee derives CommitteeSize distinct members from the pool using
// a partial Fisher-Yates shuffle seeded by the provider randomness: index i
// draws from the remaining pool of size n-i, so selection is uniform without
// replacement and unpredictable until the seed is revealed. The draw order is
// part of the protocol; identical seed and pool always yield the identical
// committee.
func SelectCommittee(seed [32]byte, pool [][20]byte) [][20]byte {
	scratch := append([][20]byte(nil), pool...)
	committee := make([][20]byte, 0, CommitteeSize)
	for i := 0; i < CommitteeSize; i++ {
		var index [32]byte
		index[31] = byte(i)
		hash := ethcrypto.Keccak256(seed[:], index[:])
		remaining := big.NewInt(int64(len(scratch) - i))
		draw := new(big.Int).Mod(new(big.Int).SetBytes(hash), remaining)
		j := i + int(draw.Int64())
		scratch[i], scratch[j] = scratch[j], scratch[i]
		committee = append(committee, scratch[i])
	}
	return committee
}

// Vote records a committee member's ballot. The moment either tally reaches
// the majority the registry is called with the winning side and the case
// flips to resolved; any later vote is rejected, including from the remaining
// member. If the registry call fails the case stays unresolved so a later
// ballot can retry; the listing's own terminal check keeps the payout
// single-shot.
func (e *Engine) Vote(listingID [32]byte, voter [20]byte, forBuyer bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	disputed, exists, err := e.state.CaseGet(listingID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrCaseNotFound
	}
	if disputed.Resolved {
		return ErrInvalidState
	}
	if len(disputed.Committee) == 0 {
		return ErrRandomnessNotReceived
	}
	member := -1
	for i, addr := range disputed.Committee {
		if addr == voter {
			member = i
			break
		}
	}
	if member < 0 {
		return ErrUnauthorizedCaller
	}
	if disputed.Ballots[member] != BallotNone {
		return ErrAlreadyVoted
	}
	if forBuyer {
		disputed.Ballots[member] = BallotForBuyer
		disputed.ForBuyer++
	} else {
		disputed.Ballots[member] = BallotForSeller
		disputed.ForSeller++
	}
	majorityForBuyer := disputed.ForBuyer >= Majority
	majorityForSeller := disputed.ForSeller >= Majority
	if err := e.state.CasePut(disputed); err != nil {
		return err
	}
	e.emit(NewVoteCastEvent(disputed, voter, forBuyer))
	e.metrics.RecordVoteCast()
	if !majorityForBuyer && !majorityForSeller {
		return nil
	}
	if e.resolver == nil {
		return errors.New("arbitration engine: resolver not configured")
	}
	if err := e.resolver.ResolveFromArbitration(listingID, majorityForBuyer); err != nil {
		return err
	}
	disputed.Resolved = true
	if err := e.state.CasePut(disputed); err != nil {
		return err
	}
	e.emit(NewCaseResolvedEvent(disputed, majorityForBuyer))
	return nil
}

// AddOrRemoveArbitrators mutates the eligible pool. Adding an address already
// present or removing an absent one is a no-op. Committees already selected
// for in-flight cases are unaffected.
func (e *Engine) AddOrRemoveArbitrators(caller [20]byte, addrs [][20]byte, flags []bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.admin == ([20]byte{}) || caller != e.admin {
		return ErrUnauthorizedCaller
	}
	if len(addrs) != len(flags) {
		return errors.New("arbitration: addresses and flags length mismatch")
	}
	pool, err := e.state.ArbitratorPoolGet()
	if err != nil {
		return err
	}
	for i, addr := range addrs {
		if addr == ([20]byte{}) {
			return ErrUnauthorizedCaller
		}
		at := -1
		for j, existing := range pool {
			if existing == addr {
				at = j
				break
			}
		}
		switch {
		case flags[i] && at < 0:
			pool = append(pool, addr)
		case !flags[i] && at >= 0:
			pool = append(pool[:at], pool[at+1:]...)
		}
	}
	if err := e.state.ArbitratorPoolPut(pool); err != nil {
		return err
	}
	e.emit(NewPoolUpdatedEvent(len(pool)))
	return nil
}
