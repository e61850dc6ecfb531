package escrow

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"debazaar/core/events"
	"debazaar/observability"
)

var (
	errNilState  = errors.New("escrow engine: state not configured")
	errNilLedger = errors.New("escrow engine: token ledger not configured")
)

// defaultMinExpiration is the minimum window between listing creation and its
// expiration. Listings closing sooner are rejected at creation time.
const defaultMinExpiration = int64(time.Hour / time.Second)

const (
	paramOwner        = "escrow/owner"
	paramPendingOwner = "escrow/pending-owner"
	paramFeeBps       = "escrow/fee-bps"
	whitelistPrefix   = "escrow/whitelist/"
)

type engineState interface {
	ListingPut(*Listing) error
	ListingGet(id [32]byte) (*Listing, bool, error)
	EscrowCredit(id [32]byte, amount *big.Int) error
	EscrowDebit(id [32]byte, amount *big.Int) error
	EscrowBalance(id [32]byte) (*big.Int, error)
	OracleRequestPut(requestID, listingID [32]byte) error
	OracleRequestGet(requestID [32]byte) ([32]byte, bool, error)
	OracleRequestDelete(requestID [32]byte) error
	ParamPut(key string, value []byte) error
	ParamGet(key string) ([]byte, bool, error)
}

// TokenLedger is the fungible-asset primitive the engine settles against.
// TransferFrom is allowance-gated and used when pulling a fill into custody;
// Transfer moves funds out of the custody vault on resolution.
type TokenLedger interface {
	BalanceOf(token, addr [20]byte) (*big.Int, error)
	Transfer(token, from, to [20]byte, amount *big.Int) error
	TransferFrom(token, spender, from, to [20]byte, amount *big.Int) error
}

// DisputeQueue is the capability handle into the arbitration subsystem. The
// engine forwards the randomness fee with every enqueue; only the quoted fee
// is ever charged, any excess the caller authorised stays untouched.
type DisputeQueue interface {
	QuoteFee() (*big.Int, error)
	Enqueue(listingID [32]byte, payer [20]byte, value *big.Int) error
}

// OracleClient dispatches asynchronous verification requests. The returned
// correlation token is matched against the fulfillment callback.
type OracleClient interface {
	SendRequest(source string, encryptedSecretsURLs []byte, args []string, bytesArgs [][]byte, subscriptionID uint64, gasLimit uint32, donID [32]byte) ([32]byte, error)
}

// CallReader performs the read-only invocation backing the call-verification
// strategy.
type CallReader interface {
	StaticCall(destination [20]byte, data []byte) ([]byte, error)
}

// Engine owns the listing registry and its state machine. All fund movement
// goes through the custody vault; all four resolution paths converge on
// resolveInternal which performs exactly one terminal transition per listing.
type Engine struct {
	state             engineState
	ledger            TokenLedger
	emitter           events.Emitter
	disputes          DisputeQueue
	oracle            OracleClient
	reader            CallReader
	metrics           *observability.EscrowMetrics
	vault             [20]byte
	feeCollector      [20]byte
	feeBps            uint32
	minExpiration     int64
	oracleFavorsBuyer bool
	nowFn             func() int64
}

// NewEngine creates a listing engine with a no-op emitter and the default
// minimum expiration window.
func NewEngine() *Engine {
	return &Engine{
		emitter:       events.NoopEmitter{},
		minExpiration: defaultMinExpiration,
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the token ledger used for custody transfers.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetVault configures the custody account holding filled listings.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetFeeCollector configures the address receiving protocol fees.
func (e *Engine) SetFeeCollector(addr [20]byte) { e.feeCollector = addr }

// SetDisputeQueue wires the arbitration subsystem handle.
func (e *Engine) SetDisputeQueue(q DisputeQueue) { e.disputes = q }

// SetOracleClient wires the oracle transport for api-approval listings.
func (e *Engine) SetOracleClient(c OracleClient) { e.oracle = c }

// SetCallReader wires the read-only call transport for onchain-approval
// listings.
func (e *Engine) SetCallReader(r CallReader) { e.reader = r }

// SetMetrics attaches the operation counters. Passing nil disables metric
// recording.
func (e *Engine) SetMetrics(m *observability.EscrowMetrics) { e.metrics = m }

// SetMinExpiration overrides the minimum creation-to-expiration window in
// seconds. Values below one are reset to the default.
func (e *Engine) SetMinExpiration(seconds int64) {
	if seconds < 1 {
		e.minExpiration = defaultMinExpiration
		return
	}
	e.minExpiration = seconds
}

// SetOracleResultFavorsBuyer fixes the mapping from a non-zero oracle result
// to a resolution side. The deployed convention releases to the seller.
func (e *Engine) SetOracleResultFavorsBuyer(v bool) { e.oracleFavorsBuyer = v }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

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

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadListing(id [32]byte) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listing, ok, err := e.state.ListingGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrListingNotFound
	}
	return listing, nil
}

func (e *Engine) storeListing(l *Listing) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.ListingPut(l)
}

// GetListing returns a copy of the stored listing, if any. Read-only callers
// see an unreadable store the same as a missing listing.
func (e *Engine) GetListing(id [32]byte) (*Listing, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	listing, ok, err := e.state.ListingGet(id)
	if err != nil || !ok {
		return nil, false
	}
	return listing, true
}

// CreateListing registers a new open listing owned by the seller. The
// identifier must be unique for the lifetime of the engine.
func (e *Engine) CreateListing(id [32]byte, seller, token [20]byte, amount *big.Int, expiration int64, escrowType EscrowType) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if seller == ([20]byte{}) || token == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if !escrowType.Valid() {
		return nil, ErrInvalidEscrowType
	}
	now := e.now()
	if expiration < now+e.minExpiration {
		return nil, ErrInvalidDeadline
	}
	if !e.tokenWhitelisted(token) {
		return nil, ErrTokenNotWhitelisted
	}
	// A read failure here must abort the create: treating it as "absent"
	// would let a new listing overwrite an existing identifier.
	if _, exists, err := e.state.ListingGet(id); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrListingExists
	}
	listing := &Listing{
		ID:         id,
		Seller:     seller,
		Token:      token,
		Amount:     cloneBigInt(amount),
		Expiration: expiration,
		CreatedAt:  now,
		State:      ListingOpen,
		Type:       escrowType,
	}
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	e.emit(NewListingCreatedEvent(listing))
	e.metrics.RecordListingCreated(escrowType.String())
	return listing.Clone(), nil
}

// FillListing moves the gross amount from the buyer into custody and binds the
// strategy payload. extraData must be empty for disputable listings and an
// ABI-encoded payload matching the listing's declared strategy otherwise.
func (e *Engine) FillListing(id [32]byte, buyer [20]byte, deadline int64, extraData []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if listing.State != ListingOpen {
		return ErrInvalidState
	}
	now := e.now()
	if now >= listing.Expiration {
		return ErrListingExpired
	}
	if deadline <= now {
		return ErrInvalidDeadline
	}
	if buyer == ([20]byte{}) {
		return ErrZeroAddress
	}
	switch listing.Type {
	case TypeDisputable:
		if len(extraData) != 0 {
			return ErrInvalidExtraData
		}
	case TypeOnchainApproval:
		decoded, err := decodeOnchainApproval(extraData)
		if err != nil {
			return err
		}
		listing.Onchain = decoded
	case TypeAPIApproval:
		decoded, err := decodeAPIApproval(extraData)
		if err != nil {
			return err
		}
		listing.API = decoded
	default:
		return ErrInvalidEscrowType
	}
	if err := e.deposit(listing, buyer); err != nil {
		return err
	}
	listing.Buyer = buyer
	listing.Deadline = deadline
	listing.State = ListingFilled
	if err := e.storeListing(listing); err != nil {
		return err
	}
	e.emit(NewListingFilledEvent(listing))
	return nil
}

// CancelBySeller withdraws an open listing. Only the seller may cancel and
// only while no buyer has filled it.
func (e *Engine) CancelBySeller(id [32]byte, caller [20]byte) error {
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if listing.State != ListingOpen {
		return ErrInvalidState
	}
	if caller != listing.Seller {
		return ErrNotSeller
	}
	listing.State = ListingCanceled
	if err := e.storeListing(listing); err != nil {
		return err
	}
	e.emit(NewListingCanceledEvent(listing, caller))
	return nil
}

// CancelByBuyer refunds a filled listing whose delivery deadline has elapsed.
// If the listing's original expiration is still in the future the listing is
// reset to open for re-sale; otherwise it is canceled terminally. The full
// gross amount returns to the buyer with no fee deduction.
func (e *Engine) CancelByBuyer(id [32]byte, caller [20]byte) error {
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if listing.State != ListingFilled {
		return ErrInvalidState
	}
	if caller != listing.Buyer {
		return ErrNotBuyer
	}
	now := e.now()
	if now <= listing.Deadline {
		return ErrDeadlineNotPassed
	}
	buyer := listing.Buyer
	if now < listing.Expiration {
		listing.State = ListingOpen
		listing.Buyer = [20]byte{}
		listing.Deadline = 0
		listing.Onchain = nil
		listing.API = nil
		if err := e.storeListing(listing); err != nil {
			return err
		}
		if err := e.withdrawAll(listing, buyer); err != nil {
			return err
		}
		e.emit(NewListingResetEvent(listing))
		return nil
	}
	listing.State = ListingCanceled
	if err := e.storeListing(listing); err != nil {
		return err
	}
	if err := e.withdrawAll(listing, buyer); err != nil {
		return err
	}
	e.emit(NewListingCanceledEvent(listing, caller))
	return nil
}

// DeliverDisputable marks a disputable listing as delivered by the seller,
// opening the buyer acceptance / dispute window.
func (e *Engine) DeliverDisputable(id [32]byte, caller [20]byte) error {
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if listing.Type != TypeDisputable {
		return ErrInvalidEscrowType
	}
	if listing.State != ListingFilled {
		return ErrInvalidState
	}
	if caller != listing.Seller {
		return ErrNotSeller
	}
	listing.State = ListingDelivered
	if err := e.storeListing(listing); err != nil {
		return err
	}
	e.emit(NewListingDeliveredEvent(listing))
	return nil
}

// DisputeListing escalates a delivered disputable listing into arbitration.
// value is the randomness fee the caller authorises; only the fee quoted by
// the dispute queue is charged, an underpayment fails with InsufficientFee.
func (e *Engine) DisputeListing(id [32]byte, caller [20]byte, value *big.Int) error {
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if listing.Type != TypeDisputable {
		return ErrInvalidEscrowType
	}
	if listing.State != ListingDelivered {
		return ErrInvalidState
	}
	if caller != listing.Buyer && caller != listing.Seller {
		return ErrNotBuyerOrSeller
	}
	if e.disputes == nil {
		return ErrDisputesNotConfigured
	}
	fee, err := e.disputes.QuoteFee()
	if err != nil {
		return err
	}
	if value == nil || value.Cmp(fee) < 0 {
		return fmt.Errorf("%w: need %s", ErrInsufficientFee, fee)
	}
	if err := e.disputes.Enqueue(id, caller, value); err != nil {
		return err
	}
	listing.State = ListingDisputed
	if err := e.storeListing(listing); err != nil {
		return err
	}
	e.emit(NewListingDisputedEvent(listing, caller))
	e.metrics.RecordDisputeOpened()
	return nil
}

// DeliverOnchainApproval verifies a call-verification listing. Anyone may
// trigger it once the underlying condition holds: the adapter performs the
// stored read-only call and releases to the seller only when the returned
// bytes hash-match the expected result. Mismatch and call failure leave the
// listing untouched so a later retry can succeed.
func (e *Engine) DeliverOnchainApproval(id [32]byte) error {
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if listing.Type != TypeOnchainApproval {
		return ErrInvalidEscrowType
	}
	if listing.State != ListingFilled || listing.Onchain == nil {
		return ErrInvalidState
	}
	if e.reader == nil {
		return fmt.Errorf("%w: call reader not configured", ErrApprovalCallFailed)
	}
	result, err := e.reader.StaticCall(listing.Onchain.Destination, listing.Onchain.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApprovalCallFailed, err)
	}
	if ethcrypto.Keccak256Hash(result) != ethcrypto.Keccak256Hash(listing.Onchain.ExpectedResult) {
		return ErrApprovalMismatch
	}
	return e.resolveInternal(listing, false)
}

// DeliverAPIApproval dispatches the oracle request for an api-approval
// listing. Anyone may trigger it; the listing stays filled until the
// fulfillment callback arrives.
func (e *Engine) DeliverAPIApproval(id [32]byte, subscriptionID uint64, gasLimit uint32, donID [32]byte) error {
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if listing.Type != TypeAPIApproval {
		return ErrInvalidEscrowType
	}
	if listing.State != ListingFilled || listing.API == nil {
		return ErrInvalidState
	}
	if e.oracle == nil {
		return errors.New("escrow: oracle client not configured")
	}
	requestID, err := e.oracle.SendRequest(
		listing.API.Source,
		listing.API.EncryptedSecretsURLs,
		listing.API.Args,
		listing.API.BytesArgs,
		subscriptionID,
		gasLimit,
		donID,
	)
	if err != nil {
		return err
	}
	listing.API.RequestID = requestID
	if err := e.state.OracleRequestPut(requestID, id); err != nil {
		return err
	}
	if err := e.storeListing(listing); err != nil {
		return err
	}
	e.emit(NewAPIRequestedEvent(listing, requestID))
	return nil
}

// HandleOracleFulfillment routes an oracle callback to its listing. Tokens
// that do not match the last outstanding request for the listing are
// rejected. An error payload or a zero result leaves the listing filled; the
// buyer-side deadline cancellation remains the fallback.
func (e *Engine) HandleOracleFulfillment(requestID [32]byte, response, errPayload []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	listingID, ok, err := e.state.OracleRequestGet(requestID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnexpectedRequestID
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return err
	}
	if listing.API == nil || listing.API.RequestID != requestID {
		return ErrUnexpectedRequestID
	}
	if listing.State != ListingFilled {
		return ErrInvalidState
	}
	if err := e.state.OracleRequestDelete(requestID); err != nil {
		return err
	}
	if len(errPayload) > 0 {
		e.emit(NewAPIErrorEvent(listing, errPayload))
		return nil
	}
	if len(response) == 0 {
		e.emit(NewAPIEmptyResponseEvent(listing))
		return nil
	}
	if new(big.Int).SetBytes(response).Sign() == 0 {
		e.emit(NewAPIReturnedFalseEvent(listing))
		return nil
	}
	return e.resolveInternal(listing, e.oracleFavorsBuyer)
}

// ResolveListing is the public convergence point. The only combination a
// direct caller may exercise is the buyer accepting a delivered disputable
// listing, which always releases to the seller. Disputed listings resolve
// exclusively through the arbitration callback; the delegated strategies
// resolve through their adapters.
func (e *Engine) ResolveListing(id [32]byte, caller [20]byte, toBuyer bool) error {
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	switch {
	case listing.State == ListingDelivered && listing.Type == TypeDisputable:
		if caller != listing.Buyer {
			return ErrNotBuyer
		}
		if toBuyer {
			return ErrUnauthorized
		}
		return e.resolveInternal(listing, false)
	case listing.State == ListingDisputed:
		return ErrUnauthorized
	default:
		return ErrInvalidState
	}
}

// ResolveFromArbitration is the capability entry the dispute subsystem holds.
// It accepts only listings currently under dispute.
func (e *Engine) ResolveFromArbitration(id [32]byte, toBuyer bool) error {
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if listing.State != ListingDisputed {
		return ErrInvalidState
	}
	return e.resolveInternal(listing, toBuyer)
}

// resolveInternal performs the single terminal transition. The state flip is
// persisted before any transfer so a reentrant call observes the terminal
// state and fails with InvalidState.
func (e *Engine) resolveInternal(listing *Listing, toBuyer bool) error {
	if listing.State.Terminal() {
		return ErrInvalidState
	}
	winner := listing.Seller
	outcome := "released"
	if toBuyer {
		winner = listing.Buyer
		outcome = "refunded"
		listing.State = ListingRefunded
	} else {
		listing.State = ListingReleased
	}
	if err := e.storeListing(listing); err != nil {
		return err
	}
	if err := e.payout(listing, winner); err != nil {
		return err
	}
	e.emit(NewListingResolvedEvent(listing, winner, outcome))
	e.metrics.RecordResolution(outcome)
	return nil
}

// --- administration ---

// Bootstrap writes the engine owner on first start. Subsequent calls with a
// different owner are rejected; the two-step transfer is the only way to move
// ownership afterwards.
func (e *Engine) Bootstrap(owner [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if owner == ([20]byte{}) {
		return ErrZeroAddress
	}
	current, ok, err := e.ownerFromState()
	if err != nil {
		return err
	}
	if ok {
		if current != owner {
			return ErrUnauthorized
		}
		return nil
	}
	return e.state.ParamPut(paramOwner, owner[:])
}

// Owner returns the configured engine owner.
func (e *Engine) Owner() ([20]byte, error) {
	owner, _, err := e.ownerFromState()
	return owner, err
}

func (e *Engine) ownerFromState() ([20]byte, bool, error) {
	raw, ok, err := e.state.ParamGet(paramOwner)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	var owner [20]byte
	copy(owner[:], raw)
	return owner, true, nil
}

func (e *Engine) requireOwner(caller [20]byte) error {
	owner, ok, err := e.ownerFromState()
	if err != nil {
		return err
	}
	if !ok || caller != owner {
		return ErrUnauthorized
	}
	return nil
}

// TransferOwnership starts the two-step ownership handover.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if newOwner == ([20]byte{}) {
		return ErrZeroAddress
	}
	return e.state.ParamPut(paramPendingOwner, newOwner[:])
}

// AcceptOwnership completes a pending ownership handover.
func (e *Engine) AcceptOwnership(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	raw, ok, err := e.state.ParamGet(paramPendingOwner)
	if err != nil {
		return err
	}
	var pending [20]byte
	copy(pending[:], raw)
	if !ok || caller != pending {
		return ErrUnauthorized
	}
	if err := e.state.ParamPut(paramOwner, pending[:]); err != nil {
		return err
	}
	return e.state.ParamPut(paramPendingOwner, nil)
}

// SetFeeBps sets the protocol fee in basis points of the gross amount.
func (e *Engine) SetFeeBps(caller [20]byte, bps uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if bps > 10_000 {
		return ErrInvalidFee
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], bps)
	if err := e.state.ParamPut(paramFeeBps, buf[:]); err != nil {
		return err
	}
	e.feeBps = bps
	return nil
}

// FeeBps returns the configured protocol fee in basis points.
func (e *Engine) FeeBps() uint32 {
	if e == nil || e.state == nil {
		return 0
	}
	raw, ok, err := e.state.ParamGet(paramFeeBps)
	if err != nil || !ok || len(raw) != 4 {
		return e.feeBps
	}
	return binary.BigEndian.Uint32(raw)
}

// SetWhitelistedTokens toggles which assets listings may be denominated in.
func (e *Engine) SetWhitelistedTokens(caller [20]byte, tokens [][20]byte, flags []bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if len(tokens) != len(flags) {
		return fmt.Errorf("escrow: tokens and flags length mismatch")
	}
	for i, token := range tokens {
		if token == ([20]byte{}) {
			return ErrZeroAddress
		}
		value := []byte(nil)
		if flags[i] {
			value = []byte{1}
		}
		if err := e.state.ParamPut(whitelistKey(token), value); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) tokenWhitelisted(token [20]byte) bool {
	raw, ok, err := e.state.ParamGet(whitelistKey(token))
	if err != nil || !ok {
		return false
	}
	return len(raw) == 1 && raw[0] == 1
}

// TokenWhitelisted reports whether listings may use the asset.
func (e *Engine) TokenWhitelisted(token [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	return e.tokenWhitelisted(token)
}

func whitelistKey(token [20]byte) string {
	return whitelistPrefix + hex.EncodeToString(token[:])
}
