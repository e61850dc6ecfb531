package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"debazaar/native/arbitration"
	"debazaar/native/escrow"
	"debazaar/storage"
)

var (
	listingPrefix        = []byte("escrow/listing/")
	custodyPrefix        = []byte("escrow/vault/")
	oracleRequestPrefix  = []byte("escrow/oracle-request/")
	paramPrefix          = []byte("params/")
	casePrefix           = []byte("arbitration/case/")
	entropyRequestPrefix = []byte("arbitration/entropy-request/")
	arbitratorPoolKey    = ethcrypto.Keccak256([]byte("arbitration/pool"))
)

func prefixedKey(prefix, suffix []byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(suffix))
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return ethcrypto.Keccak256(buf)
}

// Store is the typed state layer shared by the escrow and arbitration
// engines and the token ledger. Every entity is RLP-encoded under a
// keccak-hashed prefixed key on the underlying key-value database.
type Store struct {
	db storage.Database
}

// NewStore creates a store on top of the supplied database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) put(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

// --- generic key-value access (token ledger and params) ---

// KVPut stores raw bytes under a keccak-hashed key.
func (s *Store) KVPut(key, value []byte) error {
	return s.db.Put(ethcrypto.Keccak256(key), value)
}

// KVGet loads raw bytes stored via KVPut.
func (s *Store) KVGet(key []byte) ([]byte, bool, error) {
	raw, err := s.db.Get(ethcrypto.Keccak256(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// KVDelete removes a key stored via KVPut.
func (s *Store) KVDelete(key []byte) error {
	return s.db.Delete(ethcrypto.Keccak256(key))
}

// ParamPut stores an engine parameter. A nil or empty value clears it.
func (s *Store) ParamPut(key string, value []byte) error {
	storageKey := prefixedKey(paramPrefix, []byte(key))
	if len(value) == 0 {
		return s.db.Delete(storageKey)
	}
	return s.db.Put(storageKey, value)
}

// ParamGet loads an engine parameter.
func (s *Store) ParamGet(key string) ([]byte, bool, error) {
	raw, err := s.db.Get(prefixedKey(paramPrefix, []byte(key)))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// --- listings ---

type storedListing struct {
	ID                 [32]byte
	Seller             [20]byte
	Buyer              [20]byte
	Token              [20]byte
	Amount             *big.Int
	Expiration         uint64
	Deadline           uint64
	CreatedAt          uint64
	State              uint8
	Type               uint8
	HasOnchain         bool
	OnchainDestination [20]byte
	OnchainData        []byte
	OnchainExpected    []byte
	HasAPI             bool
	APISource          string
	APISecrets         []byte
	APIArgs            []string
	APIBytesArgs       [][]byte
	APIRequestID       [32]byte
}

// ListingPut sanitizes and persists the listing.
func (s *Store) ListingPut(l *escrow.Listing) error {
	sanitized, err := escrow.SanitizeListing(l)
	if err != nil {
		return err
	}
	stored := &storedListing{
		ID:         sanitized.ID,
		Seller:     sanitized.Seller,
		Buyer:      sanitized.Buyer,
		Token:      sanitized.Token,
		Amount:     sanitized.Amount,
		Expiration: uint64(sanitized.Expiration),
		Deadline:   uint64(sanitized.Deadline),
		CreatedAt:  uint64(sanitized.CreatedAt),
		State:      uint8(sanitized.State),
		Type:       uint8(sanitized.Type),
	}
	if sanitized.Onchain != nil {
		stored.HasOnchain = true
		stored.OnchainDestination = sanitized.Onchain.Destination
		stored.OnchainData = sanitized.Onchain.Data
		stored.OnchainExpected = sanitized.Onchain.ExpectedResult
	}
	if sanitized.API != nil {
		stored.HasAPI = true
		stored.APISource = sanitized.API.Source
		stored.APISecrets = sanitized.API.EncryptedSecretsURLs
		stored.APIArgs = sanitized.API.Args
		stored.APIBytesArgs = sanitized.API.BytesArgs
		stored.APIRequestID = sanitized.API.RequestID
	}
	return s.put(prefixedKey(listingPrefix, sanitized.ID[:]), stored)
}

// ListingGet loads a listing by identifier. A false without error means the
// listing does not exist; a backend failure is reported separately so callers
// never mistake an unreadable store for an absent listing.
func (s *Store) ListingGet(id [32]byte) (*escrow.Listing, bool, error) {
	stored := new(storedListing)
	ok, err := s.get(prefixedKey(listingPrefix, id[:]), stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	listing := &escrow.Listing{
		ID:         stored.ID,
		Seller:     stored.Seller,
		Buyer:      stored.Buyer,
		Token:      stored.Token,
		Amount:     stored.Amount,
		Expiration: int64(stored.Expiration),
		Deadline:   int64(stored.Deadline),
		CreatedAt:  int64(stored.CreatedAt),
		State:      escrow.ListingState(stored.State),
		Type:       escrow.EscrowType(stored.Type),
	}
	if stored.HasOnchain {
		listing.Onchain = &escrow.OnchainApprovalData{
			Destination:    stored.OnchainDestination,
			Data:           stored.OnchainData,
			ExpectedResult: stored.OnchainExpected,
		}
	}
	if stored.HasAPI {
		listing.API = &escrow.APIApprovalData{
			Source:               stored.APISource,
			EncryptedSecretsURLs: stored.APISecrets,
			Args:                 stored.APIArgs,
			BytesArgs:            stored.APIBytesArgs,
			RequestID:            stored.APIRequestID,
		}
	}
	return listing, true, nil
}

// --- custody balances ---

// EscrowCredit adds to the per-listing custody balance.
func (s *Store) EscrowCredit(id [32]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: invalid credit amount")
	}
	balance, err := s.EscrowBalance(id)
	if err != nil {
		return err
	}
	return s.put(prefixedKey(custodyPrefix, id[:]), new(big.Int).Add(balance, amount))
}

// EscrowDebit removes from the per-listing custody balance. Overdrawing is an
// invariant violation, not a caller error.
func (s *Store) EscrowDebit(id [32]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: invalid debit amount")
	}
	balance, err := s.EscrowBalance(id)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("state: custody balance underflow for %x", id)
	}
	return s.put(prefixedKey(custodyPrefix, id[:]), new(big.Int).Sub(balance, amount))
}

// EscrowBalance returns the custody balance held for the listing.
func (s *Store) EscrowBalance(id [32]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := s.get(prefixedKey(custodyPrefix, id[:]), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// --- correlation token tables ---

func (s *Store) requestPut(prefix []byte, token, listingID [32]byte) error {
	return s.db.Put(prefixedKey(prefix, token[:]), listingID[:])
}

func (s *Store) requestGet(prefix []byte, token [32]byte) ([32]byte, bool, error) {
	var listingID [32]byte
	raw, err := s.db.Get(prefixedKey(prefix, token[:]))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return listingID, false, nil
	}
	if err != nil {
		return listingID, false, err
	}
	if len(raw) != len(listingID) {
		return listingID, false, fmt.Errorf("state: malformed request mapping")
	}
	copy(listingID[:], raw)
	return listingID, true, nil
}

// OracleRequestPut records the correlation token of an outstanding oracle
// request.
func (s *Store) OracleRequestPut(requestID, listingID [32]byte) error {
	return s.requestPut(oracleRequestPrefix, requestID, listingID)
}

// OracleRequestGet resolves an oracle correlation token to its listing.
func (s *Store) OracleRequestGet(requestID [32]byte) ([32]byte, bool, error) {
	return s.requestGet(oracleRequestPrefix, requestID)
}

// OracleRequestDelete drops a consumed oracle request mapping.
func (s *Store) OracleRequestDelete(requestID [32]byte) error {
	return s.db.Delete(prefixedKey(oracleRequestPrefix, requestID[:]))
}

// EntropyRequestPut records the correlation token of a pending randomness
// request.
func (s *Store) EntropyRequestPut(token, listingID [32]byte) error {
	return s.requestPut(entropyRequestPrefix, token, listingID)
}

// EntropyRequestGet resolves an entropy correlation token to its listing.
func (s *Store) EntropyRequestGet(token [32]byte) ([32]byte, bool, error) {
	return s.requestGet(entropyRequestPrefix, token)
}

// EntropyRequestDelete drops a consumed entropy request mapping.
func (s *Store) EntropyRequestDelete(token [32]byte) error {
	return s.db.Delete(prefixedKey(entropyRequestPrefix, token[:]))
}

// --- disputed cases ---

type storedCase struct {
	ListingID  [32]byte
	RequestID  [32]byte
	Randomness [32]byte
	Committee  [][20]byte
	Ballots    []uint8
	ForBuyer   uint8
	ForSeller  uint8
	Resolved   bool
}

// CasePut sanitizes and persists the disputed case.
func (s *Store) CasePut(c *arbitration.DisputedCase) error {
	sanitized, err := arbitration.SanitizeCase(c)
	if err != nil {
		return err
	}
	stored := &storedCase{
		ListingID:  sanitized.ListingID,
		RequestID:  sanitized.RequestID,
		Randomness: sanitized.Randomness,
		Committee:  sanitized.Committee,
		ForBuyer:   sanitized.ForBuyer,
		ForSeller:  sanitized.ForSeller,
		Resolved:   sanitized.Resolved,
	}
	for _, ballot := range sanitized.Ballots {
		stored.Ballots = append(stored.Ballots, uint8(ballot))
	}
	return s.put(prefixedKey(casePrefix, sanitized.ListingID[:]), stored)
}

// CaseGet loads a disputed case by listing identifier.
func (s *Store) CaseGet(listingID [32]byte) (*arbitration.DisputedCase, bool, error) {
	stored := new(storedCase)
	ok, err := s.get(prefixedKey(casePrefix, listingID[:]), stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	disputed := &arbitration.DisputedCase{
		ListingID:  stored.ListingID,
		RequestID:  stored.RequestID,
		Randomness: stored.Randomness,
		Committee:  stored.Committee,
		ForBuyer:   stored.ForBuyer,
		ForSeller:  stored.ForSeller,
		Resolved:   stored.Resolved,
	}
	for _, ballot := range stored.Ballots {
		disputed.Ballots = append(disputed.Ballots, arbitration.Ballot(ballot))
	}
	return disputed, true, nil
}

// --- arbitrator pool ---

// ArbitratorPoolPut replaces the eligible arbitrator set.
func (s *Store) ArbitratorPoolPut(pool [][20]byte) error {
	return s.put(arbitratorPoolKey, pool)
}

// ArbitratorPoolGet returns the eligible arbitrator set.
func (s *Store) ArbitratorPoolGet() ([][20]byte, error) {
	var pool [][20]byte
	if _, err := s.get(arbitratorPoolKey, &pool); err != nil {
		return nil, err
	}
	return pool, nil
}
