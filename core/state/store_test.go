package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"debazaar/native/arbitration"
	"debazaar/native/escrow"
	"debazaar/native/token"
	"debazaar/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemDB())
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func testID(fill byte) [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = fill
	}
	return id
}

func TestListingRoundTrip(t *testing.T) {
	store := newTestStore(t)
	listing := &escrow.Listing{
		ID:         testID(0x01),
		Seller:     testAddress(0x02),
		Buyer:      testAddress(0x03),
		Token:      testAddress(0x04),
		Amount:     big.NewInt(12345),
		Expiration: 1_700_010_000,
		Deadline:   1_700_005_000,
		CreatedAt:  1_700_000_000,
		State:      escrow.ListingFilled,
		Type:       escrow.TypeAPIApproval,
		API: &escrow.APIApprovalData{
			Source:               "return Functions.encodeUint256(1);",
			EncryptedSecretsURLs: []byte{0xAA},
			Args:                 []string{"order-1"},
			BytesArgs:            [][]byte{{0x01, 0x02}},
			RequestID:            testID(0x05),
		},
	}

	require.NoError(t, store.ListingPut(listing))
	loaded, ok, err := store.ListingGet(listing.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, listing.Seller, loaded.Seller)
	require.Equal(t, listing.Buyer, loaded.Buyer)
	require.Zero(t, listing.Amount.Cmp(loaded.Amount))
	require.Equal(t, listing.Expiration, loaded.Expiration)
	require.Equal(t, listing.Deadline, loaded.Deadline)
	require.Equal(t, listing.CreatedAt, loaded.CreatedAt)
	require.Equal(t, escrow.ListingFilled, loaded.State)
	require.Equal(t, escrow.TypeAPIApproval, loaded.Type)
	require.NotNil(t, loaded.API)
	require.Equal(t, listing.API.Source, loaded.API.Source)
	require.Equal(t, listing.API.Args, loaded.API.Args)
	require.Equal(t, listing.API.RequestID, loaded.API.RequestID)
	require.Nil(t, loaded.Onchain)
}

func TestListingRoundTripOnchainPayload(t *testing.T) {
	store := newTestStore(t)
	listing := &escrow.Listing{
		ID:         testID(0x11),
		Seller:     testAddress(0x02),
		Token:      testAddress(0x04),
		Amount:     big.NewInt(1),
		Expiration: 1_700_010_000,
		State:      escrow.ListingFilled,
		Type:       escrow.TypeOnchainApproval,
		Onchain: &escrow.OnchainApprovalData{
			Destination:    testAddress(0x07),
			Data:           []byte{0x70, 0xa0},
			ExpectedResult: []byte{0x00, 0x01},
		},
	}

	require.NoError(t, store.ListingPut(listing))
	loaded, ok, err := store.ListingGet(listing.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, loaded.Onchain)
	require.Equal(t, listing.Onchain.Destination, loaded.Onchain.Destination)
	require.Equal(t, listing.Onchain.ExpectedResult, loaded.Onchain.ExpectedResult)
	require.Nil(t, loaded.API)
}

func TestListingPutRejectsCrossedPayload(t *testing.T) {
	store := newTestStore(t)
	listing := &escrow.Listing{
		ID:         testID(0x12),
		Seller:     testAddress(0x02),
		Token:      testAddress(0x04),
		Amount:     big.NewInt(1),
		Expiration: 1_700_010_000,
		Type:       escrow.TypeDisputable,
		Onchain:    &escrow.OnchainApprovalData{ExpectedResult: []byte{0x01}},
	}
	require.Error(t, store.ListingPut(listing))
}

func TestCustodyBalanceLifecycle(t *testing.T) {
	store := newTestStore(t)
	id := testID(0x21)

	balance, err := store.EscrowBalance(id)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	require.NoError(t, store.EscrowCredit(id, big.NewInt(700)))
	require.NoError(t, store.EscrowCredit(id, big.NewInt(300)))
	balance, err = store.EscrowBalance(id)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(1000)))

	require.NoError(t, store.EscrowDebit(id, big.NewInt(1000)))
	balance, err = store.EscrowBalance(id)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	require.Error(t, store.EscrowDebit(id, big.NewInt(1)), "overdraw must fail")
}

func TestParamLifecycle(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.ParamGet("escrow/owner")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.ParamPut("escrow/owner", []byte{0x01, 0x02}))
	value, ok, err := store.ParamGet("escrow/owner")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x01, 0x02}, value)

	require.NoError(t, store.ParamPut("escrow/owner", nil))
	_, ok, err = store.ParamGet("escrow/owner")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOracleRequestMapping(t *testing.T) {
	store := newTestStore(t)
	requestID := testID(0x31)
	listingID := testID(0x32)

	_, ok, err := store.OracleRequestGet(requestID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.OracleRequestPut(requestID, listingID))
	got, ok, err := store.OracleRequestGet(requestID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, listingID, got)

	require.NoError(t, store.OracleRequestDelete(requestID))
	_, ok, err = store.OracleRequestGet(requestID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCaseRoundTrip(t *testing.T) {
	store := newTestStore(t)
	disputed := &arbitration.DisputedCase{
		ListingID:  testID(0x41),
		RequestID:  testID(0x42),
		Randomness: testID(0x43),
		Committee:  [][20]byte{testAddress(0x01), testAddress(0x02), testAddress(0x03)},
		Ballots:    []arbitration.Ballot{arbitration.BallotForBuyer, arbitration.BallotNone, arbitration.BallotForSeller},
		ForBuyer:   1,
		ForSeller:  1,
	}

	require.NoError(t, store.CasePut(disputed))
	loaded, ok, err := store.CaseGet(disputed.ListingID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, disputed.RequestID, loaded.RequestID)
	require.Equal(t, disputed.Randomness, loaded.Randomness)
	require.Equal(t, disputed.Committee, loaded.Committee)
	require.Equal(t, disputed.Ballots, loaded.Ballots)
	require.Equal(t, uint8(1), loaded.ForBuyer)
	require.Equal(t, uint8(1), loaded.ForSeller)
	require.False(t, loaded.Resolved)
}

func TestCasePutRejectsMalformedCommittee(t *testing.T) {
	store := newTestStore(t)
	disputed := &arbitration.DisputedCase{
		ListingID: testID(0x44),
		Committee: [][20]byte{testAddress(0x01)},
		Ballots:   []arbitration.Ballot{arbitration.BallotNone},
	}
	require.Error(t, store.CasePut(disputed))
}

func TestArbitratorPoolRoundTrip(t *testing.T) {
	store := newTestStore(t)

	pool, err := store.ArbitratorPoolGet()
	require.NoError(t, err)
	require.Empty(t, pool)

	want := [][20]byte{testAddress(0x01), testAddress(0x02), testAddress(0x03)}
	require.NoError(t, store.ArbitratorPoolPut(want))
	pool, err = store.ArbitratorPoolGet()
	require.NoError(t, err)
	require.Equal(t, want, pool)
}

type fixedEntropy struct {
	token [32]byte
}

func (f fixedEntropy) Fee() (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f fixedEntropy) RequestRandomness() ([32]byte, error) {
	return f.token, nil
}

// TestDisputeFlowEndToEnd wires both engines over a shared store and the real
// token ledger and walks a disputable listing from creation through a 2-1
// committee vote in favour of the buyer.
func TestDisputeFlowEndToEnd(t *testing.T) {
	store := newTestStore(t)
	ledger := token.NewLedger(store)

	owner := testAddress(0xA0)
	vault := testAddress(0xA1)
	collector := testAddress(0xA2)
	asset := testAddress(0xA3)
	seller := testAddress(0x01)
	buyer := testAddress(0x02)
	now := int64(1_700_000_000)

	listings := escrow.NewEngine()
	listings.SetState(store)
	listings.SetLedger(ledger)
	listings.SetVault(vault)
	listings.SetFeeCollector(collector)
	listings.SetNowFunc(func() int64 { return now })
	require.NoError(t, listings.Bootstrap(owner))
	require.NoError(t, listings.SetFeeBps(owner, 250))
	require.NoError(t, listings.SetWhitelistedTokens(owner, [][20]byte{asset}, []bool{true}))

	entropyToken := testID(0xE7)
	disputes := arbitration.NewEngine()
	disputes.SetState(store)
	disputes.SetAdmin(owner)
	disputes.SetEntropySource(fixedEntropy{token: entropyToken})
	disputes.SetResolver(listings)
	listings.SetDisputeQueue(disputes)

	pool := [][20]byte{
		testAddress(0x10), testAddress(0x11), testAddress(0x12),
		testAddress(0x13), testAddress(0x14),
	}
	flags := []bool{true, true, true, true, true}
	require.NoError(t, disputes.AddOrRemoveArbitrators(owner, pool, flags))

	listingID := escrow.DeriveListingID(seller, testID(0x01))
	_, err := listings.CreateListing(listingID, seller, asset, big.NewInt(1000), now+7200, escrow.TypeDisputable)
	require.NoError(t, err)

	require.NoError(t, ledger.Mint(asset, buyer, big.NewInt(1000)))
	require.NoError(t, ledger.Approve(asset, buyer, vault, big.NewInt(1000)))
	require.NoError(t, listings.FillListing(listingID, buyer, now+3600, nil))

	vaultBalance, err := ledger.BalanceOf(asset, vault)
	require.NoError(t, err)
	require.Zero(t, vaultBalance.Cmp(big.NewInt(1000)))

	require.NoError(t, listings.DeliverDisputable(listingID, seller))
	require.NoError(t, listings.DisputeListing(listingID, buyer, big.NewInt(0)))

	listing, ok := listings.GetListing(listingID)
	require.True(t, ok)
	require.Equal(t, escrow.ListingDisputed, listing.State)

	seed := testID(0x5D)
	require.NoError(t, disputes.OnRandomness(entropyToken, [20]byte{}, seed))
	disputed, ok := disputes.GetCase(listingID)
	require.True(t, ok)
	require.Len(t, disputed.Committee, arbitration.CommitteeSize)
	require.Equal(t, arbitration.SelectCommittee(seed, pool), disputed.Committee)

	committee := disputed.Committee
	require.NoError(t, disputes.Vote(listingID, committee[0], true))
	require.NoError(t, disputes.Vote(listingID, committee[1], false))
	require.NoError(t, disputes.Vote(listingID, committee[2], true))

	disputed, ok = disputes.GetCase(listingID)
	require.True(t, ok)
	require.True(t, disputed.Resolved)

	listing, ok = listings.GetListing(listingID)
	require.True(t, ok)
	require.Equal(t, escrow.ListingRefunded, listing.State)

	buyerBalance, err := ledger.BalanceOf(asset, buyer)
	require.NoError(t, err)
	require.Zero(t, buyerBalance.Cmp(big.NewInt(975)))
	collectorBalance, err := ledger.BalanceOf(asset, collector)
	require.NoError(t, err)
	require.Zero(t, collectorBalance.Cmp(big.NewInt(25)))
	vaultBalance, err = ledger.BalanceOf(asset, vault)
	require.NoError(t, err)
	require.Zero(t, vaultBalance.Sign())

	custody, err := listings.CustodyBalance(listingID)
	require.NoError(t, err)
	require.Zero(t, custody.Sign())
}
