package rpc

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"debazaar/native/arbitration"
	"debazaar/native/escrow"
)

type stubListings struct {
	listings map[[32]byte]*escrow.Listing
	custody  map[[32]byte]*big.Int
}

func (s *stubListings) GetListing(id [32]byte) (*escrow.Listing, bool) {
	listing, ok := s.listings[id]
	return listing, ok
}

func (s *stubListings) CustodyBalance(id [32]byte) (*big.Int, error) {
	balance, ok := s.custody[id]
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

type stubCases struct {
	cases map[[32]byte]*arbitration.DisputedCase
	pool  [][20]byte
}

func (s *stubCases) GetCase(listingID [32]byte) (*arbitration.DisputedCase, bool) {
	disputed, ok := s.cases[listingID]
	return disputed, ok
}

func (s *stubCases) Arbitrators() ([][20]byte, error) {
	return s.pool, nil
}

func testID(fill byte) [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = fill
	}
	return id
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestServer() (*Server, *stubListings, *stubCases) {
	listings := &stubListings{
		listings: make(map[[32]byte]*escrow.Listing),
		custody:  make(map[[32]byte]*big.Int),
	}
	cases := &stubCases{cases: make(map[[32]byte]*arbitration.DisputedCase)}
	return NewServer(listings, cases), listings, cases
}

func doRequest(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer()
	rec := doRequest(t, server, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGetListing(t *testing.T) {
	server, listings, _ := newTestServer()
	id := testID(0x01)
	listings.listings[id] = &escrow.Listing{
		ID:         id,
		Seller:     testAddress(0x02),
		Buyer:      testAddress(0x03),
		Token:      testAddress(0x04),
		Amount:     big.NewInt(1000),
		Expiration: 1_700_010_000,
		Deadline:   1_700_005_000,
		CreatedAt:  1_700_000_000,
		State:      escrow.ListingFilled,
		Type:       escrow.TypeDisputable,
	}
	listings.custody[id] = big.NewInt(1000)

	rec := doRequest(t, server, "/v1/listings/0x"+hex.EncodeToString(id[:]))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["state"] != "filled" || resp["escrowType"] != "disputable" {
		t.Fatalf("unexpected body: %v", resp)
	}
	if resp["amount"] != "1000" || resp["custodyBalance"] != "1000" {
		t.Fatalf("unexpected amounts: %v", resp)
	}
	buyer := testAddress(0x03)
	if resp["buyer"] != hex.EncodeToString(buyer[:]) {
		t.Fatalf("unexpected buyer: %v", resp["buyer"])
	}
}

func TestGetListingErrors(t *testing.T) {
	server, _, _ := newTestServer()
	if rec := doRequest(t, server, "/v1/listings/nothex"); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed id: status = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, server, "/v1/listings/0xabcd"); rec.Code != http.StatusBadRequest {
		t.Fatalf("short id: status = %d, want 400", rec.Code)
	}
	missing := testID(0xFF)
	if rec := doRequest(t, server, "/v1/listings/"+hex.EncodeToString(missing[:])); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status = %d, want 404", rec.Code)
	}
}

func TestGetCase(t *testing.T) {
	server, _, cases := newTestServer()
	id := testID(0x11)
	cases.cases[id] = &arbitration.DisputedCase{
		ListingID:  id,
		RequestID:  testID(0x12),
		Randomness: testID(0x13),
		Committee:  [][20]byte{testAddress(0x01), testAddress(0x02), testAddress(0x03)},
		Ballots:    []arbitration.Ballot{arbitration.BallotForBuyer, arbitration.BallotNone, arbitration.BallotNone},
		ForBuyer:   1,
	}

	rec := doRequest(t, server, "/v1/disputes/"+hex.EncodeToString(id[:]))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp caseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Committee) != 3 || resp.ForBuyer != 1 || resp.Resolved {
		t.Fatalf("unexpected body: %+v", resp)
	}

	unknown := testID(0xEE)
	if rec := doRequest(t, server, "/v1/disputes/"+hex.EncodeToString(unknown[:])); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown case: status = %d, want 404", rec.Code)
	}
}

func TestGetArbitrators(t *testing.T) {
	server, _, cases := newTestServer()
	cases.pool = [][20]byte{testAddress(0x01), testAddress(0x02)}

	rec := doRequest(t, server, "/v1/arbitrators")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	member := testAddress(0x01)
	if !strings.Contains(body, hex.EncodeToString(member[:])) {
		t.Fatalf("pool member missing from %s", body)
	}
}
