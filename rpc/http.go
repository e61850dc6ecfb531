package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"debazaar/native/arbitration"
	"debazaar/native/escrow"
)

// ListingReader is the read-only view of the listing registry the API serves.
type ListingReader interface {
	GetListing(id [32]byte) (*escrow.Listing, bool)
	CustodyBalance(id [32]byte) (*big.Int, error)
}

// CaseReader is the read-only view of the arbitration subsystem.
type CaseReader interface {
	GetCase(listingID [32]byte) (*arbitration.DisputedCase, bool)
	Arbitrators() ([][20]byte, error)
}

// Server exposes the read-only HTTP surface: listing and case lookups, the
// arbitrator pool, health and Prometheus metrics. All mutation happens
// through signed transactions, never through this API.
type Server struct {
	listings ListingReader
	cases    CaseReader
	router   chi.Router
}

// NewServer builds the HTTP server around the supplied readers.
func NewServer(listings ListingReader, cases CaseReader) *Server {
	s := &Server{listings: listings, cases: cases}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/listings/{id}", s.handleGetListing)
		r.Get("/disputes/{id}", s.handleGetCase)
		r.Get("/arbitrators", s.handleGetArbitrators)
	})
	s.router = r
	return s
}

// Handler returns the routed handler for use by an http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type listingResponse struct {
	ID         string `json:"listingId"`
	Seller     string `json:"seller"`
	Buyer      string `json:"buyer,omitempty"`
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	Expiration int64  `json:"expiration"`
	Deadline   int64  `json:"deadline,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
	State      string `json:"state"`
	EscrowType string `json:"escrowType"`
	Custody    string `json:"custodyBalance"`
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	listing, ok := s.listings.GetListing(id)
	if !ok {
		writeError(w, http.StatusNotFound, escrow.ErrListingNotFound)
		return
	}
	custody, err := s.listings.CustodyBalance(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := listingResponse{
		ID:         hex.EncodeToString(listing.ID[:]),
		Seller:     hex.EncodeToString(listing.Seller[:]),
		Token:      hex.EncodeToString(listing.Token[:]),
		Amount:     listing.Amount.String(),
		Expiration: listing.Expiration,
		Deadline:   listing.Deadline,
		CreatedAt:  listing.CreatedAt,
		State:      listing.State.String(),
		EscrowType: listing.Type.String(),
		Custody:    custody.String(),
	}
	if listing.Buyer != ([20]byte{}) {
		resp.Buyer = hex.EncodeToString(listing.Buyer[:])
	}
	writeJSON(w, http.StatusOK, resp)
}

type caseResponse struct {
	ListingID  string   `json:"listingId"`
	RequestID  string   `json:"requestId"`
	Randomness string   `json:"randomness,omitempty"`
	Committee  []string `json:"committee,omitempty"`
	ForBuyer   uint8    `json:"tallyForBuyer"`
	ForSeller  uint8    `json:"tallyForSeller"`
	Resolved   bool     `json:"resolved"`
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	disputed, ok := s.cases.GetCase(id)
	if !ok {
		writeError(w, http.StatusNotFound, arbitration.ErrCaseNotFound)
		return
	}
	resp := caseResponse{
		ListingID: hex.EncodeToString(disputed.ListingID[:]),
		RequestID: hex.EncodeToString(disputed.RequestID[:]),
		ForBuyer:  disputed.ForBuyer,
		ForSeller: disputed.ForSeller,
		Resolved:  disputed.Resolved,
	}
	if disputed.Randomness != ([32]byte{}) {
		resp.Randomness = hex.EncodeToString(disputed.Randomness[:])
	}
	for _, member := range disputed.Committee {
		resp.Committee = append(resp.Committee, hex.EncodeToString(member[:]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetArbitrators(w http.ResponseWriter, _ *http.Request) {
	pool, err := s.cases.Arbitrators()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	members := make([]string, 0, len(pool))
	for _, member := range pool {
		members = append(members, hex.EncodeToString(member[:]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"arbitrators": members})
}

func parseID(raw string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, errors.New("rpc: malformed identifier")
	}
	if len(decoded) != 32 {
		return id, errors.New("rpc: identifier must be 32 bytes")
	}
	copy(id[:], decoded)
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
