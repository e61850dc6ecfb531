package escrow

import (
	"encoding/hex"
	"strconv"

	"debazaar/core/events"
)

const (
	EventTypeListingCreated   = "escrow.listing.created"
	EventTypeListingFilled    = "escrow.listing.filled"
	EventTypeListingDelivered = "escrow.listing.delivered"
	EventTypeListingDisputed  = "escrow.listing.disputed"
	EventTypeListingResolved  = "escrow.listing.resolved"
	EventTypeListingCanceled  = "escrow.listing.canceled"
	EventTypeListingReset     = "escrow.listing.reset"
	EventTypeAPIRequested     = "escrow.api.requested"
	EventTypeAPIError         = "escrow.api.error"
	EventTypeAPIEmptyResponse = "escrow.api.empty_response"
	EventTypeAPIReturnedFalse = "escrow.api.returned_false"
)

// NewListingCreatedEvent returns the canonical payload for a newly created
// listing.
func NewListingCreatedEvent(l *Listing) *events.Event {
	return newListingEvent(EventTypeListingCreated, l)
}

// NewListingFilledEvent returns the payload emitted when funds enter custody.
func NewListingFilledEvent(l *Listing) *events.Event {
	evt := newListingEvent(EventTypeListingFilled, l)
	evt.Attributes["deadline"] = strconv.FormatInt(l.Deadline, 10)
	return evt
}

// NewListingDeliveredEvent returns the payload emitted when a disputable
// listing is marked delivered.
func NewListingDeliveredEvent(l *Listing) *events.Event {
	return newListingEvent(EventTypeListingDelivered, l)
}

// NewListingDisputedEvent returns the payload emitted when a listing enters
// arbitration.
func NewListingDisputedEvent(l *Listing, sender [20]byte) *events.Event {
	evt := newListingEvent(EventTypeListingDisputed, l)
	evt.Attributes["sender"] = hex.EncodeToString(sender[:])
	return evt
}

// NewListingResolvedEvent returns the payload emitted on the single terminal
// resolution of a listing.
func NewListingResolvedEvent(l *Listing, winner [20]byte, outcome string) *events.Event {
	evt := newListingEvent(EventTypeListingResolved, l)
	evt.Attributes["to"] = hex.EncodeToString(winner[:])
	evt.Attributes["outcome"] = outcome
	return evt
}

// NewListingCanceledEvent returns the payload emitted on a terminal
// cancellation.
func NewListingCanceledEvent(l *Listing, sender [20]byte) *events.Event {
	evt := newListingEvent(EventTypeListingCanceled, l)
	evt.Attributes["sender"] = hex.EncodeToString(sender[:])
	return evt
}

// NewListingResetEvent returns the payload emitted when a buyer cancellation
// reopens the listing for re-sale.
func NewListingResetEvent(l *Listing) *events.Event {
	return newListingEvent(EventTypeListingReset, l)
}

// NewAPIRequestedEvent returns the payload emitted when an oracle request is
// dispatched.
func NewAPIRequestedEvent(l *Listing, requestID [32]byte) *events.Event {
	evt := newListingEvent(EventTypeAPIRequested, l)
	evt.Attributes["requestId"] = hex.EncodeToString(requestID[:])
	return evt
}

// NewAPIErrorEvent returns the payload emitted when the oracle reported an
// error; the listing stays filled.
func NewAPIErrorEvent(l *Listing, errPayload []byte) *events.Event {
	evt := newListingEvent(EventTypeAPIError, l)
	evt.Attributes["error"] = hex.EncodeToString(errPayload)
	return evt
}

// NewAPIEmptyResponseEvent returns the payload emitted when the oracle
// returned no data.
func NewAPIEmptyResponseEvent(l *Listing) *events.Event {
	return newListingEvent(EventTypeAPIEmptyResponse, l)
}

// NewAPIReturnedFalseEvent returns the payload emitted when the oracle result
// decoded to zero.
func NewAPIReturnedFalseEvent(l *Listing) *events.Event {
	return newListingEvent(EventTypeAPIReturnedFalse, l)
}

func newListingEvent(eventType string, l *Listing) *events.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	attrs["listingId"] = hex.EncodeToString(sanitized.ID[:])
	attrs["seller"] = hex.EncodeToString(sanitized.Seller[:])
	attrs["token"] = hex.EncodeToString(sanitized.Token[:])
	attrs["amount"] = sanitized.Amount.String()
	attrs["state"] = sanitized.State.String()
	attrs["escrowType"] = sanitized.Type.String()
	if sanitized.Buyer != ([20]byte{}) {
		attrs["buyer"] = hex.EncodeToString(sanitized.Buyer[:])
	}
	return &events.Event{Type: eventType, Attributes: attrs}
}
