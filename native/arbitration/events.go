package arbitration

import (
	"encoding/hex"
	"strconv"

	"debazaar/core/events"
)

const (
	EventTypeCaseQueued          = "arbitration.case.queued"
	EventTypeRandomnessRequested = "arbitration.randomness.requested"
	EventTypeCommitteeSelected   = "arbitration.committee.selected"
	EventTypeVoteCast            = "arbitration.vote.cast"
	EventTypeCaseResolved        = "arbitration.case.resolved"
	EventTypePoolUpdated         = "arbitration.pool.updated"
)

// NewCaseQueuedEvent returns the payload emitted when a listing enters the
// dispute queue.
func NewCaseQueuedEvent(c *DisputedCase) *events.Event {
	return newCaseEvent(EventTypeCaseQueued, c)
}

// NewRandomnessRequestedEvent returns the payload emitted when the entropy
// request is issued.
func NewRandomnessRequestedEvent(c *DisputedCase) *events.Event {
	evt := newCaseEvent(EventTypeRandomnessRequested, c)
	evt.Attributes["requestId"] = hex.EncodeToString(c.RequestID[:])
	return evt
}

// NewCommitteeSelectedEvent returns the payload emitted once randomness has
// been received and the committee snapshotted.
func NewCommitteeSelectedEvent(c *DisputedCase) *events.Event {
	evt := newCaseEvent(EventTypeCommitteeSelected, c)
	for i, member := range c.Committee {
		evt.Attributes["member"+strconv.Itoa(i)] = hex.EncodeToString(member[:])
	}
	return evt
}

// NewVoteCastEvent returns the payload emitted for every recorded ballot.
func NewVoteCastEvent(c *DisputedCase, voter [20]byte, forBuyer bool) *events.Event {
	evt := newCaseEvent(EventTypeVoteCast, c)
	evt.Attributes["voter"] = hex.EncodeToString(voter[:])
	evt.Attributes["forBuyer"] = strconv.FormatBool(forBuyer)
	return evt
}

// NewCaseResolvedEvent returns the payload emitted when a majority is reached
// and the registry callback has succeeded.
func NewCaseResolvedEvent(c *DisputedCase, toBuyer bool) *events.Event {
	evt := newCaseEvent(EventTypeCaseResolved, c)
	evt.Attributes["toBuyer"] = strconv.FormatBool(toBuyer)
	return evt
}

// NewPoolUpdatedEvent returns the payload emitted after a pool mutation.
func NewPoolUpdatedEvent(size int) *events.Event {
	return &events.Event{
		Type:       EventTypePoolUpdated,
		Attributes: map[string]string{"size": strconv.Itoa(size)},
	}
}

func newCaseEvent(eventType string, c *DisputedCase) *events.Event {
	attrs := make(map[string]string)
	if c == nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	attrs["listingId"] = hex.EncodeToString(c.ListingID[:])
	attrs["tallyForBuyer"] = strconv.Itoa(int(c.ForBuyer))
	attrs["tallyForSeller"] = strconv.Itoa(int(c.ForSeller))
	attrs["resolved"] = strconv.FormatBool(c.Resolved)
	return &events.Event{Type: eventType, Attributes: attrs}
}
