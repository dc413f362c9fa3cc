package timeline

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrEmptyReason = errors.New("reason cannot be empty")
	ErrBrokenChain = errors.New("timeline events do not form a contiguous status chain")
)

// ActorRole identifies who performed a state transition
type ActorRole string

const (
	RoleAdmin  ActorRole = "ADMIN"
	RoleSystem ActorRole = "SYSTEM"
	RoleSeller ActorRole = "SELLER"
)

// Actor identifies the principal behind a transition
type Actor struct {
	ID   string    `json:"id" bson:"id"`
	Name string    `json:"name" bson:"name"`
	Role ActorRole `json:"role" bson:"role"`
}

// SystemActor is used for transitions driven by the engine itself
var SystemActor = Actor{ID: "system", Name: "settlement-engine", Role: RoleSystem}

// Event records a single state transition. Events are immutable once
// appended; every state machine in the engine appends exactly one Event
// per transition.
type Event struct {
	ID             string            `json:"id" bson:"id"`
	Timestamp      time.Time         `json:"timestamp" bson:"timestamp"`
	PreviousStatus string            `json:"previous_status" bson:"previous_status"`
	NewStatus      string            `json:"new_status" bson:"new_status"`
	Actor          Actor             `json:"actor" bson:"actor"`
	Reason         string            `json:"reason,omitempty" bson:"reason,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// NewEvent builds a transition event with a generated id and current timestamp
func NewEvent(previous, next string, actor Actor, reason string) Event {
	return Event{
		ID:             uuid.New().String(),
		Timestamp:      time.Now().UTC(),
		PreviousStatus: previous,
		NewStatus:      next,
		Actor:          actor,
		Reason:         reason,
	}
}

// History is an append-only ordered sequence of events. Order is insertion
// order; entries are never reordered or removed.
type History []Event

// Append returns a new history with the event added at the end
func (h History) Append(e Event) History {
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, e)
}

// Last returns the most recent event, or false when the history is empty
func (h History) Last() (Event, bool) {
	if len(h) == 0 {
		return Event{}, false
	}
	return h[len(h)-1], true
}

// Validate checks the status chain: each event's NewStatus must equal the
// following event's PreviousStatus.
func (h History) Validate() error {
	for i := 0; i+1 < len(h); i++ {
		if h[i].NewStatus != h[i+1].PreviousStatus {
			return ErrBrokenChain
		}
	}
	return nil
}
