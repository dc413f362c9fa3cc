// Package shared holds the error taxonomy and cross-aggregate types used by
// every state machine in the settlement engine.
package shared

import "fmt"

// ValidationError indicates a caller-correctable problem with a submitted
// payload. It is raised before any gateway call or state mutation.
type ValidationError struct {
	Field  string
	Detail string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Detail)
}

// Is matches any ValidationError when the target carries no field
func (e ValidationError) Is(target error) bool {
	t, ok := target.(ValidationError)
	if !ok {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}

// InvalidTransitionError indicates a transition requested from a state that
// does not permit it. It must never be silently swallowed: it signals either
// a caller bug or a lost race on the record.
type InvalidTransitionError struct {
	RecordID string
	From     string
	Action   string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %q from state %s on record %s", e.Action, e.From, e.RecordID)
}

// Is matches any InvalidTransitionError when the target carries no record id
func (e InvalidTransitionError) Is(target error) bool {
	t, ok := target.(InvalidTransitionError)
	if !ok {
		return false
	}
	return t.RecordID == "" || t.RecordID == e.RecordID
}

// GatewayError carries the raw outcome of a failed call to the e-invoicing
// authority. Transient failures (timeouts, 5xx) may be retried by the invoice
// lifecycle; permanent ones (4xx) require a corrected document.
type GatewayError struct {
	StatusCode int
	Body       string
	Transient  bool
	Err        error
}

func (e GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway call failed: %v", e.Err)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

func (e GatewayError) Unwrap() error { return e.Err }

// Is matches any GatewayError regardless of payload
func (e GatewayError) Is(target error) bool {
	_, ok := target.(GatewayError)
	return ok
}

// InvariantViolationError indicates corrupted record state, e.g. a cash-out
// whose net amount no longer equals amount minus commission. Fatal to the
// specific transition; never coerced.
type InvariantViolationError struct {
	RecordID string
	Detail   string
}

func (e InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violated on record %s: %s", e.RecordID, e.Detail)
}

// Is matches any InvariantViolationError when the target carries no record id
func (e InvariantViolationError) Is(target error) bool {
	t, ok := target.(InvariantViolationError)
	if !ok {
		return false
	}
	return t.RecordID == "" || t.RecordID == e.RecordID
}

// ConcurrentModificationError indicates a compare-and-swap transition lost a
// race with another writer on the same record.
type ConcurrentModificationError struct {
	RecordID string
}

func (e ConcurrentModificationError) Error() string {
	return "concurrent modification detected for record: " + e.RecordID
}

// Is matches any ConcurrentModificationError when the target carries no record id
func (e ConcurrentModificationError) Is(target error) bool {
	t, ok := target.(ConcurrentModificationError)
	if !ok {
		return false
	}
	return t.RecordID == "" || t.RecordID == e.RecordID
}
