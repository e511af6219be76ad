// Package portal drives the appointment portal through its multi-step
// booking workflow: entry page, anti-bot challenge, login, slot query and,
// when a slot is open, applicant form submission.
//
// Each step retries on its own bound because each has a different failure
// signature (page load vs transient DOM race vs permanently missing
// element). A run never lets an error escape: whatever happens, the caller
// gets an Outcome and the result sink gets a row.
package portal

import "context"

type Kind int

const (
	// KindSlot means the continuation control was available: an
	// appointment opening exists.
	KindSlot Kind = iota
	// KindNoSlot means the portal answered but offered no opening.
	KindNoSlot
	// KindFailure means the workflow did not complete.
	KindFailure
)

// Outcome is the tagged result of one run. It is consumed immediately by
// the sink and the notification path and not retained across cycles.
type Outcome struct {
	Kind    Kind
	Message string
}

// FailureText is the user-visible message for any failed run. Internal
// errors stay in the logs.
const FailureText = "Script execution failed"

// Sink persists one result row per run, success and failure alike.
type Sink interface {
	RecordResult(ctx context.Context, userID int64, result string) error
}
