package runtime

import (
	"fmt"

	"github.com/pithecene-io/runledger/types"
)

// OutcomeStatus is the final status of an attempt.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Exit codes reported by the close command for each outcome.
const (
	ExitCodeSucceeded = 0
	ExitCodeFailed    = 1
	ExitCodeCancelled = 2
)

// ExitCode maps the status to the close command's exit code.
func (s OutcomeStatus) ExitCode() int {
	switch s {
	case OutcomeSucceeded:
		return ExitCodeSucceeded
	case OutcomeCancelled:
		return ExitCodeCancelled
	default:
		return ExitCodeFailed
	}
}

// Outcome is the result of closing an attempt.
type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
	// PartialSuccess is set when the attempt did not succeed but at least one
	// stream completed.
	PartialSuccess bool `json:"partial_success"`
}

// DetermineOutcome decides the attempt outcome.
//
// Rules, in order:
//  1. cancelled: cancelled, whatever the exit code
//  2. exit code 0 and no failure records: succeeded
//  3. anything else: failed
func DetermineOutcome(exitCode int, cancelled bool, failures []types.FailureRecord, statuses []types.StatusMessage) *Outcome {
	var outcome *Outcome
	switch {
	case cancelled:
		outcome = &Outcome{Status: OutcomeCancelled, Message: "attempt was cancelled"}
	case exitCode == 0 && len(failures) == 0:
		return &Outcome{Status: OutcomeSucceeded, Message: "attempt completed successfully"}
	case exitCode == 0:
		outcome = &Outcome{
			Status:  OutcomeFailed,
			Message: fmt.Sprintf("attempt exited cleanly with %d failure(s)", len(failures)),
		}
	default:
		outcome = &Outcome{
			Status:  OutcomeFailed,
			Message: fmt.Sprintf("attempt exited with code %d", exitCode),
		}
	}

	for _, s := range statuses {
		if s.Status == types.RunStateComplete {
			outcome.PartialSuccess = true
			break
		}
	}
	return outcome
}
