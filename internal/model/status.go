package model

import "fmt"

// ProcessingStatus is the state of a RawResponse.
//
//	PENDING ──► PROCESSING ──► COMPLETED
//	                      └──► FAILED
//
// COMPLETED and FAILED are terminal. Only an explicit reprocess may move a
// terminal row, and it must go back through PROCESSING.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "PENDING"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusCompleted  ProcessingStatus = "COMPLETED"
	StatusFailed     ProcessingStatus = "FAILED"
)

var validTransitions = map[ProcessingStatus][]ProcessingStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// ParseProcessingStatus converts a raw string to a ProcessingStatus.
func ParseProcessingStatus(s string) (ProcessingStatus, error) {
	st := ProcessingStatus(s)
	switch st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown processing status %q", s)
}

// IsTerminal reports whether no automatic transition leaves s.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsTransitionAllowed returns true when from → to is an automatic transition.
func IsTransitionAllowed(from, to ProcessingStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsReprocessAllowed returns true when an explicit reprocess may move from into
// PROCESSING. Pending rows use the normal path.
func IsReprocessAllowed(from ProcessingStatus) bool {
	return from.IsTerminal()
}

// IsRecoveryAllowed returns true for the crash-recovery reset PROCESSING → PENDING.
func IsRecoveryAllowed(from, to ProcessingStatus) bool {
	return from == StatusProcessing && to == StatusPending
}
