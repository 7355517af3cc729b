// Package errs defines the error kinds a reconciliation tick can produce.
//
// Each kind wraps an underlying cause so callers can still errors.Is/As
// through to the driver or clientset error that triggered it. The
// reconciler logs and counts every failed tick the same way, whatever its
// kind.
package errs

import "fmt"

// InitFailure indicates host identity resolution failed at startup. Fatal:
// the process must not proceed to reconciliation.
type InitFailure struct {
	Cause error
}

func (e *InitFailure) Error() string { return fmt.Sprintf("host identity init failed: %v", e.Cause) }
func (e *InitFailure) Unwrap() error { return e.Cause }

// OrchestratorUnavailable indicates the peer roster could not be listed.
type OrchestratorUnavailable struct {
	Cause error
}

func (e *OrchestratorUnavailable) Error() string {
	return fmt.Sprintf("orchestrator unavailable: %v", e.Cause)
}
func (e *OrchestratorUnavailable) Unwrap() error { return e.Cause }

// DatabaseUnavailable indicates the local database session could not be opened.
type DatabaseUnavailable struct {
	Cause error
}

func (e *DatabaseUnavailable) Error() string {
	return fmt.Sprintf("database unavailable: %v", e.Cause)
}
func (e *DatabaseUnavailable) Unwrap() error { return e.Cause }

// StatusFailure indicates replSetGetStatus returned an error that is neither
// NotYetInitialized (94) nor InvalidReplicaSetConfig (93).
type StatusFailure struct {
	Cause error
}

func (e *StatusFailure) Error() string { return fmt.Sprintf("replica set status failed: %v", e.Cause) }
func (e *StatusFailure) Unwrap() error { return e.Cause }

// MutationFailure indicates initReplSet/addNewReplSetMembers failed.
type MutationFailure struct {
	Cause error
}

func (e *MutationFailure) Error() string {
	return fmt.Sprintf("replica set mutation failed: %v", e.Cause)
}
func (e *MutationFailure) Unwrap() error { return e.Cause }

// ProbeFailure indicates one or more peer isInReplSet probes failed. The
// whole NotInSet branch is conservative on this: it cannot prove no peer
// has already initialized the set, so it must not initialize either.
type ProbeFailure struct {
	Cause error
}

func (e *ProbeFailure) Error() string { return fmt.Sprintf("peer probe failed: %v", e.Cause) }
func (e *ProbeFailure) Unwrap() error { return e.Cause }
