// Package db provides error types for database operations.
package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrRunNotFound indicates the requested run does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrStaleState indicates a conditional update presented a version that
	// no longer matches the stored run. The caller must reload and retry the
	// whole decision, never blindly reapply.
	ErrStaleState = errors.New("stale state")

	// ErrClaimConflict indicates the run is already claimed by another owner.
	// Surfaced to the operator; not retried.
	ErrClaimConflict = errors.New("claim conflict")

	// ErrInvalidTransition indicates a decision was attempted on a run that
	// is not in the expected status. Fatal to the command, not to the run.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrSnapshotMissing indicates an expected upstream stage snapshot does
	// not exist. This is a programmer error when raised during commit.
	ErrSnapshotMissing = errors.New("stage snapshot missing")

	// ErrTransactionConflict indicates a SurrealDB transaction conflict.
	// Callers should typically retry or skip the operation.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the appropriate
// sentinel error if it's a known query error type. Returns the original error
// if it's not a QueryError or doesn't match known patterns.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		if strings.Contains(queryErr.Message, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, queryErr.Message)
		}
	}

	return err
}
