// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// Error kinds surfaced to callers. Every ledger failure wraps exactly one of these.
var (
	// ErrInvalidInput indicates malformed or out-of-range arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance indicates a debit larger than the available cred.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPermissionDenied indicates a tier-gated or membership-gated operation was refused.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlreadyInFaction indicates the agent already belongs to a faction.
	ErrAlreadyInFaction = errors.New("already in faction")

	// ErrDuplicateOperation indicates an idempotency token was replayed inside the recent window.
	ErrDuplicateOperation = errors.New("duplicate operation")

	// ErrPersistence indicates the durable write failed and the mutation was discarded.
	ErrPersistence = errors.New("persistence failure")
)

// Kind names, as returned in API error bodies.
const (
	KindInvalidInput        = "InvalidInput"
	KindNotFound            = "NotFound"
	KindInsufficientBalance = "InsufficientBalance"
	KindPermissionDenied    = "PermissionDenied"
	KindAlreadyInFaction    = "AlreadyInFaction"
	KindDuplicateOperation  = "DuplicateOperation"
	KindPersistenceFailure  = "PersistenceFailure"
	KindInternal            = "Internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrNotFound, KindNotFound},
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrPermissionDenied, KindPermissionDenied},
	{ErrAlreadyInFaction, KindAlreadyInFaction},
	{ErrDuplicateOperation, KindDuplicateOperation},
	{ErrPersistence, KindPersistenceFailure},
}

// Kind returns the machine-readable kind of err, or KindInternal when err
// does not wrap one of the sentinel errors.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
