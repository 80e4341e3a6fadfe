package usecase

import "errors"

// Error kinds surfaced to the transport layer. Services wrap these with %w
// and a user-facing reason; handlers map them to response codes.
var (
	// ErrValidation marks a malformed argument, surfaced verbatim.
	ErrValidation = errors.New("invalid input")
	// ErrEligibility marks a trust/ban/role/cooldown/flood denial.
	ErrEligibility = errors.New("not eligible")
	// ErrStateConflict marks a stage mismatch, duplicate report, already
	// rated or expired pickup; not retryable without new input.
	ErrStateConflict = errors.New("state conflict")
	// ErrNotFound marks an unknown pickup, config or player.
	ErrNotFound = errors.New("resource not found")
	// ErrStoreUnavailable marks a persistence failure; the whole request is
	// safe to retry, no partial state is left visible.
	ErrStoreUnavailable = errors.New("store unavailable")
)
