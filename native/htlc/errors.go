package htlc

import "errors"

// Error taxonomy for the escrow core. Every operation wraps one of these
// sentinels so adapters can classify failures with errors.Is without parsing
// reason strings. None of them are retried by the engine; each aborts the
// current call before any state is written.
var (
	// ErrInputValidation marks a malformed hash, address, amount or
	// parameter set rejected at construction time.
	ErrInputValidation = errors.New("input validation failed")
	// ErrTimelockValidation marks an invalid timelock ordering or bound.
	ErrTimelockValidation = errors.New("timelock validation failed")
	// ErrInsufficientDeposit marks an attached value below the required
	// amount + safety deposit.
	ErrInsufficientDeposit = errors.New("insufficient deposit")
	// ErrTimelockNotMet marks an operation attempted before its stage
	// threshold has passed.
	ErrTimelockNotMet = errors.New("timelock not met")
	// ErrAlreadyFinalized marks a withdraw/cancel against an escrow whose
	// terminal flags are already set.
	ErrAlreadyFinalized = errors.New("escrow already finalized")
	// ErrInvalidSecret marks a secret whose digest does not match the
	// hashlock.
	ErrInvalidSecret = errors.New("invalid secret")
	// ErrUnauthorized marks a caller that is not permitted to perform the
	// operation.
	ErrUnauthorized = errors.New("unauthorized caller")
	// ErrAuctionExpired marks a fill attempted after the auction end time.
	ErrAuctionExpired = errors.New("auction expired")
	// ErrArithmetic marks an invariant violation in numeric state; it should
	// be unreachable for correct callers.
	ErrArithmetic = errors.New("arithmetic invariant violation")
	// ErrNotFound marks a lookup for an escrow that was never created.
	ErrNotFound = errors.New("escrow not found")
)
