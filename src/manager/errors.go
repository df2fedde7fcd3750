package manager

import "errors"

// Validation errors are rejected synchronously before anything is
// persisted; they are never retried.
var (
	ErrInvalidFraction   = errors.New("position fraction must be in (0, 1]")
	ErrInvalidDirection  = errors.New("direction must be buy or sell")
	ErrNegativeDelay     = errors.New("delay must not be negative")
	ErrInvalidCondition  = errors.New("condition must be above_entry or below_entry")
	ErrMissingEntryPrice = errors.New("conditional order requires a positive entry price")
)
