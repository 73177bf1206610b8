package vault

import "errors"

// Authorization failures.
var (
	ErrNotVenueAuthority = errors.New("vault: caller is not the venue authority")
	ErrNotAdmin          = errors.New("vault: caller is not an administrator")
)

// Range failures.
var (
	ErrMultiplierRange = errors.New("vault: price multiplier outside allowed basis-point range")
	ErrZeroIncrement   = errors.New("vault: increment must be non-zero")
	ErrZeroAmount      = errors.New("vault: amount must be non-zero")
)

// Timing failures.
var ErrDelayNotElapsed = errors.New("vault: burn delay not elapsed")

// State failures.
var (
	ErrEmptyEscrow      = errors.New("vault: burn escrow is empty")
	ErrInsufficientFees = errors.New("vault: amount exceeds available funds")
	ErrReentrantCall    = errors.New("vault: reentrant call")
)

// Policy failures.
var (
	ErrInsufficientAllowance = errors.New("vault: transfer exceeds call-scoped allowance")
	ErrUnauthorizedTransfer  = errors.New("vault: transfer not authorized")
)

// Kind buckets errors for transport mapping and counters.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthorization
	KindRange
	KindTiming
	KindState
	KindPolicy
)

// Classify maps an operation error to its kind. Wrapped errors classify by
// their sentinel; anything unrecognized is internal.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrNotVenueAuthority), errors.Is(err, ErrNotAdmin):
		return KindAuthorization
	case errors.Is(err, ErrMultiplierRange), errors.Is(err, ErrZeroIncrement), errors.Is(err, ErrZeroAmount):
		return KindRange
	case errors.Is(err, ErrDelayNotElapsed):
		return KindTiming
	case errors.Is(err, ErrEmptyEscrow), errors.Is(err, ErrInsufficientFees), errors.Is(err, ErrReentrantCall):
		return KindState
	case errors.Is(err, ErrInsufficientAllowance), errors.Is(err, ErrUnauthorizedTransfer):
		return KindPolicy
	default:
		return KindInternal
	}
}
