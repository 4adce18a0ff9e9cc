package domain

import "errors"

// Credential errors
var (
	ErrCredentialMalformed    = errors.New("malformed credential")
	ErrCredentialBadSignature = errors.New("credential signature mismatch")
	ErrCredentialStale        = errors.New("credential outside tolerance window")
	ErrCredentialReplayed     = errors.New("credential already presented")
	ErrInvalidManualCode      = errors.New("invalid manual entry code")
	ErrTooManyAttempts        = errors.New("too many attempts, try again later")
)

// Identity errors
var (
	ErrInvalidToken = errors.New("invalid token")
)

// Ledger errors
var (
	ErrMemberNotFound        = errors.New("member not found")
	ErrUnknownLocation       = errors.New("unknown location")
	ErrInvalidPlanKind       = errors.New("invalid plan kind")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrInvalidAttendanceKind = errors.New("invalid attendance kind")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidCurrency       = errors.New("invalid currency")
	ErrMissingField          = errors.New("missing required field")
)

// Store errors
var (
	// ErrStoreUnavailable marks a failed or timed-out store operation. Callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidRecord is returned when a persisted document fails validation on read.
	ErrInvalidRecord = errors.New("invalid stored record")
)
