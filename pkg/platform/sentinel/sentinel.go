package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and outbound clients return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store or upstream registry
// - ErrConflict: a record with the same key already exists
// - ErrExpired: nonce or pre-authorized code has expired
// - ErrAlreadyUsed: single-use record (nonce, pre-authorized code) already consumed
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: upstream or resource temporarily unavailable (retryable)
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
