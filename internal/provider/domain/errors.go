package domain

import "errors"

var (
	// ErrProviderUnavailable marks a network or auth failure talking to an
	// authority. Recoverable; the caller may retry later.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrValidationRejected means the backend refused a receipt or
	// transaction. Fatal for the attempt; no entitlement is granted.
	ErrValidationRejected = errors.New("backend validation rejected")

	// ErrAlreadyInProgress rejects a duplicate concurrent purchase attempt.
	ErrAlreadyInProgress = errors.New("purchase already in progress")

	// ErrSettlementTimeout means a crypto payment was never confirmed within
	// the bounded window.
	ErrSettlementTimeout = errors.New("crypto settlement timed out")

	ErrOfferingNotFound = errors.New("offering not found")
	ErrNotInitialized   = errors.New("provider not initialized")
	ErrProviderNotFound = errors.New("provider not found")
	ErrUnknownOrder     = errors.New("unknown purchase order")
)
