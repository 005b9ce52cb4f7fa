package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrAlreadyClaimed is returned by the email-state store when another
	// request already holds the claim for the same event id. Callers treat it
	// as success-with-skip, never as a failure.
	ErrAlreadyClaimed = errors.New("event already claimed")

	// ErrSendFailed marks an email provider failure after a successful claim.
	ErrSendFailed = errors.New("email send failed")

	// ErrNoCredential is returned by the credential store when nothing is
	// persisted for the current user. Wraps ErrNotFound so key-level
	// checks keep matching.
	ErrNoCredential = fmt.Errorf("no stored credential: %w", ErrNotFound)
)
