// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Credential sentinels. Every specific token failure also matches ErrUnauthorized.
var (
	// ErrUnauthorized indicates a rejected bearer credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenMalformed indicates a token that could not be parsed at all.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenSignature indicates a signature that does not verify with our key.
	ErrTokenSignature = errors.New("token signature invalid")

	// ErrTokenExpired indicates a token past its exp claim.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenAlgorithm indicates a token signed with an unexpected algorithm.
	ErrTokenAlgorithm = errors.New("unexpected signing method")

	// ErrTokenClaims indicates missing or invalid claims (e.g. empty subject).
	ErrTokenClaims = errors.New("token claims invalid")

	// ErrTooManyAttempts indicates a host temporarily blocked after repeated failures.
	ErrTooManyAttempts = errors.New("too many attempts")
)

// Session sentinels.
var (
	// ErrUnexpectedFrame indicates a client frame that violates the channel protocol.
	ErrUnexpectedFrame = errors.New("unexpected frame")

	// ErrInvalidProofStatus indicates the backend proof was not VALID.
	ErrInvalidProofStatus = errors.New("invalid proof status")

	// ErrMissingAttributes indicates a VALID proof without any configured attribute.
	ErrMissingAttributes = errors.New("missing attributes")

	// ErrBackend indicates a non-success response from the credential backend.
	ErrBackend = errors.New("credential backend error")

	// ErrStatusParse indicates a status event line that could not be mapped.
	ErrStatusParse = errors.New("could not parse session status")

	// ErrDuplicatePeer indicates a registry key that is already live.
	ErrDuplicatePeer = errors.New("peer already registered")
)
