// Package model defines domain entities shared by services, the backend client and transports.
package model

import (
	"fmt"
	"time"

	"github.com/and161185/irmachat/internal/errs"
)

// SessionStatus is a lifecycle state reported by the credential backend's status stream.
type SessionStatus string

const (
	StatusInitialized SessionStatus = "INITIALIZED"
	StatusConnected   SessionStatus = "CONNECTED"
	StatusCancelled   SessionStatus = "CANCELLED"
	StatusDone        SessionStatus = "DONE"
	StatusTimeout     SessionStatus = "TIMEOUT"
)

// String returns the wire form forwarded to clients.
func (s SessionStatus) String() string { return string(s) }

// ParseSessionStatus maps a wire value to a SessionStatus.
func ParseSessionStatus(v string) (SessionStatus, error) {
	switch s := SessionStatus(v); s {
	case StatusInitialized, StatusConnected, StatusCancelled, StatusDone, StatusTimeout:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", errs.ErrStatusParse, v)
}

// ProofStatus is the verdict embedded in a backend disclosure proof.
type ProofStatus string

const (
	ProofValid             ProofStatus = "VALID"
	ProofInvalid           ProofStatus = "INVALID"
	ProofInvalidTimestamp  ProofStatus = "INVALID_TIMESTAMP"
	ProofUnmatchedRequest  ProofStatus = "UNMATCHED_REQUEST"
	ProofMissingAttributes ProofStatus = "MISSING_ATTRIBUTES"
	ProofExpired           ProofStatus = "EXPIRED"
)

// AuthState is the state of one auth bridge.
type AuthState int

const (
	AwaitingStart AuthState = iota
	Active
	Terminated
)

func (s AuthState) String() string {
	switch s {
	case AwaitingStart:
		return "awaiting_start"
	case Active:
		return "active"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// Session is a started backend disclosure session.
type Session struct {
	Token     string // backend session token, immutable once started
	QRPayload string // JSON session pointer handed to the client
}

// AuthSession is the per-connection state owned by a single auth bridge.
type AuthSession struct {
	Session
	State AuthState
}

// Credential holds the claims of an application-issued bearer token.
type Credential struct {
	Subject   string
	ExpiresAt time.Time
}
