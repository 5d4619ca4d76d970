// Package backend defines the credential verification backend contract implemented by concrete clients.
package backend

import (
	"context"

	"github.com/and161185/irmachat/internal/model"
)

// SessionBackend starts, observes and concludes disclosure sessions.
type SessionBackend interface {
	// Start opens a disclosure session and returns its token and QR payload.
	Start(ctx context.Context) (model.Session, error)
	// Stop cancels a running session.
	Stop(ctx context.Context, token string) error
	// VerifyProof retrieves the session's proof and derives the verified identity.
	VerifyProof(ctx context.Context, token string) (string, error)
	// SubscribeStatus opens the session's status event stream.
	SubscribeStatus(ctx context.Context, token string) (StatusStream, error)
}

// StatusStream is a lazy, non-restartable sequence of status updates.
// Next returns io.EOF once the backend ends the stream. Close must be called
// even if iteration stopped early, and may be called concurrently with Next
// to unblock it.
type StatusStream interface {
	Next() (model.SessionStatus, error)
	Close() error
}
