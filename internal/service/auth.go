// Package service contains the per-connection auth bridge and the shared chat registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/and161185/irmachat/internal/backend"
	"github.com/and161185/irmachat/internal/errs"
	"github.com/and161185/irmachat/internal/model"
	"github.com/and161185/irmachat/internal/protocol"
)

// FrameConn is a text-frame connection as seen by the services.
type FrameConn interface {
	// ReadText blocks for the next text frame. A close frame is reported as io.EOF.
	ReadText() (string, error)
	// WriteText sends one text frame. Safe for concurrent use.
	WriteText(text string) error
	// Addr identifies the live connection; unique among open connections.
	Addr() string
	Close() error
}

// CredentialIssuer mints and validates the application's bearer token.
type CredentialIssuer interface {
	Mint(subject string) (string, error)
	Validate(raw string) (model.Credential, error)
}

// AuthService drives the auth channel.
type AuthService interface {
	// Serve runs one auth bridge until it reaches a terminal outcome.
	Serve(ctx context.Context, conn FrameConn) error
}

type AuthServiceImpl struct {
	backend backend.SessionBackend
	issuer  CredentialIssuer
	log     *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(b backend.SessionBackend, issuer CredentialIssuer, log *zap.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{backend: b, issuer: issuer, log: log}
}

var _ AuthService = (*AuthServiceImpl)(nil)

// Serve reads the start command, opens a backend session and races client
// control frames against backend status events until exactly one terminal
// outcome fires. A missing or wrong first frame aborts without a reply.
func (s *AuthServiceImpl) Serve(ctx context.Context, conn FrameConn) error {
	first, err := conn.ReadText()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read start: %w", err)
	}
	if protocol.ParseCommand(first) != protocol.CommandStart {
		return errs.ErrUnexpectedFrame
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := &bridge{svc: s, conn: conn, sess: model.AuthSession{State: model.AwaitingStart}}
	err = b.run(ctx)
	b.sess.State = model.Terminated
	s.log.Debug("auth bridge ended", zap.Stringer("state", b.sess.State), zap.Bool("session_started", b.sess.Token != ""))
	return err
}

// bridge is the state of a single auth connection.
type bridge struct {
	svc  *AuthServiceImpl
	conn FrameConn
	sess model.AuthSession
}

type statusEvent struct {
	status model.SessionStatus
	err    error
}

func (b *bridge) run(ctx context.Context) error {
	started, err := b.svc.backend.Start(ctx)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	b.sess.Session = started
	if err := b.send(protocol.QR(started.QRPayload)); err != nil {
		return err
	}

	stream, err := b.svc.backend.SubscribeStatus(ctx, started.Token)
	if err != nil {
		return fmt.Errorf("subscribe status: %w", err)
	}
	defer stream.Close()
	b.sess.State = model.Active

	clientCh := make(chan protocol.Command)
	statusCh := make(chan statusEvent)
	go pumpClient(ctx, b.conn, clientCh)
	go pumpStatus(ctx, stream, statusCh)

	for clientCh != nil || statusCh != nil {
		select {
		case cmd, ok := <-clientCh:
			if !ok {
				clientCh = nil
				continue
			}
			b.svc.log.Debug("client ended session", zap.Stringer("command", cmd))
			return b.svc.backend.Stop(ctx, b.sess.Token)

		case ev, ok := <-statusCh:
			if !ok {
				statusCh = nil
				continue
			}
			if ev.err != nil {
				return fmt.Errorf("status stream: %w", ev.err)
			}
			done, err := b.onStatus(ctx, ev.status)
			if err != nil || done {
				return err
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// onStatus forwards status and reports whether it was terminal.
func (b *bridge) onStatus(ctx context.Context, status model.SessionStatus) (bool, error) {
	if err := b.send(protocol.Status(status)); err != nil {
		return true, err
	}
	switch status {
	case model.StatusCancelled, model.StatusTimeout:
		return true, nil
	case model.StatusDone:
		return true, b.finish(ctx)
	}
	return false, nil
}

// finish verifies the proof and hands out a credential, or a generic error.
func (b *bridge) finish(ctx context.Context) error {
	identity, err := b.svc.backend.VerifyProof(ctx, b.sess.Token)
	if err != nil {
		if serr := b.send(protocol.Error(protocol.VerifyFailedPayload)); serr != nil {
			return errors.Join(err, serr)
		}
		return fmt.Errorf("verify proof: %w", err)
	}
	token, err := b.svc.issuer.Mint(identity)
	if err != nil {
		return fmt.Errorf("mint credential: %w", err)
	}
	return b.send(protocol.JWT(token))
}

func (b *bridge) send(m protocol.Message) error {
	text, err := m.Encode()
	if err != nil {
		return err
	}
	if err := b.conn.WriteText(text); err != nil {
		return fmt.Errorf("write %s: %w", m.Action, err)
	}
	return nil
}

// pumpClient reports a stop command or a close frame, then exits. Other frames
// are ignored. A transport error closes out without an event.
func pumpClient(ctx context.Context, conn FrameConn, out chan<- protocol.Command) {
	defer close(out)
	for {
		text, err := conn.ReadText()
		var cmd protocol.Command
		switch {
		case errors.Is(err, io.EOF):
			cmd = protocol.CommandClose
		case err != nil:
			return
		default:
			cmd = protocol.ParseCommand(text)
		}
		if cmd != protocol.CommandStop && cmd != protocol.CommandClose {
			continue
		}
		select {
		case out <- cmd:
		case <-ctx.Done():
		}
		return
	}
}

// pumpStatus forwards stream events until the stream ends or fails.
func pumpStatus(ctx context.Context, stream backend.StatusStream, out chan<- statusEvent) {
	defer close(out)
	for {
		status, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		select {
		case out <- statusEvent{status: status, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}
