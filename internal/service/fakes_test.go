package service

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/and161185/irmachat/internal/backend"
	"github.com/and161185/irmachat/internal/model"
)

// fakeConn feeds frames from in and collects writes on out. Closing in
// reports a close frame, or readErr if set.
type fakeConn struct {
	addr     string
	in       chan string
	out      chan string
	readErr  error
	writeErr error

	closed    chan struct{}
	closeOnce sync.Once
}

var _ FrameConn = (*fakeConn)(nil)

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{
		addr:   addr,
		in:     make(chan string, 16),
		out:    make(chan string, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadText() (string, error) {
	select {
	case s, ok := <-c.in:
		if !ok {
			if c.readErr != nil {
				return "", c.readErr
			}
			return "", io.EOF
		}
		return s, nil
	case <-c.closed:
		return "", net.ErrClosed
	}
}

func (c *fakeConn) WriteText(text string) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.out <- text
	return nil
}

func (c *fakeConn) Addr() string { return c.addr }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func recv(t *testing.T, c *fakeConn) string {
	t.Helper()
	select {
	case s := <-c.out:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a frame on %s", c.addr)
	}
	return ""
}

func expectSilence(t *testing.T, c *fakeConn) {
	t.Helper()
	select {
	case s := <-c.out:
		t.Fatalf("unexpected frame on %s: %s", c.addr, s)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeStream replays events; closing events ends the stream with io.EOF or err.
type fakeStream struct {
	events chan model.SessionStatus
	err    error

	closed    chan struct{}
	closeOnce sync.Once
}

var _ backend.StatusStream = (*fakeStream)(nil)

func newFakeStream(events ...model.SessionStatus) *fakeStream {
	ch := make(chan model.SessionStatus, len(events)+1)
	for _, e := range events {
		ch <- e
	}
	return &fakeStream{events: ch, closed: make(chan struct{})}
}

func (s *fakeStream) Next() (model.SessionStatus, error) {
	select {
	case e, ok := <-s.events:
		if !ok {
			if s.err != nil {
				return "", s.err
			}
			return "", io.EOF
		}
		return e, nil
	case <-s.closed:
		return "", errors.New("stream closed")
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeBackend struct {
	mu sync.Mutex

	session      model.Session
	startErr     error
	stream       *fakeStream
	subscribeErr error
	identity     string
	verifyErr    error
	stopErr      error

	startCalls  int
	stopCalls   int
	verifyCalls int
	stoppedWith string
}

var _ backend.SessionBackend = (*fakeBackend)(nil)

func (b *fakeBackend) Start(context.Context) (model.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startCalls++
	return b.session, b.startErr
}

func (b *fakeBackend) Stop(_ context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopCalls++
	b.stoppedWith = token
	return b.stopErr
}

func (b *fakeBackend) VerifyProof(context.Context, string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verifyCalls++
	return b.identity, b.verifyErr
}

func (b *fakeBackend) SubscribeStatus(context.Context, string) (backend.StatusStream, error) {
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	return b.stream, nil
}

func (b *fakeBackend) calls() (start, stop, verify int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startCalls, b.stopCalls, b.verifyCalls
}
