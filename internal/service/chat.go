package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/irmachat/internal/errs"
	"github.com/and161185/irmachat/internal/limiter"
	"github.com/and161185/irmachat/internal/model"
	"github.com/and161185/irmachat/internal/protocol"
)

// ChatService admits authenticated peers and relays their messages.
type ChatService interface {
	// Serve authenticates conn by its first frame and relays until it ends.
	Serve(ctx context.Context, conn FrameConn) error
	// Len is the number of live authenticated peers.
	Len() int
	// Identities lists the identities of live peers, sorted.
	Identities() []string
}

// ChatRegistry is the process-wide peer map. The lock covers map access and
// queue pushes only; socket writes happen in each peer's own drain loop.
type ChatRegistry struct {
	mu     sync.Mutex
	peers  map[string]*peer
	issuer CredentialIssuer
	lim    limiter.Limiter
	log    *zap.Logger
	now    func() time.Time
}

type peer struct {
	identity string
	queue    *outbox
}

// NewChatRegistry constructs an empty registry. lim may be nil to disable
// lockouts after failed token checks.
func NewChatRegistry(issuer CredentialIssuer, lim limiter.Limiter, log *zap.Logger) *ChatRegistry {
	return &ChatRegistry{
		peers:  make(map[string]*peer),
		issuer: issuer,
		lim:    lim,
		log:    log,
		now:    time.Now,
	}
}

var _ ChatService = (*ChatRegistry)(nil)

// Serve reads the bearer token, registers the peer and runs fan-in and drain
// until either ends. Rejected connections get a single error frame and are
// never registered.
func (r *ChatRegistry) Serve(ctx context.Context, conn FrameConn) error {
	raw, err := conn.ReadText()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read token: %w", err)
	}
	addr := conn.Addr()
	cred, err := r.admit(addr, raw)
	if err != nil {
		if serr := r.reject(conn); serr != nil {
			return errors.Join(err, serr)
		}
		return fmt.Errorf("admit peer: %w", err)
	}

	p := &peer{identity: cred.Subject, queue: newOutbox()}
	if err := r.join(addr, p); err != nil {
		return err
	}
	defer r.leave(addr, p)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.fanIn(conn, addr, p.identity) })
	g.Go(func() error { return drain(gctx, conn, p.queue) })
	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, io.EOF) || ctx.Err() != nil {
		return nil
	}
	return err
}

// Len reports the number of registered peers.
func (r *ChatRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Identities returns the identities of registered peers in sorted order.
func (r *ChatRegistry) Identities() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p.identity)
	}
	r.mu.Unlock()
	slices.Sort(out)
	return out
}

// admit validates raw unless the peer's host is locked out. Blocked hosts
// are refused without the token being looked at.
func (r *ChatRegistry) admit(addr, raw string) (model.Credential, error) {
	if r.lim == nil {
		return r.issuer.Validate(raw)
	}
	key := limiter.HostKey(addr)
	if ok, retry := r.lim.Allow(key); !ok {
		return model.Credential{}, fmt.Errorf("%w: retry in %s", errs.ErrTooManyAttempts, retry.Round(time.Second))
	}
	cred, err := r.issuer.Validate(raw)
	if err != nil {
		if blocked, d := r.lim.Failure(key); blocked {
			r.log.Warn("host blocked after failed token checks", zap.Duration("for", d))
		}
		return model.Credential{}, err
	}
	r.lim.Success(key)
	return cred, nil
}

func (r *ChatRegistry) reject(conn FrameConn) error {
	text, err := protocol.ChatError{Error: protocol.AuthFailedPayload}.Encode()
	if err != nil {
		return err
	}
	return conn.WriteText(text)
}

// join inserts p and, under the same lock, queues a join notice for every peer.
func (r *ChatRegistry) join(addr string, p *peer) error {
	self, other, err := r.encode(p.identity, nil)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.peers[addr]; dup {
		return fmt.Errorf("%w: %s", errs.ErrDuplicatePeer, addr)
	}
	r.peers[addr] = p
	r.enqueueLocked(addr, self, other)
	r.log.Debug("peer joined", zap.Int("peers", len(r.peers)))
	return nil
}

// leave removes the entry for addr if it still belongs to p.
func (r *ChatRegistry) leave(addr string, p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.peers[addr]; ok && cur == p {
		delete(r.peers, addr)
	}
	r.log.Debug("peer left", zap.Int("peers", len(r.peers)))
}

// fanIn broadcasts every inbound frame. It returns io.EOF on a close frame.
func (r *ChatRegistry) fanIn(conn FrameConn, addr, identity string) error {
	for {
		text, err := conn.ReadText()
		if err != nil {
			return err
		}
		self, other, err := r.encode(identity, &text)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.enqueueLocked(addr, self, other)
		r.mu.Unlock()
	}
}

// encode renders the sender's and everyone else's view of one message.
func (r *ChatRegistry) encode(user string, msg *string) (self, other string, err error) {
	m := protocol.ChatMessage{User: user, Time: r.now().Unix(), ItsMe: true, Msg: msg}
	if self, err = m.Encode(); err != nil {
		return "", "", err
	}
	m.ItsMe = false
	if other, err = m.Encode(); err != nil {
		return "", "", err
	}
	return self, other, nil
}

func (r *ChatRegistry) enqueueLocked(sender, self, other string) {
	for addr, p := range r.peers {
		if addr == sender {
			p.queue.push(self)
		} else {
			p.queue.push(other)
		}
	}
}

// drain writes queued frames in order until a write fails or ctx ends.
func drain(ctx context.Context, conn FrameConn, q *outbox) error {
	for {
		batch, err := q.take(ctx)
		if err != nil {
			return err
		}
		for _, text := range batch {
			if err := conn.WriteText(text); err != nil {
				return fmt.Errorf("write chat frame: %w", err)
			}
		}
	}
}

// outbox is an unbounded FIFO with a non-blocking push.
type outbox struct {
	mu    sync.Mutex
	items []string
	ready chan struct{}
}

func newOutbox() *outbox {
	return &outbox{ready: make(chan struct{}, 1)}
}

func (o *outbox) push(text string) {
	o.mu.Lock()
	o.items = append(o.items, text)
	o.mu.Unlock()
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// take blocks until at least one item is queued and returns all of them.
func (o *outbox) take(ctx context.Context) ([]string, error) {
	for {
		o.mu.Lock()
		items := o.items
		o.items = nil
		o.mu.Unlock()
		if len(items) > 0 {
			return items, nil
		}
		select {
		case <-o.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
