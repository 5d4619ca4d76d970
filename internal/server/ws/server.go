// Package wsserver exposes the auth and chat services over WebSocket listeners.
package wsserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/irmachat/internal/crypto"
	"github.com/and161185/irmachat/internal/service"
)

const (
	readHeaderTimeout      = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// ErrOriginNotAllowed rejects a handshake from an origin outside the allow list.
var ErrOriginNotAllowed = errors.New("origin not allowed")

// Options configures the listeners.
type Options struct {
	AuthAddr        string
	ChatAddr        string
	AllowedOrigins  []string // empty accepts any origin
	ShutdownTimeout time.Duration
}

// Server runs the auth and chat listeners side by side.
type Server struct {
	auth            *http.Server
	chat            *http.Server
	shutdownTimeout time.Duration
	log             *zap.Logger
}

// New wires both services into their listeners.
func New(opts Options, auth service.AuthService, chat service.ChatService, fp *crypto.Fingerprinter, log *zap.Logger) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Server{
		auth: &http.Server{
			Addr:              opts.AuthAddr,
			Handler:           Handler("auth", auth.Serve, opts.AllowedOrigins, fp, log),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		chat: &http.Server{
			Addr:              opts.ChatAddr,
			Handler:           Handler("chat", chat.Serve, opts.AllowedOrigins, fp, log),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		shutdownTimeout: opts.ShutdownTimeout,
		log:             log,
	}
}

// Handler upgrades every request on any path to a WebSocket and runs serve on it.
// Each connection gets an ID, a panic guard and a completion log line.
func Handler(listener string, serve ConnHandler, origins []string, fp *crypto.Fingerprinter, log *zap.Logger) http.Handler {
	h := Chain(serve, LoggingConn(log, listener, fp), RecoverConn(log))
	return websocket.Server{
		Handshake: originPolicy(origins),
		Handler: func(ws *websocket.Conn) {
			id, err := uuid.NewV4()
			if err != nil {
				log.Error("conn id", zap.Error(err))
				return
			}
			ctx := WithConnID(ws.Request().Context(), id)
			c := newConn(ws)
			defer c.Close()
			_ = h(ctx, c)
		},
	}
}

// originPolicy accepts any origin when allowed is empty, otherwise only the
// listed scheme://host values.
func originPolicy(allowed []string) func(*websocket.Config, *http.Request) error {
	return func(cfg *websocket.Config, req *http.Request) error {
		origin, err := websocket.Origin(cfg, req)
		if err != nil {
			return err
		}
		cfg.Origin = origin
		if len(allowed) == 0 {
			return nil
		}
		if origin == nil {
			return ErrOriginNotAllowed
		}
		if !slices.Contains(allowed, origin.Scheme+"://"+origin.Host) {
			return fmt.Errorf("%w: %s", ErrOriginNotAllowed, origin)
		}
		return nil
	}
}

// ListenAndServe binds both listeners and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	authLis, err := net.Listen("tcp", s.auth.Addr)
	if err != nil {
		return fmt.Errorf("listen auth: %w", err)
	}
	chatLis, err := net.Listen("tcp", s.chat.Addr)
	if err != nil {
		_ = authLis.Close()
		return fmt.Errorf("listen chat: %w", err)
	}
	return s.Serve(ctx, authLis, chatLis)
}

// Serve runs both listeners until ctx ends or one of them fails, then shuts
// both down. Connection contexts derive from ctx, so live sessions end too.
func (s *Server) Serve(ctx context.Context, authLis, chatLis net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range []struct {
		name string
		srv  *http.Server
		lis  net.Listener
	}{
		{"auth", s.auth, authLis},
		{"chat", s.chat, chatLis},
	} {
		l := l
		l.srv.BaseContext = func(net.Listener) context.Context { return gctx }
		g.Go(func() error { return s.serve(gctx, l.name, l.srv, l.lis) })
	}
	return g.Wait()
}

func (s *Server) serve(ctx context.Context, name string, srv *http.Server, lis net.Listener) error {
	serveErr := make(chan error, 1)
	s.log.Info("listening", zap.String("listener", name), zap.String("addr", lis.Addr().String()))
	go func() {
		serveErr <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := srv.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown %s: %w", name, err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", name, err)
	}
}

// conn adapts a websocket connection to service.FrameConn.
type conn struct {
	ws  *websocket.Conn
	wmu sync.Mutex
}

var _ service.FrameConn = (*conn)(nil)

func newConn(ws *websocket.Conn) *conn {
	return &conn{ws: ws}
}

// ReadText returns the next message; a close frame yields io.EOF.
func (c *conn) ReadText() (string, error) {
	var text string
	err := websocket.Message.Receive(c.ws, &text)
	return text, err
}

func (c *conn) WriteText(text string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return websocket.Message.Send(c.ws, text)
}

// Addr is the client's ip:port; the websocket's own RemoteAddr is its origin.
func (c *conn) Addr() string { return c.ws.Request().RemoteAddr }

func (c *conn) Close() error { return c.ws.Close() }
