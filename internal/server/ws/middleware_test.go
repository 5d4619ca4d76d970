package wsserver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/irmachat/internal/crypto"
	"github.com/and161185/irmachat/internal/service"
)

type stubConn struct{ addr string }

var _ service.FrameConn = stubConn{}

func (stubConn) ReadText() (string, error) { return "", errors.New("not readable") }
func (stubConn) WriteText(string) error    { return nil }
func (c stubConn) Addr() string            { return c.addr }
func (stubConn) Close() error              { return nil }

func newFingerprinter(t *testing.T) *crypto.Fingerprinter {
	t.Helper()
	fp, err := crypto.NewFingerprinter()
	if err != nil {
		t.Fatalf("fingerprinter: %v", err)
	}
	return fp
}

func TestLoggingConn_MetadataOnly(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	fp := newFingerprinter(t)
	ic := LoggingConn(zap.New(core), "chat", fp)

	id := uuid.Must(uuid.NewV4())
	ctx := WithConnID(context.Background(), id)
	conn := stubConn{addr: "192.0.2.10:51000"}

	wantErr := errors.New("boom")
	err := ic(ctx, conn, func(context.Context, service.FrameConn) error {
		time.Sleep(2 * time.Millisecond)
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("want original error, got %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["listener"] != "chat" || fields["conn"] != id.String() {
		t.Fatalf("bad fields: %v", fields)
	}
	if fields["peer"] != fp.Host(conn.addr) {
		t.Fatalf("peer field %v is not the fingerprint", fields["peer"])
	}
	for k, v := range fields {
		if s, ok := v.(string); ok && strings.Contains(s, "192.0.2.10") {
			t.Fatalf("raw address leaked in field %s", k)
		}
	}
	if d, ok := fields["dur"].(time.Duration); !ok || d < 2*time.Millisecond {
		t.Fatalf("duration should reflect handler time, got %v", fields["dur"])
	}
	if fields["error"] != "boom" {
		t.Fatalf("error field missing: %v", fields)
	}
}

func TestRecoverConn_CatchesPanic(t *testing.T) {
	t.Parallel()

	ic := RecoverConn(zaptest.NewLogger(t))
	err := ic(context.Background(), stubConn{}, func(context.Context, service.FrameConn) error {
		panic("oh no")
	})
	if err == nil || !strings.Contains(err.Error(), "oh no") {
		t.Fatalf("want panic turned into error, got %v", err)
	}
}

func TestRecoverConn_NoPanicPassThrough(t *testing.T) {
	t.Parallel()

	ic := RecoverConn(zaptest.NewLogger(t))
	wantErr := errors.New("plain")
	err := ic(context.Background(), stubConn{}, func(context.Context, service.FrameConn) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("want passthrough, got %v", err)
	}
}

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var trace []string
	mark := func(name string) Interceptor {
		return func(ctx context.Context, conn service.FrameConn, next ConnHandler) error {
			trace = append(trace, name+">")
			err := next(ctx, conn)
			trace = append(trace, "<"+name)
			return err
		}
	}
	h := Chain(func(context.Context, service.FrameConn) error {
		trace = append(trace, "handler")
		return nil
	}, mark("outer"), mark("inner"))

	if err := h(context.Background(), stubConn{}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := "outer> inner> handler <inner <outer"
	if got := strings.Join(trace, " "); got != want {
		t.Fatalf("trace = %q, want %q", got, want)
	}
}
