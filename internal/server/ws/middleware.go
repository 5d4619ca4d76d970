package wsserver

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/irmachat/internal/crypto"
	"github.com/and161185/irmachat/internal/service"
)

// ConnHandler serves one accepted connection until it ends.
type ConnHandler func(ctx context.Context, conn service.FrameConn) error

// Interceptor wraps a ConnHandler.
type Interceptor func(ctx context.Context, conn service.FrameConn, next ConnHandler) error

// Chain applies interceptors around h; the first one is outermost.
func Chain(h ConnHandler, ics ...Interceptor) ConnHandler {
	for i := len(ics) - 1; i >= 0; i-- {
		ic, next := ics[i], h
		h = func(ctx context.Context, conn service.FrameConn) error {
			return ic(ctx, conn, next)
		}
	}
	return h
}

// LoggingConn logs one line per finished connection.
func LoggingConn(log *zap.Logger, listener string, fp *crypto.Fingerprinter) Interceptor {
	return func(ctx context.Context, conn service.FrameConn, next ConnHandler) error {
		start := time.Now()
		err := next(ctx, conn)

		id, _ := ConnIDFromCtx(ctx)
		// metadata only, never frame contents
		fields := []zap.Field{
			zap.String("listener", listener),
			zap.String("conn", id.String()),
			zap.String("peer", fp.Host(conn.Addr())),
			zap.Duration("dur", time.Since(start)),
		}
		if err != nil {
			log.Info("ws closed", append(fields, zap.Error(err))...)
		} else {
			log.Info("ws closed", fields...)
		}
		return err
	}
}

// RecoverConn turns a panic in the handler into an error.
func RecoverConn(log *zap.Logger) Interceptor {
	return func(ctx context.Context, conn service.FrameConn, next ConnHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				id, _ := ConnIDFromCtx(ctx)
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("conn", id.String()),
				)
				err = fmt.Errorf("connection handler panic: %v", r)
			}
		}()
		return next(ctx, conn)
	}
}
