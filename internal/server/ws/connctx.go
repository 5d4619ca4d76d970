package wsserver

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const connIDKey ctxKey = "irmachat.connID"

// WithConnID stores the connection ID in context.
func WithConnID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, connIDKey, id)
}

// ConnIDFromCtx fetches the connection ID from context.
func ConnIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(connIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
