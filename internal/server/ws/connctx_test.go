package wsserver

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
)

func TestWithConnID_And_ConnIDFromCtx(t *testing.T) {
	t.Parallel()

	if id, ok := ConnIDFromCtx(context.Background()); ok || id != uuid.Nil {
		t.Fatalf("expected no conn id in empty ctx")
	}

	want := uuid.Must(uuid.NewV4())
	got, ok := ConnIDFromCtx(WithConnID(context.Background(), want))
	if !ok {
		t.Fatalf("expected conn id in ctx")
	}
	if got != want {
		t.Fatalf("mismatch: got %s, want %s", got, want)
	}

	bad := context.WithValue(context.Background(), connIDKey, "not-uuid")
	if id, ok := ConnIDFromCtx(bad); ok || id != uuid.Nil {
		t.Fatalf("expected miss on wrong typed value")
	}
}
