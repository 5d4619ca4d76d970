package model

import (
	"errors"
	"testing"

	"github.com/and161185/irmachat/internal/errs"
)

func TestParseSessionStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []SessionStatus{StatusInitialized, StatusConnected, StatusCancelled, StatusDone, StatusTimeout} {
		got, err := ParseSessionStatus(s.String())
		if err != nil || got != s {
			t.Fatalf("parse %q: got %q err=%v", s, got, err)
		}
	}

	for _, bad := range []string{"", "done", `"DONE"`, "PAIRING"} {
		if _, err := ParseSessionStatus(bad); !errors.Is(err, errs.ErrStatusParse) {
			t.Fatalf("parse %q: want ErrStatusParse, got %v", bad, err)
		}
	}
}

func TestAuthState_String(t *testing.T) {
	t.Parallel()

	if AwaitingStart.String() != "awaiting_start" || Active.String() != "active" || Terminated.String() != "terminated" {
		t.Fatalf("unexpected state names")
	}
	if AuthState(42).String() != "unknown" {
		t.Fatalf("want unknown for out-of-range state")
	}
}
