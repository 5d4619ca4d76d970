package limiter

import (
	"fmt"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(window time.Duration, maxFails int, blockFor time.Duration) (*Memory, *clock) {
	c := &clock{t: time.Unix(1700000000, 0)}
	l := NewMemory(window, maxFails, blockFor)
	l.now = c.now
	return l, c
}

func TestMemory_BlocksAfterMaxFails(t *testing.T) {
	t.Parallel()
	l, c := newTestLimiter(15*time.Minute, 3, 10*time.Minute)

	for i := 0; i < 2; i++ {
		if blocked, _ := l.Failure("k"); blocked {
			t.Fatalf("blocked too early at failure %d", i+1)
		}
	}
	if ok, _ := l.Allow("k"); !ok {
		t.Fatalf("should still be allowed below threshold")
	}
	blocked, d := l.Failure("k")
	if !blocked || d != 10*time.Minute {
		t.Fatalf("want block for 10m, got %v %v", blocked, d)
	}

	ok, retry := l.Allow("k")
	if ok || retry != 10*time.Minute {
		t.Fatalf("want blocked with retry 10m, got %v %v", ok, retry)
	}
	if ok, _ := l.Allow("other"); !ok {
		t.Fatalf("other keys must not be affected")
	}

	c.advance(10*time.Minute + time.Second)
	if ok, _ := l.Allow("k"); !ok {
		t.Fatalf("block should expire")
	}
}

func TestMemory_WindowResetsCount(t *testing.T) {
	t.Parallel()
	l, c := newTestLimiter(time.Minute, 2, time.Hour)

	l.Failure("k")
	c.advance(2 * time.Minute)
	if blocked, _ := l.Failure("k"); blocked {
		t.Fatalf("failures outside the window must not accumulate")
	}
	c.advance(30 * time.Second)
	if blocked, _ := l.Failure("k"); !blocked {
		t.Fatalf("two failures inside the window should block")
	}
}

func TestMemory_SuccessResets(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(time.Minute, 2, time.Hour)

	l.Failure("k")
	l.Success("k")
	if blocked, _ := l.Failure("k"); blocked {
		t.Fatalf("success should reset the count")
	}
}

func TestMemory_SweepDropsStaleEntries(t *testing.T) {
	t.Parallel()
	l, c := newTestLimiter(time.Minute, 100, time.Hour)

	for i := 0; i < sweepAt; i++ {
		l.Failure(fmt.Sprintf("k%d", i))
	}
	c.advance(2 * time.Minute)
	l.Failure("fresh")
	if n := len(l.entries); n != 1 {
		t.Fatalf("want stale entries swept, have %d", n)
	}
}

func TestHostKey(t *testing.T) {
	t.Parallel()

	if HostKey("10.0.0.1:4000") != HostKey("10.0.0.1:5000") {
		t.Fatalf("port must not affect the key")
	}
	if HostKey("[::1]:4000") != HostKey("::1") {
		t.Fatalf("bracketed IPv6 should match the bare host")
	}
	if HostKey("10.0.0.1:4000") == HostKey("10.0.0.2:4000") {
		t.Fatalf("different hosts must differ")
	}
	if len(HostKey("x")) != 64 {
		t.Fatalf("want hex sha256")
	}
}
