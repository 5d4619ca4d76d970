package limiter

import (
	"sync"
	"time"
)

// sweepAt is the table size above which stale entries are pruned.
const sweepAt = 1024

// Memory is an in-process limiter. Failures further apart than window restart
// the count; reaching maxFails blocks the key for blockFor.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*entry
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

type entry struct {
	fails        int
	lastFailure  time.Time
	blockedUntil time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		entries:  make(map[string]*entry),
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
	}
}

var _ Limiter = (*Memory)(nil)

// Allow reports whether key is currently allowed and a retry-after duration.
func (l *Memory) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return true, 0
	}
	if now := l.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now)
	}
	return true, 0
}

// Success forgets key.
func (l *Memory) Success(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Failure records a failed attempt; reaching the threshold blocks key.
func (l *Memory) Failure(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= sweepAt {
			l.sweepLocked(now)
		}
		e = &entry{}
		l.entries[key] = e
	}
	if now.Sub(e.lastFailure) > l.window {
		e.fails = 0
	}
	e.fails++
	e.lastFailure = now
	if e.fails >= l.maxFails {
		e.blockedUntil = now.Add(l.blockFor)
		e.fails = 0
		return true, l.blockFor
	}
	return false, 0
}

func (l *Memory) sweepLocked(now time.Time) {
	for k, e := range l.entries {
		if !e.blockedUntil.After(now) && now.Sub(e.lastFailure) > l.window {
			delete(l.entries, k)
		}
	}
}
