// Package limiter throttles repeated credential failures per client host.
package limiter

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"time"
)

// Limiter controls admission attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether an attempt is currently allowed and the optional retry-after.
	Allow(key string) (bool, time.Duration)
	// Success resets counters after an accepted attempt.
	Success(key string)
	// Failure records a rejected attempt; may place a temporary block.
	Failure(key string) (bool, time.Duration)
}

// HostKey returns a stable hash of the host part of addr so raw addresses are not kept.
func HostKey(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	h := sha256.Sum256([]byte(host))
	return hex.EncodeToString(h[:])
}
