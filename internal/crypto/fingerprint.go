// Package crypto derives log-safe fingerprints of peer network addresses.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// fingerprintLen is the number of digest bytes kept (hex-encoded in logs).
const fingerprintLen = 8

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Fingerprinter maps remote addresses to stable, keyed digests so logs can
// correlate connections from the same host without storing raw addresses.
// The key lives only for the process lifetime.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter creates a Fingerprinter with a fresh random key.
func NewFingerprinter() (*Fingerprinter, error) {
	key, err := RandBytes(32)
	if err != nil {
		return nil, err
	}
	return &Fingerprinter{key: key}, nil
}

// Host fingerprints the host part of an address ("ip:port" or bare host).
func (f *Fingerprinter) Host(addr string) string {
	host := addr
	if i := strings.LastIndexByte(addr, ':'); i > 0 && !strings.HasSuffix(addr, "]") {
		host = addr[:i]
	}
	host = strings.Trim(host, "[]")
	h, _ := blake2b.New256(f.key) // key is always 32 bytes
	h.Write([]byte(host))
	return hex.EncodeToString(h.Sum(nil)[:fingerprintLen])
}
