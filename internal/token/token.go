// Package token mints and validates the application's short-lived HS256 chat credentials.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/irmachat/internal/errs"
	"github.com/and161185/irmachat/internal/model"
)

// DefaultTTL matches the lifetime granted to chat credentials when none is configured.
const DefaultTTL = time.Hour

const leeway = 30 * time.Second

// Issuer mints and validates HS256 bearer tokens carrying {sub, exp}.
type Issuer struct {
	signKey []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewIssuer constructs an Issuer. A non-positive ttl falls back to DefaultTTL.
func NewIssuer(signKey []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{signKey: signKey, ttl: ttl, now: time.Now}
}

// Mint creates a signed token for subject.
func (i *Issuer) Mint(subject string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(i.now().Add(i.ttl)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(i.signKey)
}

// Validate verifies signature, algorithm and expiry and returns the credential.
// Every failure matches errs.ErrUnauthorized plus one specific classification.
func (i *Issuer) Validate(raw string) (model.Credential, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errs.ErrTokenAlgorithm
		}
		return i.signKey, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return model.Credential{}, classify(err)
	}
	if claims.Subject == "" {
		return model.Credential{}, fmt.Errorf("%w: %w: empty subject", errs.ErrUnauthorized, errs.ErrTokenClaims)
	}
	return model.Credential{Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// classify maps jwt library errors onto the credential sentinels.
func classify(err error) error {
	var kind error
	switch {
	case errors.Is(err, errs.ErrTokenAlgorithm):
		kind = errs.ErrTokenAlgorithm
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		kind = errs.ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		kind = errs.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		kind = errs.ErrTokenMalformed
	default:
		kind = errs.ErrTokenClaims
	}
	return fmt.Errorf("%w: %w: %v", errs.ErrUnauthorized, kind, err)
}
