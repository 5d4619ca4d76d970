package irma

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/irmachat/internal/errs"
	"github.com/and161185/irmachat/internal/model"
)

type proofClaims struct {
	jwt.RegisteredClaims
	Attributes map[string]string `json:"attributes"`
	Status     model.ProofStatus `json:"status"`
}

// identityFromProof verifies the result JWT and assembles the identity.
func (c *Client) identityFromProof(raw string) (string, error) {
	var claims proofClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return c.verifyKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Minute),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", fmt.Errorf("verify proof: %w", err)
	}
	if claims.Status != model.ProofValid {
		return "", fmt.Errorf("%w: %s", errs.ErrInvalidProofStatus, claims.Status)
	}
	identity := Identity(claims.Attributes, c.attributes)
	if identity == "" {
		return "", errs.ErrMissingAttributes
	}
	return identity, nil
}

// Identity joins, in configured group order, the disclosed values of every
// configured attribute that is present.
func Identity(disclosed map[string]string, order [][]string) string {
	var parts []string
	for _, group := range order {
		for _, attr := range group {
			if v, ok := disclosed[attr]; ok {
				parts = append(parts, v)
			}
		}
	}
	return strings.Join(parts, " ")
}
