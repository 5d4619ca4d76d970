package irma

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	disclosureContext = "https://irma.app/ld/request/disclosure/v2"
	disclosureSubject = "verification_request"
)

// disclosureRequest asks for one conjunction out of Disclose's disjunction.
type disclosureRequest struct {
	Context  string       `json:"@context"`
	Disclose [][][]string `json:"disclose"`
}

type extendedRequest struct {
	Validity uint64            `json:"validity"`
	Timeout  uint64            `json:"timeout"`
	Request  disclosureRequest `json:"request"`
}

// signedDisclosureRequest builds the requestor JWT for POST /session.
func (c *Client) signedDisclosureRequest() (string, error) {
	claims := jwt.MapClaims{
		"iat": c.now().Unix(),
		"sub": disclosureSubject,
		"sprequest": extendedRequest{
			Validity: c.validity,
			Timeout:  c.timeout,
			Request: disclosureRequest{
				Context:  disclosureContext,
				Disclose: [][][]string{c.attributes},
			},
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = c.appName
	return tok.SignedString(c.signKey)
}
