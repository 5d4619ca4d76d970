// Package irma implements the credential backend contract against an IRMA server's
// requestor REST and Server-Sent-Events API.
package irma

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/irmachat/internal/backend"
	"github.com/and161185/irmachat/internal/errs"
	"github.com/and161185/irmachat/internal/model"
	"github.com/and161185/irmachat/internal/protocol"
)

const (
	requestTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	AppName    string // key id of SigningKey, as registered with the server
	SigningKey *rsa.PrivateKey
	VerifyKey  *rsa.PublicKey
	Attributes [][]string

	// Validity and Timeout are seconds, copied into each disclosure request.
	Validity uint64
	Timeout  uint64

	// HTTP defaults to a client without an overall timeout; status streams are long-lived.
	HTTP *http.Client
}

// Client talks to one IRMA server.
type Client struct {
	base       string
	appName    string
	signKey    *rsa.PrivateKey
	verifyKey  *rsa.PublicKey
	attributes [][]string
	validity   uint64
	timeout    uint64
	http       *http.Client
	log        *zap.Logger
	now        func() time.Time
}

var _ backend.SessionBackend = (*Client)(nil)

// New constructs a Client.
func New(opts Options, log *zap.Logger) *Client {
	hc := opts.HTTP
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		base:       strings.TrimRight(opts.BaseURL, "/"),
		appName:    opts.AppName,
		signKey:    opts.SigningKey,
		verifyKey:  opts.VerifyKey,
		attributes: opts.Attributes,
		validity:   opts.Validity,
		timeout:    opts.Timeout,
		http:       hc,
		log:        log,
		now:        time.Now,
	}
}

type sessionPointer struct {
	U      string `json:"u"`
	IrmaQR string `json:"irmaqr"`
}

type sessionResponse struct {
	Token      string         `json:"token"`
	SessionPtr sessionPointer `json:"sessionPtr"`
}

// Start signs a disclosure request and opens a session with it.
func (c *Client) Start(ctx context.Context) (model.Session, error) {
	signed, err := c.signedDisclosureRequest()
	if err != nil {
		return model.Session{}, fmt.Errorf("sign disclosure request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/session", strings.NewReader(signed))
	if err != nil {
		return model.Session{}, err
	}
	req.Header.Set("Content-Type", "text/plain")

	var out sessionResponse
	if err := c.doJSON(req, &out); err != nil {
		return model.Session{}, fmt.Errorf("start session: %w", err)
	}
	if out.Token == "" {
		return model.Session{}, fmt.Errorf("start session: %w: empty token", errs.ErrBackend)
	}
	switch out.SessionPtr.IrmaQR {
	case "disclosing", "signing", "issuing":
	default:
		return model.Session{}, fmt.Errorf("start session: %w: unknown session type %q", errs.ErrBackend, out.SessionPtr.IrmaQR)
	}

	qr, err := protocol.Marshal(out.SessionPtr)
	if err != nil {
		return model.Session{}, err
	}
	c.log.Debug("irma session started", zap.String("token", out.Token))
	return model.Session{Token: out.Token, QRPayload: qr}, nil
}

// Stop cancels a session.
func (c *Client) Stop(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.sessionURL(token, ""), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	_ = resp.Body.Close()
	c.log.Debug("irma session stopped", zap.String("token", token))
	return nil
}

// SubscribeStatus opens the session's statusevents stream. The stream lives until
// the server ends it, ctx is cancelled, or Close is called.
func (c *Client) SubscribeStatus(ctx context.Context, token string) (backend.StatusStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sessionURL(token, "/statusevents"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("subscribe status: %w", err)
	}
	return newStatusStream(resp.Body, c.log), nil
}

// VerifyProof fetches the session result JWT and derives the identity from it.
func (c *Client) VerifyProof(ctx context.Context, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sessionURL(token, "/getproof"), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("get proof: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("get proof: %w", err)
	}
	return c.identityFromProof(strings.TrimSpace(string(raw)))
}

func (c *Client) sessionURL(token, suffix string) string {
	return c.base + "/session/" + url.PathEscape(token) + suffix
}

// do executes req and turns non-2xx responses into ErrBackend.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: %s", errs.ErrBackend, req.Method, req.URL.Path, resp.Status)
	}
	return resp, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out)
}
