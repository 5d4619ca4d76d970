// Package config loads process configuration from the environment.
package config

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
)

// Attributes is a disjunction of conjunctions of attribute identifiers, e.g.
// [["pbdf.pbdf.idin.initials","pbdf.pbdf.idin.familyname"]]. Its order also
// defines how the verified identity is assembled.
type Attributes [][]string

// UnmarshalText decodes the JSON form used by IRMA_ATTRIBUTES.
func (a *Attributes) UnmarshalText(text []byte) error {
	var v [][]string
	if err := json.Unmarshal(text, &v); err != nil {
		return fmt.Errorf("attributes must be a JSON array of string arrays: %w", err)
	}
	*a = v
	return nil
}

// Config is the full runtime configuration.
type Config struct {
	AuthAddr string `env:"WS_HOST,required"`
	ChatAddr string `env:"CHAT_WS_HOST,required"`

	IrmaServer     string     `env:"IRMA_SERVER,required"`
	IrmaPubKeyFile string     `env:"IRMA_SERVER_JWT_PUBKEY_FILE,required"`
	Attributes     Attributes `env:"IRMA_ATTRIBUTES,required"`

	// Seconds, embedded in the signed disclosure request.
	SessionValidity uint64 `env:"IRMA_SESSION_VALIDITY" envDefault:"300"`
	SessionTimeout  uint64 `env:"IRMA_SESSION_TIMEOUT" envDefault:"300"`

	AppName        string        `env:"APP_NAME,required"`
	AppJWTKey      string        `env:"APP_JWT_KEY,required"`
	AppPrivKeyFile string        `env:"APP_JWT_PRIVKEY_FILE,required"`
	AppJWTTTL      time.Duration `env:"APP_JWT_TTL" envDefault:"1h"`

	AllowedOrigins  []string      `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	// Chat token lockout; zero failures disables it.
	ChatAuthMaxFailures int           `env:"CHAT_AUTH_MAX_FAILURES" envDefault:"5"`
	ChatAuthWindow      time.Duration `env:"CHAT_AUTH_WINDOW" envDefault:"15m"`
	ChatAuthBlock       time.Duration `env:"CHAT_AUTH_BLOCK" envDefault:"15m"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from the given variables only.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.IrmaServer = strings.TrimRight(strings.TrimSpace(c.IrmaServer), "/")
	if c.IrmaServer == "" {
		return errors.New("IRMA_SERVER is empty")
	}
	if c.AppJWTKey == "" {
		return errors.New("APP_JWT_KEY is empty")
	}
	if len(c.Attributes) == 0 {
		return errors.New("IRMA_ATTRIBUTES must contain at least one attribute group")
	}
	for i, group := range c.Attributes {
		if len(group) == 0 {
			return fmt.Errorf("IRMA_ATTRIBUTES group %d is empty", i)
		}
		for _, attr := range group {
			if strings.TrimSpace(attr) == "" {
				return fmt.Errorf("IRMA_ATTRIBUTES group %d has an empty identifier", i)
			}
		}
	}
	if c.ChatAuthMaxFailures < 0 {
		return errors.New("CHAT_AUTH_MAX_FAILURES must not be negative")
	}
	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
	return nil
}

// Keys holds the RSA keys used to talk to the credential backend.
type Keys struct {
	// AppPrivate signs disclosure requests.
	AppPrivate *rsa.PrivateKey
	// BackendPublic verifies disclosure proofs.
	BackendPublic *rsa.PublicKey
}

// LoadKeys reads and parses both PEM key files.
func LoadKeys(c Config) (Keys, error) {
	privPEM, err := os.ReadFile(c.AppPrivKeyFile)
	if err != nil {
		return Keys{}, fmt.Errorf("read APP_JWT_PRIVKEY_FILE: %w", err)
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return Keys{}, fmt.Errorf("parse APP_JWT_PRIVKEY_FILE: %w", err)
	}
	pubPEM, err := os.ReadFile(c.IrmaPubKeyFile)
	if err != nil {
		return Keys{}, fmt.Errorf("read IRMA_SERVER_JWT_PUBKEY_FILE: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return Keys{}, fmt.Errorf("parse IRMA_SERVER_JWT_PUBKEY_FILE: %w", err)
	}
	return Keys{AppPrivate: priv, BackendPublic: pub}, nil
}
