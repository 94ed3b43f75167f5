// Package gateway implements the High Court case gateway client: OAuth2 client-credentials
// authentication, signed and encrypted lookup requests, and decryption of lookup answers.
package gateway

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/hcservices/internal/metrics"
)

// Endpoints are the fixed gateway URLs.
type Endpoints struct {
	Token  string
	Search string
	CNR    string
	Order  string
}

// Options configure the authenticator and client. Zero values take defaults.
type Options struct {
	Endpoints Endpoints
	Scope     string
	Version   string

	AuthTimeout   time.Duration
	LookupTimeout time.Duration
	OrderTimeout  time.Duration

	// TokenTTL is the fallback token lifetime when the gateway reports none; <= 0 disables token reuse.
	TokenTTL           time.Duration
	TokenRefreshMargin time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Defaults
const (
	DefaultScope              = "napix"
	DefaultAuthTimeout        = 5 * time.Second
	DefaultLookupTimeout      = 8 * time.Second
	DefaultOrderTimeout       = 20 * time.Second
	DefaultTokenRefreshMargin = 30 * time.Second

	maxBodyBytes = 32 << 20
)

func (o Options) withDefaults() Options {
	if o.Scope == "" {
		o.Scope = DefaultScope
	}
	if o.Version == "" {
		o.Version = APIVersion
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = DefaultAuthTimeout
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = DefaultLookupTimeout
	}
	if o.OrderTimeout <= 0 {
		o.OrderTimeout = DefaultOrderTimeout
	}
	switch {
	case o.TokenRefreshMargin == 0:
		o.TokenRefreshMargin = DefaultTokenRefreshMargin
	case o.TokenRefreshMargin < 0:
		o.TokenRefreshMargin = 0
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
