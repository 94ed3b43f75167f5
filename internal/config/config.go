// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/hcservices/internal/gateway"
	"github.com/and161185/hcservices/internal/metrics"
	model "github.com/and161185/hcservices/internal/model"
)

// DefaultGatewayBase is the NAPIX gateway root for the High Court services.
const DefaultGatewayBase = "https://delhigw.napix.gov.in/nic/ecourts"

// Config is everything cmd/server and cmd/cli need.
type Config struct {
	Addr        string
	Credentials model.Credentials
	Endpoints   gateway.Endpoints

	AuthTimeout        time.Duration
	LookupTimeout      time.Duration
	OrderTimeout       time.Duration
	TokenTTL           time.Duration
	TokenRefreshMargin time.Duration

	CacheTTL     time.Duration
	SuggestDelay time.Duration
	RedisURL     string
	DatabaseDSN  string

	Debug bool
}

// FromEnv builds a Config from HC_* variables, falling back to defaults.
func FromEnv() (Config, error) {
	c := Config{
		Addr: env("HC_ADDR", ":8080"),
		Credentials: model.Credentials{
			AuthKey:      os.Getenv("HC_AUTH_KEY"),
			IV:           os.Getenv("HC_IV"),
			HMACKey:      os.Getenv("HC_HMAC_KEY"),
			ClientID:     os.Getenv("HC_CLIENT_ID"),
			ClientSecret: os.Getenv("HC_CLIENT_SECRET"),
			DeptID:       os.Getenv("HC_DEPT_ID"),
		},
		Endpoints: gateway.Endpoints{
			Token:  env("HC_TOKEN_URL", DefaultGatewayBase+"/oauth2/token"),
			Search: env("HC_SEARCH_URL", DefaultGatewayBase+"/hc-case-search-api/caseNumber-search"),
			CNR:    env("HC_CNR_URL", DefaultGatewayBase+"/hc-cnr-api/cnrFullCaseDetails"),
			Order:  env("HC_ORDER_URL", DefaultGatewayBase+"/hc-order-api/display-pdf"),
		},
		RedisURL:    os.Getenv("HC_REDIS_URL"),
		DatabaseDSN: os.Getenv("HC_DATABASE_DSN"),
	}

	durations := []struct {
		name string
		dst  *time.Duration
		def  time.Duration
	}{
		{"HC_AUTH_TIMEOUT", &c.AuthTimeout, gateway.DefaultAuthTimeout},
		{"HC_LOOKUP_TIMEOUT", &c.LookupTimeout, gateway.DefaultLookupTimeout},
		{"HC_ORDER_TIMEOUT", &c.OrderTimeout, gateway.DefaultOrderTimeout},
		{"HC_TOKEN_TTL", &c.TokenTTL, time.Minute},
		{"HC_TOKEN_REFRESH_MARGIN", &c.TokenRefreshMargin, gateway.DefaultTokenRefreshMargin},
		{"HC_CACHE_TTL", &c.CacheTTL, 5 * time.Minute},
		{"HC_SUGGEST_DELAY", &c.SuggestDelay, 1500 * time.Millisecond},
	}
	for _, d := range durations {
		v, err := duration(d.name, d.def)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	if s := os.Getenv("HC_DEBUG"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Config{}, fmt.Errorf("HC_DEBUG: %w", err)
		}
		c.Debug = b
	}
	return c, nil
}

// Validate checks the credential bundle.
func (c Config) Validate() error {
	return c.Credentials.Validate()
}

// GatewayOptions maps the config onto gateway options.
func (c Config) GatewayOptions(log *zap.Logger, m *metrics.Metrics) gateway.Options {
	return gateway.Options{
		Endpoints:          c.Endpoints,
		AuthTimeout:        c.AuthTimeout,
		LookupTimeout:      c.LookupTimeout,
		OrderTimeout:       c.OrderTimeout,
		TokenTTL:           c.TokenTTL,
		TokenRefreshMargin: c.TokenRefreshMargin,
		Logger:             log,
		Metrics:            m,
	}
}

func env(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// duration parses name as a Go duration; "0" is allowed and disables the feature where that applies.
func duration(name string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}
