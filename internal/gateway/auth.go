package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/hcservices/internal/errs"
	"github.com/and161185/hcservices/internal/metrics"
	model "github.com/and161185/hcservices/internal/model"
)

// TokenSource hands out gateway bearer tokens.
type TokenSource interface {
	// AccessToken returns a token usable for one lookup round trip.
	AccessToken(ctx context.Context) (string, error)
	// Invalidate drops token from any cache so the next call fetches a fresh one.
	Invalidate(token string)
}

// Authenticator obtains tokens with the OAuth2 client-credentials grant.
//
// With a positive TokenTTL the token is reused until shortly before it expires and concurrent
// callers share one refresh; otherwise every call performs a fresh token request.
type Authenticator struct {
	http     *http.Client
	tokenURL string
	scope    string
	basic    string
	timeout  time.Duration
	ttl      time.Duration
	margin   time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.Mutex
	cur   model.AccessToken
	group singleflight.Group
}

var _ TokenSource = (*Authenticator)(nil)

// NewAuthenticator constructs an Authenticator for creds.
func NewAuthenticator(creds model.Credentials, opts Options) *Authenticator {
	o := opts.withDefaults()
	return &Authenticator{
		http:     o.HTTPClient,
		tokenURL: o.Endpoints.Token,
		scope:    o.Scope,
		basic:    base64.StdEncoding.EncodeToString([]byte(creds.ClientID + ":" + creds.ClientSecret)),
		timeout:  o.AuthTimeout,
		ttl:      o.TokenTTL,
		margin:   o.TokenRefreshMargin,
		log:      o.Logger,
		metrics:  o.Metrics,
		now:      time.Now,
	}
}

// AccessToken returns a cached unexpired token or fetches a new one.
func (a *Authenticator) AccessToken(ctx context.Context) (string, error) {
	if a.ttl <= 0 {
		tok, err := a.fetch(ctx)
		if err != nil {
			return "", err
		}
		return tok.Token, nil
	}

	a.mu.Lock()
	cur := a.cur
	a.mu.Unlock()
	if cur.Valid(a.now()) {
		return cur.Token, nil
	}

	// the shared fetch outlives any single caller; its own timeout bounds it
	ch := a.group.DoChan("token", func() (any, error) {
		tok, err := a.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.cur = tok
		a.mu.Unlock()
		return tok.Token, nil
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", errs.ErrAuthentication, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate forgets token if it is the cached one.
func (a *Authenticator) Invalidate(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur.Token == token {
		a.cur = model.AccessToken{}
	}
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   json.Number `json:"expires_in"`
}

func (a *Authenticator) fetch(ctx context.Context) (model.AccessToken, error) {
	tok, err := a.request(ctx)
	a.metrics.ObserveToken(errs.Kind(err))
	if err != nil {
		a.log.Warn("token fetch failed", zap.Error(err))
		return model.AccessToken{}, err
	}
	return tok, nil
}

func (a *Authenticator) request(ctx context.Context) (model.AccessToken, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	form := url.Values{"scope": {a.scope}, "grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return model.AccessToken{}, fmt.Errorf("%w: %v", errs.ErrAuthentication, err)
	}
	req.Header.Set("Authorization", "Basic "+a.basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return model.AccessToken{}, fmt.Errorf("%w: %w: %w", errs.ErrAuthentication, errs.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.AccessToken{}, fmt.Errorf("%w: %w: %w", errs.ErrAuthentication, errs.ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.AccessToken{}, fmt.Errorf("%w: %w", errs.ErrAuthentication,
			&errs.StatusError{Code: resp.StatusCode, Body: snippet(body)})
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return model.AccessToken{}, fmt.Errorf("%w: token response: %v", errs.ErrAuthentication, err)
	}
	if tr.AccessToken == "" {
		return model.AccessToken{}, fmt.Errorf("%w: no access_token in response", errs.ErrAuthentication)
	}

	now := a.now()
	tok := model.AccessToken{Token: tr.AccessToken, ObtainedAt: now}
	if a.ttl > 0 {
		tok.ExpiresAt = now.Add(a.lifetime(tr, now))
	}
	return tok, nil
}

// lifetime picks expires_in, then the JWT exp claim, then the configured TTL, minus a margin
// capped at half the lifetime.
func (a *Authenticator) lifetime(tr tokenResponse, now time.Time) time.Duration {
	life := a.ttl
	if secs, err := tr.ExpiresIn.Int64(); err == nil && secs > 0 {
		life = time.Duration(secs) * time.Second
	} else if exp, ok := jwtExpiry(tr.AccessToken); ok {
		life = exp.Sub(now)
	}
	if life <= 0 {
		return 0
	}
	margin := a.margin
	if margin > life/2 {
		margin = life / 2
	}
	return life - margin
}

// jwtExpiry reads exp from a JWT without verifying it; the gateway's key is not ours.
func jwtExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func snippet(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
