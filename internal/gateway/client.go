package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/hcservices/internal/convert"
	"github.com/and161185/hcservices/internal/errs"
	"github.com/and161185/hcservices/internal/metrics"
	model "github.com/and161185/hcservices/internal/model"
	"github.com/and161185/hcservices/internal/transport"
)

// Operation names used in logs, metrics and cache keys.
const (
	OpSearch = "search"
	OpCNR    = "cnr"
	OpOrder  = "order"
)

// Client performs the three case lookups. Each call obtains its own token and encodes its own command.
type Client struct {
	http      *http.Client
	auth      TokenSource
	signer    *Signer
	creds     model.Credentials
	endpoints Endpoints
	lookupTO  time.Duration
	orderTO   time.Duration
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// NewClient constructs a Client. auth is usually an *Authenticator built from the same options.
func NewClient(creds model.Credentials, auth TokenSource, opts Options) *Client {
	o := opts.withDefaults()
	return &Client{
		http:      o.HTTPClient,
		auth:      auth,
		signer:    NewSigner(creds, o.Version),
		creds:     creds,
		endpoints: o.Endpoints,
		lookupTO:  o.LookupTimeout,
		orderTO:   o.OrderTimeout,
		log:       o.Logger,
		metrics:   o.Metrics,
	}
}

// SearchByRegistration looks cases up by establishment, case type, year and registration number.
func (c *Client) SearchByRegistration(ctx context.Context, q model.RegistrationQuery) (model.CaseSearchResult, error) {
	plain, err := c.lookup(ctx, OpSearch, c.endpoints.Search, c.lookupTO, q.Missing(), searchCommand(q))
	if err != nil {
		return model.CaseSearchResult{}, err
	}
	return convert.SearchResult([]byte(plain))
}

// CnrDetail fetches the full record of one case by CNR number.
func (c *Client) CnrDetail(ctx context.Context, q model.CnrQuery) (model.CaseDetail, error) {
	plain, err := c.lookup(ctx, OpCNR, c.endpoints.CNR, c.lookupTO, q.Missing(), cnrCommand(q))
	if err != nil {
		return model.CaseDetail{}, err
	}
	return convert.CaseDetail([]byte(plain))
}

// OrderDocument fetches one order. The result still holds base64; see DecodeBinaryPayload.
func (c *Client) OrderDocument(ctx context.Context, q model.OrderQuery) (model.OrderDocument, error) {
	plain, err := c.lookup(ctx, OpOrder, c.endpoints.Order, c.orderTO, q.Missing(), orderCommand(q))
	if err != nil {
		return model.OrderDocument{}, err
	}
	doc := convert.OrderDocument(plain)
	if doc.PDFBase64 == "" {
		return model.OrderDocument{}, fmt.Errorf("%w: empty order payload", errs.ErrMalformedResponse)
	}
	return doc, nil
}

// lookup runs one encode, call, decrypt round trip and records it.
func (c *Client) lookup(ctx context.Context, op, endpoint string, timeout time.Duration, missing []string, command string) (string, error) {
	start := time.Now()
	if transport.RequestID(ctx) == "" {
		ctx = transport.WithRequestID(ctx, transport.NewRequestID())
	}
	plain, err := c.roundTrip(ctx, op, endpoint, timeout, missing, command)
	c.metrics.ObserveCall(op, errs.Kind(err), time.Since(start))
	if err != nil {
		c.log.Debug("lookup failed",
			zap.String("op", op),
			zap.String("request_id", transport.RequestID(ctx)),
			zap.String("kind", errs.Kind(err)),
			zap.Error(err),
		)
	}
	return plain, err
}

func (c *Client) roundTrip(ctx context.Context, op, endpoint string, timeout time.Duration, missing []string, command string) (string, error) {
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s: missing %s", errs.ErrEncoding, op, strings.Join(missing, ", "))
	}
	query, err := c.signer.Query(command)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	target := endpoint + "?" + query.Encode()

	var body []byte
	for attempt := 0; ; attempt++ {
		token, err := c.auth.AccessToken(ctx)
		if err != nil {
			return "", err
		}
		body, err = c.get(ctx, target, token, timeout)
		var se *errs.StatusError
		if attempt == 0 && errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
			c.auth.Invalidate(token)
			c.log.Info("token rejected, retrying once", zap.String("op", op), zap.Int("status", se.Code))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		break
	}

	plain, err := DecryptEnvelope(body, c.creds.AuthKey, c.creds.IV)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return plain, nil
}

func (c *Client) get(ctx context.Context, target, token string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrEncoding, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", errs.ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errs.StatusError{Code: resp.StatusCode, Body: snippet(body)}
	}
	return body, nil
}
