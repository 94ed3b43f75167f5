// Package transport provides http.RoundTripper middleware for outbound gateway calls.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

type requestIDKey struct{}

// WithRequestID attaches a correlation id to ctx for transport logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NewRequestID returns a fresh random id.
func NewRequestID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	return id.String()
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Logging returns a RoundTripper that logs one line per request.
func Logging(log *zap.Logger, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(req)

		// no query string: it carries the encrypted request
		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("host", req.URL.Host),
			zap.String("path", req.URL.Path),
			zap.Duration("dur", time.Since(start)),
		}
		if id := RequestID(req.Context()); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if err != nil {
			log.Warn("gateway http", append(fields, zap.Error(err))...)
			return resp, err
		}
		log.Info("gateway http", append(fields, zap.Int("status", resp.StatusCode))...)
		return resp, nil
	})
}

// Recover returns a RoundTripper that turns panics of next into errors.
func Recover(log *zap.Logger, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripFunc(func(req *http.Request) (resp *http.Response, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("host", req.URL.Host),
				)
				resp, err = nil, fmt.Errorf("transport panic: %v", r)
			}
		}()
		return next.RoundTrip(req)
	})
}

// NewClient builds an *http.Client with logging and panic recovery around base.
// Per-call deadlines come from request contexts; timeout is a last-resort ceiling.
func NewClient(log *zap.Logger, base http.RoundTripper, timeout time.Duration) *http.Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &http.Client{
		Transport: Logging(log, Recover(log, base)),
		Timeout:   timeout,
	}
}
