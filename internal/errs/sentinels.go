// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Common sentinels across gateway/service/cache layers.
var (
	// ErrAuthentication indicates the token endpoint was unreachable, answered non-2xx
	// or returned no access_token.
	ErrAuthentication = errors.New("gateway authentication failed")

	// ErrEncoding indicates a request could not be built (missing field, bad key material).
	ErrEncoding = errors.New("request encoding failed")

	// ErrNetwork indicates a transport failure or timeout talking to the gateway.
	ErrNetwork = errors.New("gateway unreachable")

	// ErrStatus indicates the gateway answered with a non-2xx status.
	ErrStatus = errors.New("unexpected gateway status")

	// ErrDecryption indicates a ciphertext that cannot be decrypted with the configured key/IV.
	ErrDecryption = errors.New("payload decryption failed")

	// ErrMalformedResponse indicates an envelope or decrypted plaintext that is not the expected JSON.
	ErrMalformedResponse = errors.New("malformed gateway response")

	// ErrIncompleteQuery indicates a query that is not enabled because a required parameter is empty.
	ErrIncompleteQuery = errors.New("incomplete query")

	// ErrCacheMiss indicates the key is absent from a cache tier.
	ErrCacheMiss = errors.New("cache miss")
)

// StatusError carries the HTTP status of a non-2xx gateway answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected gateway status %d", e.Code)
	}
	return fmt.Sprintf("unexpected gateway status %d: %s", e.Code, e.Body)
}

// Is makes errors.Is(err, ErrStatus) hold for any StatusError.
func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// Retryable reports whether a caller may repeat the operation without investigation.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return false
}

// Kind returns a short stable label for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrIncompleteQuery):
		return "incomplete"
	case errors.Is(err, ErrAuthentication):
		return "auth"
	case errors.Is(err, ErrEncoding):
		return "encoding"
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return "network"
	case errors.Is(err, ErrStatus):
		return "status"
	case errors.Is(err, ErrDecryption):
		return "decryption"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
