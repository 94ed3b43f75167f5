package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/and161185/hcservices/internal/errs"
)

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// statusFor maps an error kind to the facade status:
// bad input is 400, an unreachable or failing gateway is 503, an unreadable answer is 502.
func statusFor(err error) int {
	switch errs.Kind(err) {
	case "incomplete", "encoding":
		return http.StatusBadRequest
	case "auth", "network", "canceled":
		return http.StatusServiceUnavailable
	case "status":
		var se *errs.StatusError
		if errors.As(err, &se) && se.Code >= 500 {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case "decryption", "malformed":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{
		Error:     errs.Kind(err),
		Message:   err.Error(),
		Retryable: errs.Retryable(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
