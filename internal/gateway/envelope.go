package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/and161185/hcservices/internal/crypto/gatewaycrypto"
	"github.com/and161185/hcservices/internal/errs"
)

// envelope is the JSON body of every lookup answer.
type envelope struct {
	ResponseStr string `json:"response_str"`
	Status      string `json:"status"`
	Msg         string `json:"Msg"`
}

// DecryptEnvelope is the first decode step: parse {"response_str": ...} and AES-decrypt it.
func DecryptEnvelope(body []byte, key, iv string) (string, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: envelope: %v", errs.ErrMalformedResponse, err)
	}
	if env.ResponseStr == "" {
		if env.Msg != "" {
			return "", fmt.Errorf("%w: empty response_str (status=%q msg=%q)", errs.ErrMalformedResponse, env.Status, env.Msg)
		}
		return "", fmt.Errorf("%w: empty response_str", errs.ErrMalformedResponse)
	}
	return gatewaycrypto.AESDecrypt(env.ResponseStr, key, iv)
}

// DecodeBinaryPayload is the second decode step for binary payloads: the decrypted plaintext
// is itself base64 of the raw bytes.
func DecodeBinaryPayload(b64 string) ([]byte, error) {
	s := strings.Join(strings.Fields(b64), "")
	if s == "" {
		return nil, fmt.Errorf("%w: empty binary payload", errs.ErrMalformedResponse)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if b, err2 := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err2 == nil {
			return b, nil
		}
		return nil, fmt.Errorf("%w: binary payload: %v", errs.ErrMalformedResponse, err)
	}
	return b, nil
}
