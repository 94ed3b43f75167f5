// Package convert maps decrypted gateway JSON payloads onto domain models.
package convert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/and161185/hcservices/internal/errs"
)

var (
	errNotObject     = errors.New("want object")
	errNotCollection = errors.New("want array or object")
	errInvalidJSON   = errors.New("invalid json")
)

// --- helpers ---

type fields map[string]json.RawMessage

// str returns the first present key as text; numbers keep their literal form, null is empty.
func (f fields) str(keys ...string) string {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		if s := scalar(raw); s != "" {
			return s
		}
	}
	return ""
}

// take removes and returns the first present key.
func (f fields) take(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if raw, ok := f[k]; ok {
			delete(f, k)
			return raw, true
		}
	}
	return nil, false
}

// pop is str followed by deleting every alias.
func (f fields) pop(keys ...string) string {
	s := f.str(keys...)
	for _, k := range keys {
		delete(f, k)
	}
	return s
}

func (f fields) rest() map[string]json.RawMessage {
	if len(f) == 0 {
		return nil
	}
	return map[string]json.RawMessage(f)
}

func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '{', '[':
		return ""
	default:
		return string(raw)
	}
}

// unwrap decodes a payload that may itself be a JSON string holding JSON.
func unwrap(plaintext []byte) (json.RawMessage, error) {
	raw := json.RawMessage(bytes.TrimSpace(plaintext))
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		raw = json.RawMessage(strings.TrimSpace(inner))
	}
	if !json.Valid(raw) {
		return nil, errInvalidJSON
	}
	return raw, nil
}

// keyed is an object or array member in wire order.
type keyed struct {
	key string
	raw json.RawMessage
}

// records decodes an array or a keyed object. Integer-like keys come first in ascending
// order, the rest follow lexicographically.
func records(raw json.RawMessage) ([]keyed, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, err
		}
		out := make([]keyed, 0, len(arr))
		for i, r := range arr {
			out = append(out, keyed{key: strconv.Itoa(i), raw: r})
		}
		return out, nil
	case '{':
		var m fields
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return members(m), nil
	default:
		return nil, errNotCollection
	}
}

// members lists object members in key order.
func members(m fields) []keyed {
	out := make([]keyed, 0, len(m))
	for k, r := range m {
		out = append(out, keyed{key: k, raw: r})
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].key, out[j].key) })
	return out
}

func keyLess(a, b string) bool {
	ai, aerr := strconv.ParseUint(a, 10, 32)
	bi, berr := strconv.ParseUint(b, 10, 32)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func objectFields(raw json.RawMessage) (fields, error) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// statusReply recognises a gateway status message in place of data: an object of scalar members
// without a cino that carries status "N", Msg or str_error.
func statusReply(raw json.RawMessage) (string, bool) {
	if !isObject(raw) {
		return "", false
	}
	f, err := objectFields(raw)
	if err != nil || len(f) == 0 {
		return "", false
	}
	for _, v := range f {
		if b := bytes.TrimSpace(v); len(b) > 0 && (b[0] == '{' || b[0] == '[') {
			return "", false
		}
	}
	if f.str("cino", "cnr", "cnr_number") != "" {
		return "", false
	}
	msg := f.str("Msg", "msg", "str_error", "error", "message")
	if msg == "" && !strings.EqualFold(f.str("status"), "N") {
		return "", false
	}
	if msg == "" {
		msg = "status N"
	}
	return msg, true
}

// notFound reports whether a status message means the query matched nothing.
func notFound(msg string) bool {
	m := strings.ToLower(msg)
	for _, s := range []string{"not found", "no record", "no case", "no data"} {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

func malformed(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", errs.ErrMalformedResponse, what, err)
}
