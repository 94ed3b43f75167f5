// Package model defines domain entities used by the gateway client, services and caches.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Credentials is the fixed gateway credential bundle, loaded once at process start.
type Credentials struct {
	AuthKey      string // AES-256 key, 32 raw bytes
	IV           string // AES IV, 16 raw bytes
	HMACKey      string
	ClientID     string
	ClientSecret string
	DeptID       string
}

// Validate checks presence of every field and the AES key/IV sizes.
func (c Credentials) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"auth_key": c.AuthKey, "iv": c.IV, "hmac_key": c.HMACKey,
		"client_id": c.ClientID, "client_secret": c.ClientSecret, "dept_id": c.DeptID,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("credentials: missing %s", strings.Join(missing, ", "))
	}
	if len(c.AuthKey) != 32 {
		return fmt.Errorf("credentials: auth_key must be 32 bytes, got %d", len(c.AuthKey))
	}
	if len(c.IV) != 16 {
		return fmt.Errorf("credentials: iv must be 16 bytes, got %d", len(c.IV))
	}
	return nil
}

// AccessToken is a gateway bearer token with its validity window.
type AccessToken struct {
	Token      string
	ObtainedAt time.Time
	ExpiresAt  time.Time // zero when the token must not be reused
}

// Valid reports whether the token may still be served at now.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Token != "" && !t.ExpiresAt.IsZero() && now.Before(t.ExpiresAt)
}

// RegistrationQuery searches a case by establishment, type, year and number.
type RegistrationQuery struct {
	EstCode  string `json:"est_code"`
	CaseType string `json:"case_type"`
	RegYear  string `json:"reg_year"`
	RegNo    string `json:"reg_no"`
}

// Missing lists the wire names of empty fields.
func (q RegistrationQuery) Missing() []string {
	return missingFields([][2]string{
		{"est_code", q.EstCode}, {"case_type", q.CaseType}, {"reg_year", q.RegYear}, {"reg_no", q.RegNo},
	})
}

// CnrQuery looks a case up by its CNR number.
type CnrQuery struct {
	Cino string `json:"cino"`
}

// Missing lists the wire names of empty fields.
func (q CnrQuery) Missing() []string {
	return missingFields([][2]string{{"cino", q.Cino}})
}

// OrderQuery selects one order document of a case.
type OrderQuery struct {
	Cino      string `json:"cino"`
	OrderNo   string `json:"order_no"`
	OrderDate string `json:"order_date"`
}

// Missing lists the wire names of empty fields.
func (q OrderQuery) Missing() []string {
	return missingFields([][2]string{{"cino", q.Cino}, {"order_no", q.OrderNo}, {"order_date", q.OrderDate}})
}

// EncodedRequest is the per-call signed and encrypted form of a command string.
type EncodedRequest struct {
	Plaintext  string
	Signature  string // hex HMAC-SHA256 of Plaintext
	Ciphertext string // base64 AES-256-CBC of Plaintext
}

// OrderDocument is the decrypted payload of an order download: the PDF as base64.
// Raw bytes need a second decode (gateway.DecodeBinaryPayload).
type OrderDocument struct {
	PDFBase64 string `json:"pdf_base64"`
}

// CaseDetails is the composite search → detail result. Detail is nil when no case matched.
type CaseDetails struct {
	Search CaseSearchResult `json:"search"`
	Detail *CaseDetail      `json:"detail"`
}

func missingFields(pairs [][2]string) []string {
	var out []string
	for _, p := range pairs {
		if strings.TrimSpace(p[1]) == "" {
			out = append(out, p[0])
		}
	}
	return out
}
