package gateway

import (
	"net/url"
	"strings"

	"github.com/and161185/hcservices/internal/crypto/gatewaycrypto"
	model "github.com/and161185/hcservices/internal/model"
)

// APIVersion is sent as the version query parameter on every lookup.
const APIVersion = "v1.0"

// Field is one name='value' pair of a command string.
type Field struct {
	Name  string
	Value string
}

// F is shorthand for Field{name, value}.
func F(name, value string) Field { return Field{Name: name, Value: value} }

// BuildCommand joins fields as name='value' with a literal pipe, preserving order.
// Values are not escaped or validated.
func BuildCommand(fields ...Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(f.Name)
		b.WriteString("='")
		b.WriteString(f.Value)
		b.WriteByte('\'')
	}
	return b.String()
}

// Command strings per operation. Field order is part of the wire contract.

func searchCommand(q model.RegistrationQuery) string {
	return BuildCommand(
		F("est_code", q.EstCode),
		F("case_type", q.CaseType),
		F("reg_year", q.RegYear),
		F("reg_no", q.RegNo),
	)
}

func cnrCommand(q model.CnrQuery) string {
	return BuildCommand(F("cino", q.Cino))
}

func orderCommand(q model.OrderQuery) string {
	return BuildCommand(
		F("cino", q.Cino),
		F("order_no", q.OrderNo),
		F("order_date", q.OrderDate),
	)
}

// Signer signs and encrypts command strings with the configured credentials.
type Signer struct {
	creds   model.Credentials
	version string
}

// NewSigner constructs a Signer; version defaults to APIVersion.
func NewSigner(creds model.Credentials, version string) *Signer {
	if version == "" {
		version = APIVersion
	}
	return &Signer{creds: creds, version: version}
}

// Encode computes the HMAC request token and the AES request string for command.
func (s *Signer) Encode(command string) (model.EncodedRequest, error) {
	ct, err := gatewaycrypto.AESEncrypt(command, s.creds.AuthKey, s.creds.IV)
	if err != nil {
		return model.EncodedRequest{}, err
	}
	return model.EncodedRequest{
		Plaintext:  command,
		Signature:  gatewaycrypto.HMACSHA256Hex(command, s.creds.HMACKey),
		Ciphertext: ct,
	}, nil
}

// Query encodes command into the lookup query parameters.
func (s *Signer) Query(command string) (url.Values, error) {
	enc, err := s.Encode(command)
	if err != nil {
		return nil, err
	}
	return url.Values{
		"dept_id":       {s.creds.DeptID},
		"request_str":   {enc.Ciphertext},
		"request_token": {enc.Signature},
		"version":       {s.version},
	}, nil
}
