// Package gatewaycrypto contains the fixed-key primitives the case gateway speaks:
// AES-256-CBC with PKCS7 padding and HMAC-SHA256 request tokens.
package gatewaycrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/and161185/hcservices/internal/errs"
)

const (
	// KeyLen is the AES-256 key size in bytes.
	KeyLen = 32
	// IVLen is the CBC initialisation vector size in bytes.
	IVLen = aes.BlockSize
)

// CheckKeyMaterial verifies AES-256 key and IV lengths.
func CheckKeyMaterial(key, iv string) error {
	if len(key) != KeyLen {
		return fmt.Errorf("%w: aes key must be %d bytes, got %d", errs.ErrEncoding, KeyLen, len(key))
	}
	if len(iv) != IVLen {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", errs.ErrEncoding, IVLen, len(iv))
	}
	return nil
}

// AESEncrypt encrypts plaintext with AES-256-CBC/PKCS7 and returns standard base64.
// Output is deterministic for identical inputs: the IV is fixed by configuration.
func AESEncrypt(plaintext, key, iv string) (string, error) {
	if err := CheckKeyMaterial(key, iv); err != nil {
		return "", err
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrEncoding, err)
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, []byte(iv)).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// AESDecrypt reverses AESEncrypt. Any malformed input fails with errs.ErrDecryption.
func AESDecrypt(b64, key, iv string) (string, error) {
	if len(key) != KeyLen || len(iv) != IVLen {
		return "", fmt.Errorf("%w: bad key material", errs.ErrDecryption)
	}
	ct, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", errs.ErrDecryption, err)
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", errs.ErrDecryption, len(ct))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrDecryption, err)
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, []byte(iv)).CryptBlocks(pt, ct)
	pt, err = pkcs7Unpad(pt, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(pt) {
		return "", fmt.Errorf("%w: plaintext is not utf-8", errs.ErrDecryption)
	}
	return string(pt), nil
}

// HMACSHA256Hex returns the lowercase hex HMAC-SHA256 of message under key.
func HMACSHA256Hex(message, key string) string {
	m := hmac.New(sha256.New, []byte(key))
	m.Write([]byte(message))
	return hex.EncodeToString(m.Sum(nil))
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", errs.ErrDecryption)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", errs.ErrDecryption)
		}
	}
	return b[:len(b)-n], nil
}
