// Package cipher encrypts account credentials at rest.
//
// Blobs are base64(IV || AES-256-CBC(PKCS#7(plaintext))). Structured values
// are JSON encoded before encryption and decoded again on the way out.
package cipher

import (
	"bytes"
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/steward-platform/apiserver/internal/apperr"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Cipher encrypts and decrypts credential blobs with a fixed key.
type Cipher struct {
	key        []byte
	normalized bool
}

// New builds a Cipher from a raw key. Keys that are not exactly KeySize bytes
// are zero-padded or truncated rather than rejected, which keeps a
// misconfigured deployment running at reduced strength. Normalized reports
// when that happened so callers can warn about it.
func New(rawKey string) *Cipher {
	key := []byte(rawKey)
	normalized := len(key) != KeySize
	switch {
	case len(key) < KeySize:
		key = append(key, make([]byte, KeySize-len(key))...)
	case len(key) > KeySize:
		key = key[:KeySize]
	}
	return &Cipher{key: key, normalized: normalized}
}

// Normalized reports whether the configured key had to be padded or truncated.
func (c *Cipher) Normalized() bool {
	return c.normalized
}

// Encrypt serializes value and returns the opaque blob. Strings are encrypted
// verbatim; anything else is JSON encoded first.
func (c *Cipher) Encrypt(value any) (string, error) {
	var plaintext []byte
	switch v := value.(type) {
	case string:
		plaintext = []byte(v)
	case []byte:
		plaintext = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode credentials: %w", err)
		}
		plaintext = encoded
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	gocipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt recovers the value from blob. JSON plaintext is decoded into its
// structured form; anything else comes back as a string. Malformed blobs fail
// with an apperr.KindDecryption error.
func (c *Cipher) Decrypt(blob string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, apperr.Decryption(fmt.Errorf("decode base64: %w", err))
	}
	if len(raw) < 2*aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return nil, apperr.Decryption(errors.New("ciphertext has invalid length"))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, apperr.Decryption(err)
	}

	iv, body := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(body))
	gocipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	plain, err = unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, apperr.Decryption(err)
	}

	var structured any
	if err := json.Unmarshal(plain, &structured); err == nil {
		return structured, nil
	}
	return string(plain), nil
}

func pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size || n > len(data) {
		return nil, errors.New("bad padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("bad padding")
		}
	}
	return data[:len(data)-n], nil
}
