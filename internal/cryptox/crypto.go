// Package cryptox holds the primitives shared by the vending machine and
// its reference client: HMAC request signing, salted password hashing,
// AES-CBC response wrapping, timestamp freshness and input validation.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedCiphertext is returned by Unwrap for payloads that are not a
// whole number of AES blocks or carry invalid padding.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Sign returns the lowercase hex HMAC-SHA256 of content under key.
func Sign(content, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}

// ConstantTimeEquals compares two strings without short-circuiting on the
// first differing byte.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SaltedPassword derives the stored password hash. The salt binds the hash
// to the user, the application and the endpoint host the client talks to.
func SaltedPassword(username, appName, endpoint, password string) string {
	return Sign(username+appName+strings.ToLower(endpoint), password)
}

// RandomToken returns 16 random bytes hex encoded.
func RandomToken() (string, error) {
	b, err := RandomBytes(16)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// aesKey hex-decodes the first 32 characters of hexKey into an AES-128 key.
// Longer inputs (a 64 character password hash) are truncated.
func aesKey(hexKey string) ([]byte, error) {
	if len(hexKey) < 2*aes.BlockSize {
		return nil, fmt.Errorf("encryption key too short: %d hex chars", len(hexKey))
	}
	key, err := hex.DecodeString(hexKey[:2*aes.BlockSize])
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return key, nil
}

// EncryptAndWrap encrypts plaintext with AES-128-CBC and PKCS#5 padding
// under the hex key, prepends the random IV and base64 encodes the result.
func EncryptAndWrap(plaintext, hexKey string) (string, error) {
	key, err := aesKey(hexKey)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	iv, err := RandomBytes(aes.BlockSize)
	if err != nil {
		return "", err
	}

	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Unwrap reverses EncryptAndWrap.
func Unwrap(wrapped, hexKey string) (string, error) {
	key, err := aesKey(hexKey)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(wrapped))
	if err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}
	if len(raw) < 2*aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return "", ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	iv, body := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	plain, err = unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrMalformedCiphertext
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrMalformedCiphertext
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrMalformedCiphertext
		}
	}
	return b[:len(b)-n], nil
}
