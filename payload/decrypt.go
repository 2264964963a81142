package payload

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrDecryption covers every malformed or undecryptable payload.
	ErrDecryption = errors.New("payload decryption failed")
	// ErrSignatureMismatch is returned when rawData does not match its signature.
	ErrSignatureMismatch = errors.New("payload signature mismatch")
)

func decodeField(name, value string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64", ErrDecryption, name)
	}
	return raw, nil
}

// Decrypt recovers the plaintext of ciphertext under sessionKey and iv. All
// three arguments are standard base64.
func Decrypt(sessionKey, ciphertext, iv string) ([]byte, error) {
	key, err := decodeField("session key", sessionKey)
	if err != nil {
		return nil, err
	}
	ivRaw, err := decodeField("iv", iv)
	if err != nil {
		return nil, err
	}
	data, err := decodeField("ciphertext", ciphertext)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: key length %d", ErrDecryption, len(key))
	}
	if len(ivRaw) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv length %d", ErrDecryption, len(ivRaw))
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrDecryption, len(data))
	}

	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, ivRaw).CryptBlocks(plain, data)

	return unpad(plain)
}

// Encrypt is the inverse of Decrypt. The server never encrypts payloads in
// production; it exists for fixtures and client tooling. An empty iv draws a
// random one. It returns base64 ciphertext and iv.
func Encrypt(sessionKey string, plaintext []byte, iv []byte) (string, string, error) {
	key, err := decodeField("session key", sessionKey)
	if err != nil {
		return "", "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", "", fmt.Errorf("%w: key length %d", ErrDecryption, len(key))
	}
	if len(iv) == 0 {
		iv = make([]byte, aes.BlockSize)
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return "", "", err
		}
	}
	if len(iv) != aes.BlockSize {
		return "", "", fmt.Errorf("%w: iv length %d", ErrDecryption, len(iv))
	}

	padded := pad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), base64.StdEncoding.EncodeToString(iv), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
		}
	}
	return b[:len(b)-n], nil
}

// Sign returns hex(sha1(rawData + sessionKey)), the signature the provider
// attaches to the plaintext user info.
func Sign(rawData, sessionKey string) string {
	sum := sha1.Sum([]byte(rawData + sessionKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks signature against rawData and sessionKey in constant time.
func VerifySignature(rawData, sessionKey, signature string) error {
	expected := Sign(rawData, sessionKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}
