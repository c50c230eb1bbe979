package store

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// cipherPrefix marks encrypted values. A stored value without it is treated
// as plaintext and returned unchanged, so snapshots written before
// encryption shipped still load.
const cipherPrefix = "cfenc.v1:"

const (
	keySize         = 32
	pbkdf2Iters     = 4096
	pbkdf2SaltLabel = "certflow-snapshot"
)

// Cipher encrypts individual snapshot fields with AES-256-CBC. The key is
// derived from the configured secret; by default that secret folds in the
// deployment host, which ties snapshots to one deployment but makes the key
// guessable from the hostname. Set CHECKOUT_SNAPSHOT_SECRET in production.
type Cipher struct {
	key []byte
}

func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("snapshot secret is required")
	}
	key := pbkdf2.Key([]byte(secret), []byte(pbkdf2SaltLabel), pbkdf2Iters, keySize, sha256.New)
	return &Cipher{key: key}, nil
}

// Encrypt returns the prefixed base64 ciphertext of the value. Already
// encrypted values are returned unchanged.
func (c *Cipher) Encrypt(plain string) (string, error) {
	if strings.HasPrefix(plain, cipherPrefix) {
		return plain, nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	padded := pkcs7Pad([]byte(plain), aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	return cipherPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Values without the ciphertext prefix pass
// through untouched.
func (c *Cipher) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, cipherPrefix) {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, cipherPrefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext is truncated")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	iv, body := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
