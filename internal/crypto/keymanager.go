// Package crypto seals the venue's RSA private key at rest and loads it back
// for request signing.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// defaultIterations is the OWASP minimum for PBKDF2-HMAC-SHA256.
	defaultIterations = 480_000
	saltLen           = 16
	aesKeyLen         = 32
	currentVersion    = 1
)

// iterations is lowered in tests.
var iterations = defaultIterations

// sealedKey is the on-disk format written by Seal.
type sealedKey struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig lists the places a private key may come from, in priority order.
type KeyConfig struct {
	PEM              string // inline PEM, "\n" escapes allowed
	PEMPath          string // plaintext PEM file
	EncryptedKeyPath string // file produced by Seal
	KeyPassword      string
}

// Configured reports whether any key source is set.
func (c KeyConfig) Configured() bool {
	return c.PEM != "" || c.PEMPath != "" || c.EncryptedKeyPath != ""
}

// Seal encrypts a PEM-encoded key with PBKDF2-HMAC-SHA256 and AES-256-GCM.
func Seal(pemBytes []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if err := checkPEM(pemBytes); err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt, iterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	return json.MarshalIndent(sealedKey{
		Version:    currentVersion,
		KDF:        "pbkdf2-sha256",
		Iterations: iterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, pemBytes, nil)),
	}, "", "  ")
}

// Open decrypts a blob produced by Seal and returns the PEM bytes.
func Open(blob []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	var s sealedKey
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("crypto: parsing sealed key: %w", err)
	}
	if s.Version != currentVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", s.Version)
	}
	if s.Iterations <= 0 {
		return nil, fmt.Errorf("crypto: invalid iteration count %d", s.Iterations)
	}

	salt, err := base64.StdEncoding.DecodeString(s.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt, s.Iterations)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return plaintext, nil
}

// LoadKey resolves PEM bytes from the first configured source.
func LoadKey(cfg KeyConfig) ([]byte, error) {
	switch {
	case cfg.PEM != "":
		b := []byte(strings.ReplaceAll(cfg.PEM, `\n`, "\n"))
		if err := checkPEM(b); err != nil {
			return nil, err
		}
		return b, nil
	case cfg.PEMPath != "":
		b, err := os.ReadFile(cfg.PEMPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading key file: %w", err)
		}
		if err := checkPEM(b); err != nil {
			return nil, err
		}
		return b, nil
	case cfg.EncryptedKeyPath != "":
		blob, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading sealed key file: %w", err)
		}
		return Open(blob, cfg.KeyPassword)
	}
	return nil, errors.New("crypto: no private key source configured")
}

func newGCM(password string, salt []byte, iter int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, iter, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

func checkPEM(b []byte) error {
	block, _ := pem.Decode(b)
	if block == nil {
		return errors.New("crypto: key is not PEM encoded")
	}
	if !strings.Contains(block.Type, "PRIVATE KEY") {
		return fmt.Errorf("crypto: unexpected PEM block %q", block.Type)
	}
	return nil
}
