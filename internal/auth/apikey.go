// apikey.go provides API key generation and digest computation. Keys are
// looked up by the SHA-256 digest of the full secret, so the digest doubles
// as the storage key; the secret itself is never stored.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// KeySecretLength is the length of the random part of an API key in bytes.
	KeySecretLength = 32

	// DisplayPrefixLength is the number of characters shown in listings.
	DisplayPrefixLength = 10
)

// GenerateKeySecret creates a new random API key secret with the given
// prefix. Returns the full secret (shown once), its SHA-256 digest (the
// storage key), and a display prefix for listings.
func GenerateKeySecret(prefix string) (secret, digest, displayPrefix string, err error) {
	randomBytes := make([]byte, KeySecretLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	secret = fmt.Sprintf("%s_%s", prefix, base64.RawURLEncoding.EncodeToString(randomBytes))
	digest = HashKeySecret(secret)

	displayPrefix = secret
	if len(secret) > DisplayPrefixLength {
		displayPrefix = secret[:DisplayPrefixLength]
	}
	return secret, digest, displayPrefix, nil
}

// HashKeySecret returns the hex-encoded SHA-256 digest of an API key
// secret. The digest is the primary key of the key collection, so
// verification is a single point read.
func HashKeySecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
