package iam

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenLength is the length, in bytes, of a generated accessToken before hex encoding.
const TokenLength = 32

// IssueAccessToken generates a cryptographically random bearer token. The
// opaque wire value is never stored, only its hash, so a leaked database
// snapshot doesn't hand out live credentials.
// Returns the wire token (hex) and its SHA-256 hex hash for storage.
func IssueAccessToken() (token string, tokenHash string, err error) {
	tokenBytes := make([]byte, TokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", "", fmt.Errorf("generate random token: %w", err)
	}

	token = hex.EncodeToString(tokenBytes)
	tokenHash = HashAccessToken(token)
	return token, tokenHash, nil
}

// HashAccessToken hashes a bearer token for storage/lookup.
func HashAccessToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Expiry returns issuedAt + ttl, the moment an issued token stops verifying.
func Expiry(issuedAt time.Time, ttl time.Duration) time.Time {
	return issuedAt.Add(ttl)
}

// IsExpired reports whether expiresAt has passed.
func IsExpired(expiresAt time.Time) bool {
	return time.Now().After(expiresAt)
}
