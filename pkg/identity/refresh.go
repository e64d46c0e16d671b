package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// RefreshTokenPrefix identifies crmgate refresh tokens
	RefreshTokenPrefix = "crm_"
	// RefreshTokenLength is the number of random bytes (32 bytes = 256 bits)
	RefreshTokenLength = 32
)

// RefreshTokenGenerator generates and validates opaque refresh tokens
type RefreshTokenGenerator struct{}

// NewRefreshTokenGenerator creates a new generator
func NewRefreshTokenGenerator() *RefreshTokenGenerator {
	return &RefreshTokenGenerator{}
}

// Generate creates a refresh token and the SHA-256 hash to store for it.
// Format: crm_<base64url(32 random bytes)>
func (g *RefreshTokenGenerator) Generate() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, RefreshTokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token = RefreshTokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return token, g.Hash(token), nil
}

// Hash computes the SHA-256 hash of a token for lookup
func (g *RefreshTokenGenerator) Hash(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateFormat checks if a token has the correct format
func (g *RefreshTokenGenerator) ValidateFormat(token string) error {
	if !strings.HasPrefix(token, RefreshTokenPrefix) {
		return fmt.Errorf("token must start with %q", RefreshTokenPrefix)
	}

	encoded := strings.TrimPrefix(token, RefreshTokenPrefix)
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	if len(raw) != RefreshTokenLength {
		return fmt.Errorf("token has %d random bytes, want %d", len(raw), RefreshTokenLength)
	}
	return nil
}
