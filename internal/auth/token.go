// Package auth provides authentication primitives for the audit engine.
// Two authentication methods are supported: JWTs (issued at user login, stateless
// verification) and service tokens (long-lived machine credentials with bcrypt
// hashing, used by collaborating subsystems that write audit records).
// See internal/middleware/auth.go for the request-time authentication logic that uses these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// ServiceTokenPrefix marks credentials issued by this service.
	ServiceTokenPrefix = "ost"

	// TokenSecretLength is the length of the random part of the token in bytes
	TokenSecretLength = 32

	// LookupPrefixLength is the number of characters stored in clear for prefix lookup
	LookupPrefixLength = 12

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// GenerateServiceToken creates a new random service token.
// Returns: full token (to show once), bcrypt hash (to store), lookup prefix.
func GenerateServiceToken() (token string, hash string, lookupPrefix string, err error) {
	randomBytes := make([]byte, TokenSecretLength)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	randomPart := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := fmt.Sprintf("%s_%s", ServiceTokenPrefix, randomPart)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullToken), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash token: %w", err)
	}

	prefix := fullToken
	if len(fullToken) > LookupPrefixLength {
		prefix = fullToken[:LookupPrefixLength]
	}

	return fullToken, string(hashBytes), prefix, nil
}

// VerifyServiceToken checks if a provided token matches the stored hash
func VerifyServiceToken(providedToken, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedToken))
	return err == nil
}

// LookupPrefix returns the clear-text prefix used to narrow the candidate set
// before bcrypt comparison.
func LookupPrefix(token string) string {
	if len(token) > LookupPrefixLength {
		return token[:LookupPrefixLength]
	}
	return token
}

// ExtractBearerToken extracts the credential from an Authorization header.
// Expected format: "Bearer ost_abc123xyz..." or "Bearer <jwt>".
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return "", errors.New("credential is empty after Bearer prefix")
	}

	return token, nil
}

// IsServiceToken reports whether a bearer credential looks like a service token
// rather than a JWT.
func IsServiceToken(token string) bool {
	return strings.HasPrefix(token, ServiceTokenPrefix+"_")
}
