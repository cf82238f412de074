package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret generates a cryptographically secure random secret
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateServiceSecrets generates the webhook bearer shared with the
// provisioning backend and the signing secret of operator tokens
func GenerateServiceSecrets() (webhookBearer, jwtSecret string, err error) {
	webhookBearer, err = GenerateSecret(24)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate webhook bearer: %w", err)
	}

	jwtSecret, err = GenerateSecret(32) // 256-bit
	if err != nil {
		return "", "", fmt.Errorf("failed to generate jwt secret: %w", err)
	}

	return webhookBearer, jwtSecret, nil
}
