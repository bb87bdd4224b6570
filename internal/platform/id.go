package platform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

func NewID() string {
	return uuid.New().String()
}

const verificationInfo = "dealersites domain verification v1"

// VerificationToken derives the ownership token for an onboarding from the
// platform secret. The same inputs always produce the same token.
func VerificationToken(secret []byte, onboardingID string) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("verification secret is empty")
	}
	r := hkdf.New(sha256.New, secret, []byte(onboardingID), []byte(verificationInfo))
	b := make([]byte, 16)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("derive verification token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
