package service

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const webhookSecretLen = 32

// HKDFSecretService derives per-(provider, tenant) webhook secrets from a
// single configured master key, so provider onboarding never mints new
// stored secrets and a leaked derived key exposes one scope only.
type HKDFSecretService struct {
	master []byte
}

// NewHKDFSecretService creates a secret service over the master key.
func NewHKDFSecretService(masterSecret string) *HKDFSecretService {
	return &HKDFSecretService{master: []byte(masterSecret)}
}

// WebhookSecret derives the HMAC key for one provider/tenant pair.
// Derivation is deterministic: the same pair always yields the same key.
func (s *HKDFSecretService) WebhookSecret(provider string, tenantID uuid.UUID) ([]byte, error) {
	if provider == "" {
		return nil, fmt.Errorf("provider must not be empty")
	}
	info := fmt.Sprintf("webhook:%s:%s", provider, tenantID)
	r := hkdf.New(sha256.New, s.master, nil, []byte(info))
	key := make([]byte, webhookSecretLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving webhook secret: %w", err)
	}
	return key, nil
}
