package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHKDFSecretService_Deterministic(t *testing.T) {
	svc := NewHKDFSecretService("master-secret")
	tenantID := uuid.New()

	a, err := svc.WebhookSecret("acmepay", tenantID)
	require.NoError(t, err)
	b, err := svc.WebhookSecret("acmepay", tenantID)
	require.NoError(t, err)

	assert.Equal(t, a, b, "same provider/tenant must derive the same key")
	assert.Len(t, a, 32)
}

func TestHKDFSecretService_ScopesAreIsolated(t *testing.T) {
	svc := NewHKDFSecretService("master-secret")
	tenantA := uuid.New()
	tenantB := uuid.New()

	keyA, err := svc.WebhookSecret("acmepay", tenantA)
	require.NoError(t, err)
	keyB, err := svc.WebhookSecret("acmepay", tenantB)
	require.NoError(t, err)
	keyC, err := svc.WebhookSecret("betterpay", tenantA)
	require.NoError(t, err)

	assert.NotEqual(t, keyA, keyB, "different tenants must not share keys")
	assert.NotEqual(t, keyA, keyC, "different providers must not share keys")
}

func TestHKDFSecretService_DifferentMasters(t *testing.T) {
	tenantID := uuid.New()

	keyA, err := NewHKDFSecretService("master-one").WebhookSecret("acmepay", tenantID)
	require.NoError(t, err)
	keyB, err := NewHKDFSecretService("master-two").WebhookSecret("acmepay", tenantID)
	require.NoError(t, err)

	assert.NotEqual(t, keyA, keyB)
}

func TestHKDFSecretService_EmptyProvider(t *testing.T) {
	svc := NewHKDFSecretService("master-secret")

	_, err := svc.WebhookSecret("", uuid.New())
	assert.Error(t, err)
}
