package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

var testIdentity = models.AgentIdentity{
	ID:       "agent-001",
	Platform: models.PlatformLinux,
	Hostname: "web-01",
}

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewIssuer("shared-secret", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Token(testIdentity)
	require.NoError(t, err)

	claims, err := validateToken(token, "shared-secret")
	require.NoError(t, err)
	assert.Equal(t, "agent-001", claims.AgentID)
	assert.Equal(t, models.PlatformLinux, claims.Platform)
	assert.Equal(t, "web-01", claims.Hostname)
	assert.Equal(t, "agent-001", claims.Subject)
}

func TestWrongSecretRejected(t *testing.T) {
	issuer, err := NewIssuer("shared-secret", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Token(testIdentity)
	require.NoError(t, err)

	_, err = validateToken(token, "other-secret")
	assert.True(t, errors.Is(err, errInvalidToken))
}

func TestExpiredToken(t *testing.T) {
	issuer, err := NewIssuer("shared-secret", time.Minute)
	require.NoError(t, err)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := issuer.Token(testIdentity)
	require.NoError(t, err)

	_, err = validateToken(token, "shared-secret")
	assert.True(t, errors.Is(err, errTokenExpired))
}

func TestEmptySecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.True(t, errors.Is(err, ErrEmptySecret))
}
