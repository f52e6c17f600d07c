package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDisabled_ReturnsFixedMockPrincipal(t *testing.T) {
	var svc Service = Disabled{}
	p, err := svc.Auth(context.Background(), "MOCK", "")
	require.NoError(t, err)
	assert.Equal(t, MockAppName, p.Subject)
	assert.Equal(t, []string{MockOrg}, p.Organizations)
	assert.Equal(t, []string{MockRole}, p.Roles)
}

func TestNewJWTService_RejectsShortSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{Secret: "too-short"}, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func signToken(t *testing.T, secret string, c claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

const testSecret = "01234567890123456789012345678901"

func TestJWTService_ValidTokenResolvesPrincipal(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: testSecret}, zap.NewNop().Sugar())
	require.NoError(t, err)

	token := signToken(t, testSecret, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "app-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Organizations:   []string{"org-a"},
		Roles:           []string{"admin"},
		ServiceAccounts: []string{"sa-1"},
		Authorities:     []string{"1"},
	})

	p, err := svc.Auth(context.Background(), "JWT", token)
	require.NoError(t, err)
	assert.Equal(t, "app-1", p.Subject)
	assert.Equal(t, []string{"org-a"}, p.Organizations)
	assert.Equal(t, []string{"admin"}, p.Roles)
	assert.Equal(t, []string{"sa-1"}, p.ServiceAccounts)
}

func TestJWTService_RejectsExpiredToken(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: testSecret}, zap.NewNop().Sugar())
	require.NoError(t, err)

	token := signToken(t, testSecret, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "app-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err = svc.Auth(context.Background(), "JWT", token)
	assert.Error(t, err)
}

func TestJWTService_RejectsWrongSigningSecret(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: testSecret}, zap.NewNop().Sugar())
	require.NoError(t, err)

	token := signToken(t, "different-secret-0000000000000000", claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "app-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err = svc.Auth(context.Background(), "JWT", token)
	assert.Error(t, err)
}

func TestJWTService_RejectsMismatchedIssuer(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: testSecret, Issuer: "hermes-broker"}, zap.NewNop().Sugar())
	require.NoError(t, err)

	token := signToken(t, testSecret, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "app-1",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err = svc.Auth(context.Background(), "JWT", token)
	assert.Error(t, err)
}

func TestJWTService_RejectsUnsupportedMethod(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: testSecret}, zap.NewNop().Sugar())
	require.NoError(t, err)

	_, err = svc.Auth(context.Background(), "BASIC", "whatever")
	assert.Error(t, err)
}

func TestJWTService_RejectsEmptyCredentials(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: testSecret}, zap.NewNop().Sugar())
	require.NoError(t, err)

	_, err = svc.Auth(context.Background(), "JWT", "")
	assert.Error(t, err)
}

func TestJWTService_DedupsConcurrentVerificationsOfSameToken(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: testSecret}, zap.NewNop().Sugar())
	require.NoError(t, err)

	token := signToken(t, testSecret, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "app-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	const n = 20
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := svc.Auth(context.Background(), "JWT", token)
			results <- err
		}()
	}
	for i := 0; i < n; i++ {
		assert.NoError(t, <-results)
	}
}
