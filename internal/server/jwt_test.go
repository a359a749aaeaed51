package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/studyforge/internal/config"
)

func newTestJWTService(expirationHours int) *JWTService {
	return NewJWTService(&config.JWTConfig{
		Secret:          "test-secret-key-for-jwt-signing-minimum-32-bytes",
		Issuer:          "studyforge",
		ExpirationHours: expirationHours,
	})
}

func TestJWTService_RoundTrip(t *testing.T) {
	service := newTestJWTService(24)
	subject := uuid.New()

	token, err := service.GenerateToken(subject)
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, subject, claims.SubjectID)
	assert.Equal(t, subject.String(), claims.Subject)
	assert.Equal(t, "studyforge", claims.Issuer)

	getter, err := service.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, subject, getter.GetSubjectID())
}

func TestJWTService_Rejects(t *testing.T) {
	service := newTestJWTService(24)
	subject := uuid.New()
	otherSecret := NewJWTService(&config.JWTConfig{Secret: "another-secret-key-that-is-long", Issuer: "studyforge", ExpirationHours: 24})
	forged, err := otherSecret.GenerateToken(subject)
	require.NoError(t, err)

	otherIssuer := NewJWTService(&config.JWTConfig{Secret: "test-secret-key-for-jwt-signing-minimum-32-bytes", Issuer: "elsewhere", ExpirationHours: 24})
	foreign, err := otherIssuer.GenerateToken(subject)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{SubjectID: subject})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr string
	}{
		{"empty", "", "token string is empty"},
		{"malformed", "not.a.jwt", "malformed token"},
		{"wrong secret", forged, "invalid token signature"},
		{"wrong issuer", foreign, "failed to parse token"},
		{"unsigned", unsigned, "invalid token signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateToken(tt.token)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJWTService_Expiration(t *testing.T) {
	service := newTestJWTService(1)
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return issued }

	token, err := service.GenerateToken(uuid.New())
	require.NoError(t, err)

	service.now = func() time.Time { return issued.Add(59 * time.Minute) }
	_, err = service.ValidateToken(token)
	require.NoError(t, err)

	service.now = func() time.Time { return issued.Add(61 * time.Minute) }
	_, err = service.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token expired")
}
