package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewService("s3cret", "chat-insight")
	token, err := svc.IssueToken("ops", time.Hour)
	require.NoError(t, err)

	p, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", p.Subject)
	assert.NotEmpty(t, p.TokenID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), p.ExpiresAt, 5*time.Second)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc := NewService("s3cret", "chat-insight")

	expired, err := svc.IssueToken("ops", -time.Minute)
	require.NoError(t, err)

	otherSecret, err := NewService("other", "chat-insight").IssueToken("ops", time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewService("s3cret", "someone-else").IssueToken("ops", time.Hour)
	require.NoError(t, err)

	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "ops",
		"iss":  "chat-insight",
		"exp":  time.Now().Add(time.Hour).Unix(),
		"type": "refresh",
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "ops",
		"iss": "chat-insight",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong secret", otherSecret},
		{"wrong issuer", otherIssuer},
		{"refresh token", refresh},
		{"none alg", noneAlg},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestDisabled(t *testing.T) {
	svc := NewService("  ", "chat-insight")
	assert.False(t, svc.Enabled())

	_, err := svc.IssueToken("ops", time.Hour)
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = svc.ValidateToken("x")
	assert.ErrorIs(t, err, ErrDisabled)

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
}
