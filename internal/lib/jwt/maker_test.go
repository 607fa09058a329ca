package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	maker := NewJWTMaker("test-secret", time.Hour)

	token, err := maker.GenerateToken("user@example.com", "6f1c8e1a-0000-0000-0000-000000000001")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := maker.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "6f1c8e1a-0000-0000-0000-000000000001", claims.UserUID)
	assert.Equal(t, "6f1c8e1a-0000-0000-0000-000000000001", claims.Subject)
}

func TestParseTokenSameTokenSameUser(t *testing.T) {
	maker := NewJWTMaker("test-secret", time.Hour)

	token, err := maker.GenerateToken("user@example.com", "uid-1")
	require.NoError(t, err)

	first, err := maker.ParseToken(token)
	require.NoError(t, err)
	second, err := maker.ParseToken(token)
	require.NoError(t, err)

	assert.Equal(t, first.UserUID, second.UserUID)
	assert.Equal(t, first.Email, second.Email)
}

func TestParseTokenErrors(t *testing.T) {
	maker := NewJWTMaker("test-secret", time.Hour)

	tests := []struct {
		name  string
		token func() string
	}{
		{
			name:  "мусор вместо токена",
			token: func() string { return "not.a.token" },
		},
		{
			name: "токен подписан другим секретом",
			token: func() string {
				other := NewJWTMaker("other-secret", time.Hour)
				token, err := other.GenerateToken("user@example.com", "uid-1")
				require.NoError(t, err)
				return token
			},
		},
		{
			name: "просроченный токен",
			token: func() string {
				expired := NewJWTMaker("test-secret", -time.Hour)
				token, err := expired.GenerateToken("user@example.com", "uid-1")
				require.NoError(t, err)
				return token
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := maker.ParseToken(tt.token())
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}
