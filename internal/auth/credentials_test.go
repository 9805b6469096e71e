package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-long-enough-123"

func newTestCredentials(t *testing.T) *Credentials {
	t.Helper()
	c, err := NewCredentials(testSecret, 30*time.Minute)
	require.NoError(t, err)
	c.cost = 4
	return c
}

func TestNewCredentials_RequiresSecretAndTTL(t *testing.T) {
	_, err := NewCredentials("", time.Minute)
	assert.Error(t, err)
	_, err = NewCredentials(testSecret, 0)
	assert.Error(t, err)
}

func TestPasswordRoundTrip(t *testing.T) {
	c := newTestCredentials(t)

	hash, err := c.HashPassword("Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123", hash)
	assert.True(t, c.CheckPassword("Secret123", hash))
	assert.False(t, c.CheckPassword("secret123", hash))
	assert.False(t, c.CheckPassword("Secret123", ""))

	other, err := c.HashPassword("Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "hashes must be salted")
}

func TestIssueAndVerify(t *testing.T) {
	c := newTestCredentials(t)

	token, err := c.IssueToken(42, 0)
	require.NoError(t, err)

	id, ok := c.VerifyToken(token)
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)
}

func TestVerifyToken_FailsClosed(t *testing.T) {
	c := newTestCredentials(t)

	sign := func(claims jwt.MapClaims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	base := func() jwt.MapClaims {
		now := time.Now()
		return jwt.MapClaims{
			"sub": "7",
			"iss": Issuer,
			"aud": Audience,
			"exp": now.Add(time.Hour).Unix(),
			"iat": now.Unix(),
		}
	}

	expired := base()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	wrongIssuer := base()
	wrongIssuer["iss"] = "someone-else"

	wrongAudience := base()
	wrongAudience["aud"] = "other-client"

	noExpiry := base()
	delete(noExpiry, "exp")

	textSubject := base()
	textSubject["sub"] = "alice"

	zeroSubject := base()
	zeroSubject["sub"] = "0"

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"expired", sign(expired, jwt.SigningMethodHS256, []byte(testSecret))},
		{"wrong secret", sign(base(), jwt.SigningMethodHS256, []byte("another-secret"))},
		{"wrong algorithm", sign(base(), jwt.SigningMethodHS512, []byte(testSecret))},
		{"none algorithm", sign(base(), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
		{"wrong issuer", sign(wrongIssuer, jwt.SigningMethodHS256, []byte(testSecret))},
		{"wrong audience", sign(wrongAudience, jwt.SigningMethodHS256, []byte(testSecret))},
		{"missing expiry", sign(noExpiry, jwt.SigningMethodHS256, []byte(testSecret))},
		{"non numeric subject", sign(textSubject, jwt.SigningMethodHS256, []byte(testSecret))},
		{"zero subject", sign(zeroSubject, jwt.SigningMethodHS256, []byte(testSecret))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := c.VerifyToken(tt.token)
			assert.False(t, ok)
			assert.Zero(t, id)
		})
	}
}

func TestIssueToken_CustomTTL(t *testing.T) {
	c := newTestCredentials(t)
	issuedAt := time.Now()
	c.now = func() time.Time { return issuedAt }

	token, err := c.IssueToken(5, time.Minute)
	require.NoError(t, err)

	c.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, ok := c.VerifyToken(token)
	assert.False(t, ok, "token must expire after its ttl")
}
