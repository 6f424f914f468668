package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	secret, err := GenerateSecureSecret()
	require.NoError(t, err)
	issuer, err := NewIssuer(secret, "rts-aggro")
	require.NoError(t, err)
	return issuer
}

func TestIssuer_GenerateAndValidate(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.Generate("ops", true, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "rts-aggro", claims.Issuer)
}

func TestIssuer_RejectsInvalid(t *testing.T) {
	issuer := newTestIssuer(t)
	other := newTestIssuer(t)

	foreign, err := other.Generate("ops", true, time.Hour)
	require.NoError(t, err)

	testCases := []string{
		"",
		"not.a.jwt",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
		foreign,
	}
	for _, token := range testCases {
		_, err := issuer.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestIssuer_Expired(t *testing.T) {
	issuer := newTestIssuer(t)
	token, err := issuer.Generate("ops", false, time.Minute)
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuer_BadSecret(t *testing.T) {
	_, err := NewIssuer("%%%", "x")
	assert.Error(t, err)

	_, err = NewIssuer("c2hvcnQ=", "x")
	assert.Error(t, err)
}

func TestGenerateSecureSecret(t *testing.T) {
	a, err := GenerateSecureSecret()
	require.NoError(t, err)
	b, err := GenerateSecureSecret()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 40)
}
