package identity

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "digital-wallet-secret-key-2024"

func TestIssueAndVerify(t *testing.T) {
	cred, err := NewIssuer(testSecret, time.Hour).Issue(7)
	require.NoError(t, err)

	id, err := NewVerifier(testSecret).Verify(string(cred))
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.OwnerID())
	assert.Equal(t, cred, id.Credential())
	assert.True(t, id.Owns(7))
	assert.False(t, id.Owns(8))
	assert.WithinDuration(t, time.Now().Add(time.Hour), id.ExpiresAt(), 5*time.Second)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	cred, err := NewIssuer("other", time.Hour).Issue(1)
	require.NoError(t, err)

	_, err = NewVerifier(testSecret).Verify(string(cred))
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	cred, err := issuer.Issue(1)
	require.NoError(t, err)

	_, err = NewVerifier(testSecret).Verify(string(cred))
	assert.ErrorIs(t, err, ErrExpiredCredential)
}

func TestVerifyEmpty(t *testing.T) {
	_, err := NewVerifier(testSecret).Verify("  ")
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestParseBearer(t *testing.T) {
	tok, err := ParseBearer("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = ParseBearer("abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = ParseBearer("  bearer\tabc.def ")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	for _, header := range []string{"", "   ", "Bearer ", "Bearer", "bearer\t", "BEARER  "} {
		_, err = ParseBearer(header)
		assert.ErrorIs(t, err, ErrMissingCredential, "header %q", header)
	}
}

func TestForwardAndContext(t *testing.T) {
	id := Trusted(3, "tok", time.Time{})

	req := httptest.NewRequest("GET", "/", nil)
	Forward(req, id)
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))

	got, ok := FromContext(WithIdentity(context.Background(), id))
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
