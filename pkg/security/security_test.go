package security

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
)

func TestBearerTokenRoundTrip(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	v := NewTokenVerifier("topsecret", "opspilot", clock)

	token, err := v.Sign(Claims{Subject: "alice", Role: RoleOperator})
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, RoleOperator, claims.Role)
	assert.Equal(t, "opspilot", claims.Issuer)
	assert.Equal(t, clock.Now().Unix(), claims.IssuedAt)
}

func TestBearerTokenRejections(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	v := NewTokenVerifier("topsecret", "opspilot", clock)

	valid, err := v.Sign(Claims{Subject: "alice", Role: RoleAdmin})
	require.NoError(t, err)

	otherIssuer := NewTokenVerifier("topsecret", "someone-else", clock)
	wrongIssuer, err := otherIssuer.Sign(Claims{Subject: "alice", Role: RoleAdmin})
	require.NoError(t, err)

	otherKey := NewTokenVerifier("different", "opspilot", clock)
	wrongKey, err := otherKey.Sign(Claims{Subject: "alice", Role: RoleAdmin})
	require.NoError(t, err)

	expired, err := v.Sign(Claims{Subject: "alice", Role: RoleAdmin, ExpiresAt: clock.Now().Add(-time.Hour).Unix()})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"tampered payload", valid[:len(valid)-20] + strings.Repeat("A", 20)},
		{"wrong issuer", wrongIssuer},
		{"wrong key", wrongKey},
		{"expired", expired},
		{"garbage", "not.a.token"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestSignRejectsUnknownRole(t *testing.T) {
	v := NewTokenVerifier("topsecret", "opspilot", nil)
	_, err := v.Sign(Claims{Subject: "alice", Role: "superuser"})
	assert.Error(t, err)
}

func TestAPIKeyVerification(t *testing.T) {
	v := NewAPIKeyVerifier([]string{"key-one", "key-two"})

	assert.True(t, v.Verify("key-one"))
	assert.True(t, v.Verify("key-two"))
	assert.False(t, v.Verify("key-three"))
	assert.False(t, v.Verify(""))
	assert.False(t, NewAPIKeyVerifier(nil).Verify("key-one"))
}

func TestEqualKeysConstantTimeContract(t *testing.T) {
	assert.True(t, EqualKeys("abc", "abc"))
	assert.False(t, EqualKeys("abc", "abd"))
	assert.False(t, EqualKeys("abc", "abcdef"))
	assert.True(t, EqualKeys("", ""))
}

func TestPublicPaths(t *testing.T) {
	p := NewPublicPaths([]string{"/healthz", "/readyz", "/static/*"})

	tests := []struct {
		path string
		want bool
	}{
		{"/healthz", true},
		{"/readyz", true},
		{"/healthz/extra", false},
		{"/static/app.js", true},
		{"/static/", true},
		{"/api/incidents", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Match(tt.path), tt.path)
	}
}

func TestAuthenticator(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tokens := NewTokenVerifier("topsecret", "opspilot", clock)
	keys := NewAPIKeyVerifier([]string{"static-key"})
	auth := NewAuthenticator(tokens, keys, NewPublicPaths([]string{"/healthz"}))

	token, err := tokens.Sign(Claims{Subject: "alice", Role: RoleViewer})
	require.NoError(t, err)

	id, ok := auth.Authenticate(token, "")
	require.True(t, ok)
	assert.Equal(t, "alice", id.Subject)

	id, ok = auth.Authenticate("", "static-key")
	require.True(t, ok)
	assert.Equal(t, RoleOperator, id.Role)

	_, ok = auth.Authenticate("", "wrong")
	assert.False(t, ok)

	assert.True(t, auth.Public("/healthz"))
	assert.False(t, auth.Public("/api"))
}
