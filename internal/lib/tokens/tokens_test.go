package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_IssueValidate(t *testing.T) {
	svc := New("test-secret", time.Hour)

	t.Run("round trip before expiry", func(t *testing.T) {
		raw, err := svc.Issue("alice@example.com", []string{"user"}, time.Hour)
		require.NoError(t, err)

		claims, err := svc.Validate(raw)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", claims.Subject)
		assert.Equal(t, []string{"user"}, claims.Scopes)
	})

	t.Run("nil scopes round trip as empty set", func(t *testing.T) {
		raw, err := svc.Issue("alice@example.com", nil, time.Hour)
		require.NoError(t, err)

		claims, err := svc.Validate(raw)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", claims.Subject)
		assert.Empty(t, claims.Scopes)
	})

	t.Run("explicit empty scopes round trip", func(t *testing.T) {
		raw, err := svc.Issue("alice@example.com", []string{}, time.Hour)
		require.NoError(t, err)

		claims, err := svc.Validate(raw)
		require.NoError(t, err)
		assert.Empty(t, claims.Scopes)
	})

	t.Run("default ttl when unspecified", func(t *testing.T) {
		raw, err := svc.Issue("alice@example.com", []string{"user"}, 0)
		require.NoError(t, err)

		_, err = svc.Validate(raw)
		require.NoError(t, err)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		raw, err := svc.Issue("alice@example.com", []string{"user"}, -time.Minute)
		require.NoError(t, err)

		_, err = svc.Validate(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		other := New("another-secret", time.Hour)

		raw, err := other.Issue("alice@example.com", []string{"user"}, time.Hour)
		require.NoError(t, err)

		_, err = svc.Validate(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := svc.Validate("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestService_TamperedSignature(t *testing.T) {
	svc := New("test-secret", time.Hour)

	raw, err := svc.Issue("alice@example.com", []string{"user"}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)

	// flip one character of the signature segment
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = svc.Validate(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
