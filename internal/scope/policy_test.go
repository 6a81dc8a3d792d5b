package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyValidate(t *testing.T) {
	policy := NewPolicy([]string{"openid", "profile", "email"})

	t.Run("granted scopes are the requested ones", func(t *testing.T) {
		got, err := policy.Validate("profile email", Of("profile", "email", "openid"))
		require.NoError(t, err)
		assert.Equal(t, Of("profile", "email"), got)
	})

	t.Run("empty request is rejected", func(t *testing.T) {
		_, err := policy.Validate("  ", Of("profile"))
		var empty *EmptyError
		assert.ErrorAs(t, err, &empty)
	})

	t.Run("unknown scope names the offender", func(t *testing.T) {
		_, err := policy.Validate("profile admin", Of("profile", "admin"))
		var unknown *UnknownError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, []string{"admin"}, unknown.Scopes)
		assert.Contains(t, err.Error(), "admin")
	})

	t.Run("client restriction names the offender", func(t *testing.T) {
		_, err := policy.Validate("email", Of("profile"))
		var denied *NotAllowedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, []string{"email"}, denied.Scopes)
	})

	t.Run("unknown wins over not allowed", func(t *testing.T) {
		_, err := policy.Validate("admin email", Of("profile"))
		var unknown *UnknownError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, []string{"admin"}, unknown.Scopes)
	})

	t.Run("no prefix matching", func(t *testing.T) {
		_, err := policy.Validate("profile.read", Of("profile"))
		var unknown *UnknownError
		assert.ErrorAs(t, err, &unknown)
	})
}

func TestPolicyGrantIsSubset(t *testing.T) {
	policy := NewPolicy([]string{"openid", "profile", "email"})
	allowed := Of("profile", "email")

	for _, requested := range []string{"profile", "email", "profile email", "email email"} {
		got, err := policy.Validate(requested, allowed)
		require.NoError(t, err)
		assert.True(t, got.SubsetOf(allowed))
		assert.True(t, got.SubsetOf(Of(policy.Available()...)))
		assert.True(t, got.SubsetOf(Parse(requested)))
	}
}

func TestPolicyCustomStrategy(t *testing.T) {
	anything := func(_ []string, _ string) bool { return true }
	policy := NewPolicy(nil, WithStrategy(anything))

	got, err := policy.Validate("whatever", nil)
	require.NoError(t, err)
	assert.True(t, got.Has("whatever"))
}
