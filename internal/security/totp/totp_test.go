package totp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T, now time.Time) (*Verifier, string) {
	t.Helper()
	v := NewVerifier("OpsLink Test")
	v.Now = func() time.Time { return now }
	e, err := v.Enroll("officer@alpha.test")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(e.URL, "otpauth://totp/"))
	return v, e.Secret
}

func TestValidate_Window(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 15, 0, time.UTC)
	v, secret := newTestVerifier(t, now)

	for _, shift := range []time.Duration{0, -30 * time.Second, 30 * time.Second} {
		code, err := v.CodeAt(secret, now.Add(shift))
		require.NoError(t, err)
		_, ok := v.Validate(secret, code, 0)
		require.True(t, ok, "shift %s", shift)
	}

	for _, shift := range []time.Duration{-90 * time.Second, 90 * time.Second} {
		code, err := v.CodeAt(secret, now.Add(shift))
		require.NoError(t, err)
		_, ok := v.Validate(secret, code, 0)
		require.False(t, ok, "shift %s", shift)
	}
}

func TestValidate_RejectsReplay(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 15, 0, time.UTC)
	v, secret := newTestVerifier(t, now)

	code, err := v.CodeAt(secret, now)
	require.NoError(t, err)

	step, ok := v.Validate(secret, code, 0)
	require.True(t, ok)
	require.Equal(t, now.Unix()/30, step)

	_, ok = v.Validate(secret, code, step)
	require.False(t, ok)
}

func TestValidate_Malformed(t *testing.T) {
	v, secret := newTestVerifier(t, time.Now())

	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		_, ok := v.Validate(secret, code, 0)
		require.False(t, ok, code)
	}
	_, ok := v.Validate("", "123456", 0)
	require.False(t, ok)
}
