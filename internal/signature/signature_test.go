package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	t.Parallel()

	body := []byte(`{"order_id":"123"}`)
	sig := Sign("secret", body)

	assert.Len(t, sig, 64)
	assert.Equal(t, sig, Sign("secret", body), "signing is deterministic")
	assert.NotEqual(t, sig, Sign("other-secret", body))
	assert.NotEqual(t, sig, Sign("secret", []byte(`{"order_id":"124"}`)))
}

func TestSignKnownVector(t *testing.T) {
	t.Parallel()

	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	sig := Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
	assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", sig)
}

func TestVerify(t *testing.T) {
	t.Parallel()

	body := []byte(`{"hello":"world"}`)
	sig := Sign("secret", body)

	assert.True(t, Verify("secret", body, sig))
	assert.False(t, Verify("secret", body, ""), "empty signature")
	assert.False(t, Verify("secret", body, sig[:10]), "truncated signature")
	assert.False(t, Verify("secret", body, Sign("other", body)), "wrong secret")
	assert.False(t, Verify("secret", []byte(`{"hello":"mars"}`), sig), "tampered body")
}
