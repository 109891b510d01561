package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Sign computes hex(HMAC-SHA256(secret, body)). The secret is used as
// a UTF-8 text key: sources store their secret hex-encoded and the hex
// string itself is the key, it is not decoded first.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether suppliedSig matches the expected signature of
// body under secret. The comparison is constant-time over equal-length
// strings; unequal lengths are rejected up front.
func Verify(secret string, body []byte, suppliedSig string) bool {
	expected := Sign(secret, body)
	if len(suppliedSig) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(suppliedSig)) == 1
}
