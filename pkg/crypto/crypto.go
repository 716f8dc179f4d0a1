package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// SignatureKeyLength is the size in bytes of a campaign signature key.
const SignatureKeyLength = 20

// TrackingIDLength is the length of the URL-safe tracking token carried in
// public tracking URLs (9 random bytes, base64url encoded).
const TrackingIDLength = 12

// SignURL computes the base64url HMAC-SHA1 signature of a link target with
// a campaign signature key. The signature is embedded in rewritten links
// and verified on the click redirect.
func SignURL(key []byte, url string) string {
	h := hmac.New(sha1.New, key)
	h.Write([]byte(url))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// VerifyURLSignature reports whether signature matches SignURL(key, url).
// The comparison runs in constant time.
func VerifyURLSignature(key []byte, url string, signature string) bool {
	expected := SignURL(key, url)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// GenerateTrackingID returns a fresh 12-character URL-safe token.
func GenerateTrackingID() (string, error) {
	raw := make([]byte, 9)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate tracking id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// GenerateSignatureKey returns a fresh 20-byte campaign signature key.
func GenerateSignatureKey() ([]byte, error) {
	key := make([]byte, SignatureKeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate signature key: %w", err)
	}
	return key, nil
}
