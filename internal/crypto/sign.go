package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SchemeV1 is the current signature scheme: HMAC-SHA256 over canonical bytes,
// hex encoded. The prefix travels with every stored signature so the scheme
// can rotate without invalidating historical records.
const SchemeV1 = "v1"

const MinSecretLen = 32

// MACKey is the process-wide signing key, loaded at startup and immutable
// thereafter.
type MACKey struct {
	keyID  string
	secret []byte
}

func NewMACKey(keyID string, secret []byte) (MACKey, error) {
	if len(secret) < MinSecretLen {
		return MACKey{}, ErrShortSecret
	}
	return MACKey{keyID: keyID, secret: secret}, nil
}

func (k MACKey) KeyID() string {
	return k.keyID
}

// Sign returns the versioned integrity tag for message.
func (k MACKey) Sign(message []byte) string {
	mac := hmac.New(sha256.New, k.secret)
	mac.Write(message)
	return SchemeV1 + ":" + hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the tag for message and compares in constant time.
func (k MACKey) Verify(message []byte, tag string) (bool, error) {
	scheme, rest, found := strings.Cut(tag, ":")
	if !found || rest == "" {
		return false, ErrMalformedTag
	}
	if scheme != SchemeV1 {
		return false, ErrUnknownScheme
	}
	want, err := hex.DecodeString(rest)
	if err != nil {
		return false, ErrMalformedTag
	}

	mac := hmac.New(sha256.New, k.secret)
	mac.Write(message)
	return hmac.Equal(mac.Sum(nil), want), nil
}

// DigestHex returns the SHA-256 digest of data as lowercase hex.
func DigestHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestWithPrefix returns the SHA-256 digest with the "sha256:" prefix.
func DigestWithPrefix(data []byte) string {
	return "sha256:" + DigestHex(data)
}
