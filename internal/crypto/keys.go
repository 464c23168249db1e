package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// LoadMACKey loads a signing key from a file.
// Supported formats:
// - raw secret bytes
// - "hex:" or "base64:" prefixed encodings of the secret
func LoadMACKey(keyID, path string) (MACKey, error) {
	// #nosec G304 -- path is operator-configured.
	raw, err := os.ReadFile(path)
	if err != nil {
		return MACKey{}, err
	}
	secret, err := decodeSecret(raw)
	if err != nil {
		return MACKey{}, err
	}
	return NewMACKey(keyID, secret)
}

func decodeSecret(raw []byte) ([]byte, error) {
	trim := strings.TrimSpace(string(raw))
	if trim == "" {
		return nil, fmt.Errorf("empty key file")
	}
	if strings.HasPrefix(trim, "base64:") {
		return base64.StdEncoding.DecodeString(strings.TrimPrefix(trim, "base64:"))
	}
	if strings.HasPrefix(trim, "hex:") {
		return hex.DecodeString(strings.TrimPrefix(trim, "hex:"))
	}
	return []byte(trim), nil
}
