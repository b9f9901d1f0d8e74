package storage

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// generateMasterKey creates a fresh 256-bit key, returned base64-encoded
// for storage in the OS keyring (which expects a string secret).
func generateMasterKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeMasterKey(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("storage: decode keyring master key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("storage: keyring master key has unexpected length %d", len(raw))
	}
	return raw, nil
}
