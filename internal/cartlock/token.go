package cartlock

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const tokenPrefix = "lock_"

// GenerateToken mints an unguessable lock token: the prefix plus 16 random
// bytes in url-safe base64 without padding.
func GenerateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating lock token: %w", err)
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
