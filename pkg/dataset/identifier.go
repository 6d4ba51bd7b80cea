package dataset

import (
	"crypto/sha1"
	"encoding/hex"
)

// GenerateIdentifier returns the item identifier for handle: the lowercase
// hex SHA-1 digest of the handle's UTF-8 bytes.
//
// The identifier is used as the remote object name, so it must stay
// byte-compatible with every other dtool implementation.
func GenerateIdentifier(handle string) string {
	sum := sha1.Sum([]byte(handle))
	return hex.EncodeToString(sum[:])
}
