package apikey

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// HashKey computes the stored verification hash for a key: hex encoded
// sha3-256 over the salt concatenated with the full key string. Only this
// hash and the salt are persisted; the key itself never is.
func HashKey(salt, key string) string {
	digest := sha3.Sum256([]byte(salt + key))
	return hex.EncodeToString(digest[:])
}
