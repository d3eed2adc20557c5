package utils

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewDownloadToken generates a single-use download credential. Only the hash
// is ever persisted; the plaintext goes to the recipient and is then gone.
func NewDownloadToken() (plaintext, hash string) {
	plaintext = uuid.NewString()
	return plaintext, HashDownloadToken(plaintext)
}

func HashDownloadToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyDownloadToken compares a presented plaintext token against a stored
// hash in constant time.
func VerifyDownloadToken(token, storedHash string) bool {
	expected, err := hex.DecodeString(storedHash)
	if err != nil || len(expected) != sha256.Size {
		return false
	}
	sum := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(sum[:], expected) == 1
}
