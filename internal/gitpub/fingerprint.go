package gitpub

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Fingerprint returns the SHA-1 hex digest of content's UTF-8 encoding.
// Invalid byte sequences are replaced with U+FFFD first so the result is stable
// for any input. Fingerprints detect change only; they are not a security primitive.
func Fingerprint(content string) string {
	sum := sha1.Sum([]byte(strings.ToValidUTF8(content, "\uFFFD")))
	return hex.EncodeToString(sum[:])
}
