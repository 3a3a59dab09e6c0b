package ticker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// identity derivation: two fetches of the same underlying source item
// must yield the same ID, across runs separated by any amount of time.
// When the source exposes a stable entry key we hash that; otherwise we
// fall back to the normalized payload. Capture time never participates.

const idSeparator = "\x1f"

// EntryID derives a record identity from a source-provided entry key.
func EntryID(sourceKey, entryKey string) string {
	return digest(sourceKey, entryKey)
}

// ContentID derives a record identity from the normalized payload, for
// sources that publish no stable per-entry key.
func ContentID(sourceKey, author, title, body string) string {
	return digest(sourceKey, Normalize(author), Normalize(title), Normalize(body))
}

// Normalize trims and collapses whitespace so that markup reflows of
// unchanged content do not change the derived identity.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, idSeparator)))
	return hex.EncodeToString(sum[:])
}
