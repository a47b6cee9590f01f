// Package contenthash implements the content-hash dedup policy: a stable
// digest of normalized fetched content, computed once by the fetcher and
// treated as an opaque key by every other stage.
package contenthash

import (
	"bytes"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Compute returns the hex-encoded blake3 digest of the normalized content.
// Normalization trims leading/trailing whitespace and canonicalizes line
// endings so that semantically identical bytes served with different
// trailing whitespace or CRLF/LF framing hash identically, matching the
// spec's invariant that the hash is "stable across reruns of identical
// bytes".
func Compute(content []byte) string {
	normalized := normalize(content)
	sum := blake3.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}

func normalize(content []byte) []byte {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	return bytes.TrimSpace(content)
}
