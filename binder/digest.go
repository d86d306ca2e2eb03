// Package binder computes the canonical digest that binds a minted
// credential to the request body present at mint time.
package binder

import (
	"crypto/sha256"
	"sort"
)

// Digest computes the canonical SHA-256 digest of a request body, decoded
// into flat key/value string pairs. The digest is taken over the keys and
// values concatenated in ascending lexicographic order of the keys, making
// it invariant to the order fields appeared on the wire.
func Digest(fields map[string]string) [sha256.Size]byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte(fields[k]))
	}

	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}
