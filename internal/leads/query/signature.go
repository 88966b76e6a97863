package query

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Signature derives the cache key for an operation from its canonicalized
// filter map. Callers must pass a map with undefined/empty values already
// removed; encoding/json marshals map keys in sorted order, so two filter
// maps with the same effective content collide to the same key regardless
// of insertion order.
func Signature(operation string, filters map[string]any) string {
	payload, err := json.Marshal(filters)
	if err != nil {
		// Maps of printable scalars never fail to marshal; if one does,
		// fall back to an unshared key rather than a wrong one.
		payload = []byte(operation)
	}
	sum := sha256.Sum256(payload)
	return "leads:" + operation + ":" + hex.EncodeToString(sum[:])
}
