package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key creates a deterministic cache key for a resource path and its request
// params. Two param maps that differ only in key order produce the same key.
func Key(path string, params map[string]any) string {
	hash := sha256.Sum256(canonicalParams(params))
	paramsHash := hex.EncodeToString(hash[:8]) // Use first 8 bytes for shorter key

	return path + ":" + paramsHash
}

// canonicalParams serializes params into a canonical byte form for hashing.
// The marshal/unmarshal round trip reduces every value to plain JSON types,
// so equivalent params hash identically regardless of their Go representation
// (json.RawMessage vs decoded maps, int vs float64). encoding/json emits map
// keys in sorted order at every nesting level.
func canonicalParams(params map[string]any) []byte {
	if len(params) == 0 {
		return []byte("{}")
	}

	raw, err := json.Marshal(params)
	if err != nil {
		// Non-marshalable values (channels, funcs) should not appear in
		// request params; fall back to the textual form rather than panic
		return fmt.Appendf(nil, "%v", params)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return raw
	}

	normalized, err := json.Marshal(decoded)
	if err != nil {
		return raw
	}

	return normalized
}
