package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint derives a cache key from a parameter map: prefix plus the
// first 16 hex chars of the MD5 of the canonical JSON serialisation.
// encoding/json writes map keys sorted, which is the canonical form.
func Fingerprint(prefix string, params map[string]any) string {
	b, err := json.Marshal(params)
	if err != nil {
		// Parameter maps are built from plain values; marshal cannot
		// realistically fail. Fall back to an unhashed key.
		return fmt.Sprintf("%s:%v", prefix, params)
	}
	sum := md5.Sum(b)
	return prefix + ":" + hex.EncodeToString(sum[:])[:16]
}
