package util

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// StorageKey maps a cache key into a provider keyspace: prefix + ":" + 16 hex
// chars of xxhash64. Collisions are detected by the key stored in the frame.
func StorageKey(prefix, key string) string {
	return fmt.Sprintf("%s:%016x", prefix, xxhash.Sum64String(key))
}
