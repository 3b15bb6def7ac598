// Package cache memoizes derived catalog responses behind a small key/value
// interface with per-entry TTLs. FileCache is the default adapter; MemoryCache
// and RedisCache are drop-in alternatives.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cache stores JSON payloads by key. Implementations never return errors from
// Get or Set: a failed read is a miss and a failed write reports false.
type Cache interface {
	// Get returns the raw JSON payload stored under key, or false when the key
	// is absent, expired or unreadable.
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	// Set serializes data and stores it under key until ttl elapses.
	Set(ctx context.Context, key string, data any, ttl time.Duration) bool
	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string)
	// Clear removes every entry owned by the cache and returns how many were removed.
	Clear(ctx context.Context) (int, error)
}

// GetJSON reads key from c and decodes it into dst. A payload that no longer
// decodes into dst is reported as a miss.
func GetJSON(ctx context.Context, c Cache, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `#`, `\#`, `=`, `\=`, `~`, `\~`)

// Key combines parts into a deterministic cache key. Segments are joined with
// ':'. Strings (and Stringers) are escaped, numbers and bools are marked with
// '=' and nil becomes '~', so parts of different types never share a segment.
// Slices, maps and structs are replaced by '#' and the SHA-256 of their JSON
// encoding so the key length stays bounded.
func Key(parts ...any) string {
	segments := make([]string, len(parts))
	for i, part := range parts {
		segments[i] = keySegment(part)
	}
	return strings.Join(segments, ":")
}

func keySegment(part any) string {
	switch v := part.(type) {
	case nil:
		return "~"
	case string:
		return keyEscaper.Replace(v)
	case fmt.Stringer:
		return keyEscaper.Replace(v.String())
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "=" + fmt.Sprint(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			encoded = []byte(fmt.Sprintf("%#v", v))
		}
		sum := sha256.Sum256(encoded)
		return "#" + hex.EncodeToString(sum[:])
	}
}
