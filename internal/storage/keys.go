// Package storage derives cache keys for rendered tiles and moves tile
// blobs in and out of the tile cache bucket.
package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultKey is the cache key for a tile rendered with no explicit
// query parameters. Tiles under this key are served by the CDN without
// hitting the server again.
const DefaultKey = "default"

// QueryHash derives the cache key from the effective query parameters.
// Parameters with empty values are treated as absent. A request with no
// effective parameters collapses to DefaultKey so it shares the
// pre-seeded cache; everything else hashes to a stable digest over the
// sorted parameter list.
func QueryHash(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return DefaultKey
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(sb.String()))
}

// TileObjectKey is the bucket layout of one cached tile.
func TileObjectKey(dataset, version, key string, z, x, y int, ext string) string {
	return fmt.Sprintf("%s/%s/%s/%d/%d/%d.%s", dataset, version, key, z, x, y, ext)
}
