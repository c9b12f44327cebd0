package cache

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Key derives the cache key of a resolution: "{kind}_{id}_{fingerprint}".
func Key(kind string, id int64, vars map[string]any) string {
	return Prefix(kind, id) + Fingerprint(vars)
}

// Prefix returns the key prefix shared by every entry of one rule,
// whatever its variables.
func Prefix(kind string, id int64) string {
	return kind + "_" + strconv.FormatInt(id, 10) + "_"
}

// Fingerprint hashes a variable mapping independently of key order.
// Values are canonicalised as JSON; values JSON cannot encode fall back to
// their Go syntax representation.
func Fingerprint(vars map[string]any) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	d := xxhash.New()
	for _, k := range keys {
		_, _ = d.WriteString(k)
		_, _ = d.Write([]byte{0})
		if b, err := json.Marshal(vars[k]); err == nil {
			_, _ = d.Write(b)
		} else {
			_, _ = d.WriteString(fmt.Sprintf("%#v", vars[k]))
		}
		_, _ = d.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
