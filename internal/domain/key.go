package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
)

// ParamsKey builds deterministic value identity from action parameters.
// Params: parameter map; order of insertion is irrelevant.
// Returns: hex sha1 over canonical sorted key=value lines.
func ParamsKey(params map[string]string) string {
	names := make([]string, 0, len(params))
	capacity := 0
	for name, value := range params {
		names = append(names, name)
		capacity += len(name) + len(value) + 2
	}
	sort.Strings(names)

	canonical := make([]byte, 0, capacity)
	for index, name := range names {
		if index > 0 {
			canonical = append(canonical, '\n')
		}
		canonical = append(canonical, name...)
		canonical = append(canonical, '=')
		canonical = append(canonical, params[name]...)
	}
	digest := sha1.Sum(canonical)
	var hashValue [sha1.Size * 2]byte
	hex.Encode(hashValue[:], digest[:])
	return string(hashValue[:])
}
