// Package handlers provides shared utilities for the product handler packs.
// Every record a handler emits must be reproducible: identifiers derive
// from the scheduled event's identity and all random draws come from the
// event's own seed.
package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"math/rand"
	"strings"
)

// DeterministicID builds a stable record identifier from the entity and the
// scheduled event identity.
func DeterministicID(prefix, entityID, eventID string) string {
	sum := sha256.Sum256([]byte(entityID + ":" + eventID))

	return prefix + "-" + strings.ToUpper(hex.EncodeToString(sum[:4]))
}

// RNG returns the per-event random source.
func RNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// Pick selects one element deterministically.
func Pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.Intn(len(items))]
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Param returns a typed parameter value, falling back to def when the key
// is absent or holds a different type.
func Param[T any](params map[string]any, key string, def T) T {
	if params == nil {
		return def
	}

	if v, ok := params[key]; ok {
		if typed, ok := v.(T); ok {
			return typed
		}
	}

	return def
}

// IntParam returns an integer parameter, accepting the float64 values JSON
// decoding produces.
func IntParam(params map[string]any, key string, def int) int {
	if params == nil {
		return def
	}

	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}

	return def
}
