package syncapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

func hashJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Records are plain data; Marshal cannot fail on them.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
