package chronicle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// Hash computes a stable content fingerprint of arbitrary structured data.
// The value is serialized to JSON, canonicalized per RFC 8785 (map keys
// sorted recursively, deterministic number and string formatting), and
// digested with SHA-256. Semantically identical data always produces the
// same fingerprint regardless of map key ordering.
//
// Returns an UnserializableInputError if the value cannot be serialized.
func Hash(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", &UnserializableInputError{Err: err}
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", &UnserializableInputError{Err: err}
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
