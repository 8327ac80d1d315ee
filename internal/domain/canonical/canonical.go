// Package canonical serializes request payloads to a stable byte form for hashing.
//
// Object keys are emitted in sorted order at every depth, insignificant whitespace is dropped,
// HTML characters are not escaped and numbers keep their literal text, so semantically equal
// payloads built from structs, maps or raw JSON produce identical bytes.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	apperrors "github.com/edunexus/governance/internal/errors"
)

// Marshal returns the canonical JSON encoding of v. Raw JSON inputs ([]byte, json.RawMessage)
// are parsed rather than re-quoted.
func Marshal(v any) ([]byte, error) {
	raw, err := toJSON(v)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "payload is not serializable")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "payload is not valid JSON")
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return nil, apperrors.Validation("payload contains trailing data")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "payload is not serializable")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Hash returns the hex-encoded SHA-256 of the canonical form of v.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the hex-encoded SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func toJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case json.RawMessage:
		return t, nil
	case []byte:
		return t, nil
	case nil:
		return nil, fmt.Errorf("nil payload")
	default:
		return json.Marshal(v)
	}
}
