package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/edunexus/governance/internal/errors"
)

type planRequest struct {
	Topic    string   `json:"topic"`
	Grade    int      `json:"grade"`
	Sections []string `json:"sections"`
}

func TestMarshal_StableAcrossShapes(t *testing.T) {
	fromStruct, err := Marshal(map[string]any{
		"studentId": "u-1",
		"payload":   planRequest{Topic: "a<b", Grade: 7, Sections: []string{"x", "y"}},
	})
	require.NoError(t, err)

	fromRaw, err := Marshal(json.RawMessage(`{
		"payload": {"sections": ["x","y"], "grade": 7, "topic": "a<b"},
		"studentId": "u-1"
	}`))
	require.NoError(t, err)

	assert.Equal(t, string(fromRaw), string(fromStruct))
	assert.Equal(t, `{"payload":{"grade":7,"sections":["x","y"],"topic":"a<b"},"studentId":"u-1"}`, string(fromStruct))
}

func TestMarshal_PreservesNumberLiterals(t *testing.T) {
	out, err := Marshal([]byte(`{"big":12345678901234567890,"f":1.50}`))
	require.NoError(t, err)
	assert.Equal(t, `{"big":12345678901234567890,"f":1.50}`, string(out))
}

func TestMarshal_RejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"nil", nil},
		{"broken json", []byte(`{"a":`)},
		{"trailing data", []byte(`{"a":1} {"b":2}`)},
		{"stray closing brace", []byte(`{"a":1}}`)},
		{"stray closing bracket", []byte(`[1]]`)},
		{"trailing garbage", []byte(`{"a":1} x`)},
		{"unsupported type", map[string]any{"ch": make(chan int)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.in)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestHash(t *testing.T) {
	a, err := Hash(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := Hash(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	c, err := Hash(map[string]any{"a": 1, "b": 3})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashBytes(nil))
}
