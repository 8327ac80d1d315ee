package aiclient

import (
	"encoding/json"
	"fmt"
	"math"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode ai response: %w", err)
	}
	return nil
}

// Search evaluates a JMESPath expression against the response body.
func (r *Response) Search(expr string) (any, error) {
	var doc any
	if err := r.Decode(&doc); err != nil {
		return nil, err
	}
	out, err := jmespath.Search(expr, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	return out, nil
}

// SearchInt evaluates expr and requires an integral number result.
func (r *Response) SearchInt(expr string) (int, error) {
	v, err := r.Search(expr)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("evaluate %q: expected an integer, got %v", expr, v)
	}
	return int(f), nil
}

// ValidateExpression reports whether expr compiles.
func ValidateExpression(expr string) error {
	if _, err := jmespath.Compile(expr); err != nil {
		return fmt.Errorf("invalid jmespath expression %q: %w", expr, err)
	}
	return nil
}
