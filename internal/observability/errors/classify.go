// Package errors turns arbitrary errors into low-cardinality class names for metric tags and alerts.
package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/edunexus/governance/internal/errors"
)

// Classify returns a short error class. Application errors classify by their code
// (for example "dependency_unavailable"); everything else by the innermost concrete type.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}
