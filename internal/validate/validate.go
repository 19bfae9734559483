// Package validate holds the primitives shared by all entity validation:
// the strong content checksum and the structured error/result types that
// field-level validators produce. It is free of entity knowledge so it can
// sit below the model package.
package validate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Checksum returns the SHA-256 digest of data as a lowercase hex string.
// It is deterministic and collision-resistant; it is the only content hash
// used anywhere in the store.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// FieldError describes one structural defect, located by a dotted and
// indexed field path such as "messages[2].codeChanges[0].lines".
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Result is the outcome of structural validation.
type Result struct {
	Valid  bool
	Errors []FieldError
}

// ResultOf builds a Result from a list of field errors.
func ResultOf(errs []FieldError) Result {
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Prefixed returns a copy of errs with each path prefixed by parent, so
// nested validators can be composed without knowing where they are mounted.
func Prefixed(parent string, errs []FieldError) []FieldError {
	if parent == "" || len(errs) == 0 {
		return errs
	}
	out := make([]FieldError, len(errs))
	for i, e := range errs {
		path := parent
		if e.Path != "" {
			path = parent + "." + e.Path
		}
		out[i] = FieldError{Path: path, Message: e.Message, Value: e.Value}
	}
	return out
}

// Indexed is Prefixed for array elements: parent[i].child.
func Indexed(parent string, i int, errs []FieldError) []FieldError {
	return Prefixed(fmt.Sprintf("%s[%d]", parent, i), errs)
}
