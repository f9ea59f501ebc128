// Package codec turns remote call results into typed values.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/caesar-terminal/amm/internal/fabric"
)

// Validator is implemented by payload types that need more than a
// successful unmarshal to count as well formed.
type Validator interface {
	Validate() error
}

// Decode interprets a resolved result as T. A failed call, a payload that
// does not unmarshal into T, or one that fails T's Validate all yield
// ok == false. Decode panics on a pending result: continuations only see
// resolved calls.
func Decode[T any](r fabric.Result) (v T, ok bool) {
	switch r.Status {
	case fabric.StatusSuccessful:
	case fabric.StatusFailed:
		return v, false
	default:
		panic(fmt.Sprintf("codec: decode of %s result", r.Status))
	}

	if err := json.Unmarshal(r.Payload, &v); err != nil {
		var zero T
		return zero, false
	}
	if val, isVal := any(&v).(Validator); isVal {
		if err := val.Validate(); err != nil {
			var zero T
			return zero, false
		}
	}
	return v, true
}

// Encode builds a successful result carrying v as JSON.
func Encode(v any) fabric.Result {
	raw, err := json.Marshal(v)
	if err != nil {
		return fabric.Result{Status: fabric.StatusFailed, Err: err}
	}
	return fabric.Result{Status: fabric.StatusSuccessful, Payload: raw}
}
