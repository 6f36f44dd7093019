// Package optfield provides a tri-state optional JSON field: a config key
// can be absent (inherit the default), explicitly null (reset to zero), or
// explicitly set to a value. Adapted from the teacher's pkg/jsonx.Field[T]
// for the config file's optional keys (internal/config).
package optfield

import (
	"bytes"
	"encoding/json"
)

type Field[T any] struct {
	set  bool
	null bool
	val  T
}

func (o Field[T]) IsSet() bool      { return o.set }
func (o Field[T]) IsNull() bool     { return o.set && o.null }
func (o Field[T]) Value() (T, bool) { return o.val, o.set && !o.null }

// Or returns the field's value if explicitly set (and non-null), else def.
func (o Field[T]) Or(def T) T {
	if v, ok := o.Value(); ok {
		return v
	}
	return def
}

func (o *Field[T]) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "null":
		o.set, o.null = true, true
		var zero T
		o.val = zero
		return nil
	default:
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		o.set, o.null, o.val = true, false, v
		return nil
	}
}
