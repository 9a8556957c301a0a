package domain

import (
	"encoding"
	"encoding/json"
	"fmt"
	"strconv"
)

// Optional holds a derived field that is either present or absent. Master
// files written by older runs may lack a column entirely; such fields decode
// as absent instead of as a misleading zero value.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// Absent returns an empty Optional.
func Absent[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsSome reports whether a value is present.
func (o Optional[T]) IsSome() bool {
	return o.ok
}

// OrElse returns the value, or def when absent.
func (o Optional[T]) OrElse(def T) T {
	if !o.ok {
		return def
	}
	return o.value
}

// MarshalText encodes an absent value as an empty cell.
func (o Optional[T]) MarshalText() ([]byte, error) {
	if !o.ok {
		return []byte{}, nil
	}
	switch v := any(o.value).(type) {
	case encoding.TextMarshaler:
		return v.MarshalText()
	case string:
		return []byte(v), nil
	case bool:
		return []byte(strconv.FormatBool(v)), nil
	case int:
		return []byte(strconv.Itoa(v)), nil
	case float64:
		return []byte(strconv.FormatFloat(v, 'f', -1, 64)), nil
	case fmt.Stringer:
		return []byte(v.String()), nil
	default:
		return nil, fmt.Errorf("optional: unsupported type %T", o.value)
	}
}

// UnmarshalText decodes an empty cell as absent.
func (o *Optional[T]) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*o = Optional[T]{}
		return nil
	}

	var v T
	var err error
	switch p := any(&v).(type) {
	case encoding.TextUnmarshaler:
		err = p.UnmarshalText(b)
	case *string:
		*p = string(b)
	case *bool:
		*p, err = strconv.ParseBool(string(b))
	case *int:
		*p, err = strconv.Atoi(string(b))
	case *float64:
		*p, err = strconv.ParseFloat(string(b), 64)
	default:
		err = fmt.Errorf("optional: unsupported type %T", v)
	}
	if err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// MarshalJSON encodes an absent value as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null as absent.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
