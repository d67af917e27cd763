package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// ValueError reports a value that cannot be represented as a field's type.
type ValueError struct {
	Field string
	Type  FieldType
	Value any
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("field %q: cannot use %v (%T) as %s", e.Field, e.Value, e.Value, e.Type)
}

// ToStorage converts a caller-supplied value into the driver value bound
// for a column of the field's type. nil stays nil. Numeric strings are
// accepted for numeric fields; anything that does not convert cleanly is
// a *ValueError.
func ToStorage(f FieldSpec, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	bad := &ValueError{Field: f.Name, Type: f.Type, Value: v}

	switch f.Type {
	case TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, bad
			}
			return int64(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, bad
			}
			return i, nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, bad
			}
			return i, nil
		}
	case TypeFloat:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		case json.Number:
			fv, err := n.Float64()
			if err != nil {
				return nil, bad
			}
			return fv, nil
		case string:
			fv, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, bad
			}
			return fv, nil
		}
	case TypeString, TypeUUID:
		switch s := v.(type) {
		case string:
			return s, nil
		case json.Number:
			return s.String(), nil
		}
	case TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch b {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
	case TypeDatetime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Format(time.RFC3339Nano), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, bad
			}
			return parsed.UTC().Format(time.RFC3339Nano), nil
		}
	}
	return nil, bad
}

// FromStorage normalizes a scanned driver value into the caller-facing
// representation for the field's type: int64, float64, string, bool, or
// an RFC 3339 timestamp string.
func FromStorage(f FieldSpec, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	bad := &ValueError{Field: f.Name, Type: f.Type, Value: v}

	switch f.Type {
	case TypeInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, bad
			}
			return i, nil
		}
	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case string:
			fv, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, bad
			}
			return fv, nil
		}
	case TypeString, TypeUUID:
		switch s := v.(type) {
		case string:
			return s, nil
		case int64:
			return strconv.FormatInt(s, 10), nil
		}
	case TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		case string:
			return b == "1" || strings.EqualFold(b, "true"), nil
		}
	case TypeDatetime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Format(time.RFC3339Nano), nil
		case string:
			return t, nil
		}
	}
	return nil, bad
}

// SortedKeys returns map keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's slices.Sort uses UTF-8 byte order which differs for
// characters outside the BMP.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
