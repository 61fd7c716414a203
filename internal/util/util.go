package util

import (
	"fmt"
)

// MustString converts a plugin config value to a string. A missing key
// yields "", any non-string value panics.
func MustString(data any) string {
	if data == nil {
		return ""
	}
	stringData, ok := data.(string)
	if !ok {
		panic(fmt.Sprintf("cant convert %T to string", data))
	}
	return stringData
}

// IntOr returns the integer stored in data or def when the key is absent.
func IntOr(data any, def int) (int, error) {
	switch v := data.(type) {
	case nil:
		return def, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("cant convert %T to int", data)
	}
}

// BoolOr returns the bool stored in data or def when the key is absent.
func BoolOr(data any, def bool) (bool, error) {
	if data == nil {
		return def, nil
	}
	b, ok := data.(bool)
	if !ok {
		return false, fmt.Errorf("cant convert %T to bool", data)
	}
	return b, nil
}
