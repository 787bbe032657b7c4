// Package webhook turns raw provider payloads into task creation requests.
// It owns signature validation, payload parsing, bot filtering, and command
// extraction; everything downstream of this package sees typed values only.
package webhook

import (
	"fmt"
	"strconv"
)

// The coerce helpers are the only place raw payload fields cross from
// interface{} into typed Go values. Parsers call them exactly once per
// field; missing or mistyped fields collapse to the zero value rather than
// panicking on a hostile payload.

// asString returns v as a string. Numeric ids arrive as float64 from JSON
// and are rendered without a fractional part.
func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// asBool returns v as a bool; strings "true"/"false" are honored.
func asBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)
		return err == nil && b
	}
	return false
}

// asMap returns v as an object, or nil when it is anything else.
func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

// dig walks nested objects by key path, returning nil when any hop is
// missing or not an object.
func dig(m map[string]interface{}, path ...string) interface{} {
	var cur interface{} = m
	for _, key := range path {
		obj := asMap(cur)
		if obj == nil {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

// digString is dig followed by asString.
func digString(m map[string]interface{}, path ...string) string {
	return asString(dig(m, path...))
}
