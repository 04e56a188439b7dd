// Package normalize maps the server's historically inconsistent payload
// shapes onto the canonical model. Every function is pure and total: bad or
// missing fields degrade to fallbacks, never to errors or panics.
package normalize

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// decode fills out (a pointer to a record struct) from raw. Field names match
// case-insensitively; scalar types are coerced. A field with an incompatible
// shape is left at its zero value and the rest of the record still decodes.
func decode(raw any, out any) bool {
	m, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			compositeToScalarHook(),
			numberToStringHook(),
		),
	})
	if err != nil {
		return false
	}
	_ = dec.Decode(m)
	return true
}

// compositeToScalarHook drops maps and slices headed for scalar fields, so a
// field the server once sent as an object does not poison the whole record.
func compositeToScalarHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		switch from.Kind() {
		case reflect.Map, reflect.Slice:
		default:
			return data, nil
		}
		switch to.Kind() {
		case reflect.String, reflect.Bool, reflect.Int, reflect.Int64, reflect.Float64:
			return reflect.Zero(to).Interface(), nil
		}
		return data, nil
	}
}

// numberToStringHook renders json.Number and floats as plain decimal strings
// so numeric ids do not turn into exponent notation.
func numberToStringHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to.Kind() != reflect.String {
			return data, nil
		}
		switch v := data.(type) {
		case json.Number:
			return v.String(), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
		return data, nil
	}
}

// first returns the first non-blank value.
func first(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// firstAny returns the first non-nil value.
func firstAny(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// idOf extracts an id from a scalar or from an embedded object's id fields.
func idOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any:
		var rec struct {
			ID       string `json:"id"`
			UnderID  string `json:"_id"`
			UserID   string `json:"userId"`
			UserID2  string `json:"user_id"`
			Email    string `json:"email"`
			Username string `json:"username"`
		}
		decode(t, &rec)
		return first(rec.ID, rec.UnderID, rec.UserID, rec.UserID2, rec.Email, rec.Username)
	}
	return ""
}

// fallbackID derives a stable id from the record's content.
func fallbackID(raw any) string {
	data, err := json.Marshal(raw)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", raw))
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("gen-%016x", h.Sum64())
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// unixMillisThreshold separates unix seconds from unix milliseconds.
const unixMillisThreshold = 1e11

// timeOf parses RFC3339-style strings and unix seconds or milliseconds.
func timeOf(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return unixTime(f), true
		}
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return unixTime(f), true
		}
	case float64:
		return unixTime(t), true
	case int64:
		return unixTime(float64(t)), true
	case int:
		return unixTime(float64(t)), true
	case time.Time:
		return t.UTC(), !t.IsZero()
	}
	return time.Time{}, false
}

func unixTime(f float64) time.Time {
	if f <= 0 {
		return time.Time{}
	}
	if f >= unixMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

func firstTime(values ...any) time.Time {
	for _, v := range values {
		if ts, ok := timeOf(v); ok {
			return ts
		}
	}
	return time.Time{}
}

// listOf unwraps a list payload: a bare array, or an object holding the array
// under one of keys (searched one level into "data" as well).
func listOf(raw any, keys ...string) []any {
	switch t := raw.(type) {
	case []any:
		return t
	case map[string]any:
		for _, k := range keys {
			if v, ok := lookup(t, k); ok {
				if list, ok := v.([]any); ok {
					return list
				}
			}
		}
		if data, ok := lookup(t, "data"); ok {
			if list, ok := data.([]any); ok {
				return list
			}
			if inner, ok := data.(map[string]any); ok {
				return listOf(inner, keys...)
			}
		}
	}
	return nil
}

// lookup finds key in m, falling back to a case-insensitive match.
func lookup(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
