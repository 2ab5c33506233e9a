package adapter

import (
	"bytes"
	"encoding/json"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	htmlTagRegex     = regexp.MustCompile(`<[^>]*>`)
	leadingNumberRex = regexp.MustCompile(`^-?\d+(\.\d+)?`)
)

var (
	nestedTextKeys    = []string{"name", "text", "displayName", "label"}
	nestedIntKeys     = []string{"years", "value"}
	nestedDecimalKeys = []string{"absoluteValue", "value", "amount"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// decodePayload decodes raw JSON keeping numbers as json.Number so ids and
// epoch timestamps survive without float rounding.
func decodePayload(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// arrayAt walks nested objects along path and returns the array at the end.
func arrayAt(v any, path ...string) ([]any, bool) {
	for _, k := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		v = m[k]
	}
	arr, ok := v.([]any)
	return arr, ok
}

// Field readers take candidate keys in order and return the first one whose
// value converts to something usable, so an empty or oddly shaped primary key
// falls through to its alternates.

// stringField reads a plain string or number, or a nested {name|text|displayName|label}.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		for _, k := range nestedTextKeys {
			if s := asString(x[k]); s != "" {
				return s
			}
		}
	}
	return ""
}

// intField reads a number, a numeric string ("3", "3 yrs") or a nested {years|value}.
// Anything unreadable yields zero.
func intField(m map[string]any, keys ...string) int {
	for _, k := range keys {
		if f, ok := asFloat(m[k], nestedIntKeys); ok {
			return int(f)
		}
	}
	return 0
}

// decimalField reads a number, a numeric string ("12,00,000") or a nested
// {absoluteValue|value|amount}.
func decimalField(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if f, ok := asFloat(m[k], nestedDecimalKeys); ok {
			return f
		}
	}
	return 0
}

// asFloat reports false when v holds no readable number.
func asFloat(v any, nested []string) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return x, true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", "")
		num := leadingNumberRex.FindString(s)
		if num == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case map[string]any:
		for _, k := range nested {
			if f, ok := asFloat(x[k], nested); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// timeField reads epoch millis, epoch seconds, a numeric string, an ISO-8601
// timestamp with or without zone, or a bare date. Returns nil when absent or
// unreadable.
func timeField(m map[string]any, keys ...string) *time.Time {
	for _, k := range keys {
		if t := asTime(m[k]); t != nil {
			return t
		}
	}
	return nil
}

func asTime(v any) *time.Time {
	switch x := v.(type) {
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			f, ferr := x.Float64()
			if ferr != nil {
				return nil
			}
			n = int64(f)
		}
		return epochTime(n)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epochTime(n)
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}

// epochTime treats values above 1e11 as milliseconds.
func epochTime(n int64) *time.Time {
	if n <= 0 {
		return nil
	}
	var t time.Time
	if n > 1e11 {
		t = time.UnixMilli(n).UTC()
	} else {
		t = time.Unix(n, 0).UTC()
	}
	return &t
}

// stringListField reads an array of strings or nested objects, or a
// comma-separated string. Missing fields yield an empty slice.
func stringListField(m map[string]any, keys ...string) []string {
	for _, k := range keys {
		if list := asStringList(m[k]); len(list) > 0 {
			return list
		}
	}
	return []string{}
}

func asStringList(v any) []string {
	out := []string{}
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	switch x := v.(type) {
	case nil:
	case []any:
		for _, item := range x {
			if obj, ok := item.(map[string]any); ok {
				if s := asString(obj); s != "" {
					add(s)
					continue
				}
				add(asString(obj["city"]))
				continue
			}
			add(asString(item))
		}
	case string:
		for _, part := range strings.Split(x, ",") {
			add(part)
		}
	default:
		add(asString(x))
	}
	return out
}

// orderRange swaps min and max when both are set and reversed.
func orderRange[T int | float64](lo, hi T) (T, T) {
	if lo > 0 && hi > 0 && lo > hi {
		return hi, lo
	}
	return lo, hi
}

// extractText converts an HTML or HTML-encoded string to plain text.
// Entities are unescaped before tags are stripped so double-encoded markup
// is handled, then whitespace is collapsed.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	plain := htmlTagRegex.ReplaceAllString(unescaped, " ")
	return strings.Join(strings.Fields(plain), " ")
}
