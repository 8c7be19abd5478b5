// Package normalize converts raw field values, as decoded from a store, into
// canonical strings, numbers and percentages.
//
// Raw values come in many shapes: plain scalars, wrapped computed values
// ({"value": ...}), linked records ({"id": ..., "name": ...}), lists of any of
// these, and attachment lists ([{"url": ...}]). Every function here is total:
// input it cannot interpret yields "" or ok == false, never a panic, and never
// a Go-syntax rendering of a map or slice.
package normalize

import (
    "encoding/json"
    "math"
    "net/url"
    "reflect"
    "regexp"
    "strconv"
    "strings"
    "unicode"
)

// innerKeys are the keys that carry the display value of a wrapped or linked
// value, in lookup order.
var innerKeys = []string{"value", "name"}

var leadingFloat = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// First is the list policy shared by every normalizer: multi-valued fields are
// expected to hold a single value in practice, so only the first element is
// considered. ok is false when v is not a list or is empty.
func First(v any) (any, bool) {
    list, ok := List(v)
    if !ok || len(list) == 0 {
        return nil, false
    }
    return list[0], true
}

// String returns the trimmed canonical string form of v, or "".
func String(v any) string {
    switch t := v.(type) {
    case nil:
        return ""
    case string:
        return strings.TrimSpace(t)
    case bool:
        if t {
            return "true"
        }
        return ""
    case map[string]any:
        return inner(t)
    }
    if f, ok := numeric(v); ok {
        return formatNumber(f)
    }
    if _, isList := List(v); isList {
        first, ok := First(v)
        if !ok {
            return ""
        }
        if m, isMap := first.(map[string]any); isMap {
            return inner(m)
        }
        if isScalar(first) {
            return String(first)
        }
    }
    return ""
}

// Number returns the numeric value of v. Strings are parsed for a leading
// decimal number ("10 units" is 10); lists use their first element; wrapped
// and linked values use their inner value.
func Number(v any) (float64, bool) {
    switch t := v.(type) {
    case nil, bool:
        return 0, false
    case string:
        return parseLeading(t)
    case map[string]any:
        for _, k := range innerKeys {
            if iv, ok := t[k]; ok && iv != nil {
                return Number(iv)
            }
        }
        return 0, false
    }
    if f, ok := numeric(v); ok {
        return f, true
    }
    if first, ok := First(v); ok {
        return Number(first)
    }
    return 0, false
}

// Percentage returns v as a decimal fraction. Strings are always read as
// whole percentages ("30%" and "30" are both 0.30). Bare numbers above 1 are
// whole percentages, numbers up to 1 are already decimal, so exactly 1 means
// 100%. Wrapped and linked values are read through their inner value with
// the same rules. Negative results are rejected.
func Percentage(v any) (float64, bool) {
    var p float64
    switch t := v.(type) {
    case nil, bool:
        return 0, false
    case map[string]any:
        for _, k := range innerKeys {
            if iv, ok := t[k]; ok && iv != nil {
                return Percentage(iv)
            }
        }
        return 0, false
    case string:
        f, ok := parseLeading(strings.Map(func(r rune) rune {
            if r == '%' || unicode.IsSpace(r) {
                return -1
            }
            return r
        }, t))
        if !ok {
            return 0, false
        }
        p = f / 100
    default:
        if f, ok := numeric(v); ok {
            p = f
            if f > 1 {
                p = f / 100
            }
        } else if first, ok := First(v); ok {
            return Percentage(first)
        } else {
            return 0, false
        }
    }
    if p < 0 {
        return 0, false
    }
    return p, true
}

// IsAttachmentList reports whether v is a non-empty list whose first element
// carries an absolute URL.
func IsAttachmentList(v any) bool {
    first, ok := First(v)
    if !ok {
        return false
    }
    m, ok := first.(map[string]any)
    if !ok {
        return false
    }
    raw, _ := m["url"].(string)
    if strings.TrimSpace(raw) == "" {
        return false
    }
    u, err := url.Parse(strings.TrimSpace(raw))
    return err == nil && u.IsAbs() && u.Host != ""
}

// Attachments returns v as a list when it is an attachment list.
func Attachments(v any) ([]any, bool) {
    if !IsAttachmentList(v) {
        return nil, false
    }
    list, _ := List(v)
    return list, true
}

// Strings normalizes every element of a list and drops empty results. A
// non-list value yields at most one element.
func Strings(v any) []string {
    list, ok := List(v)
    if !ok {
        if s := String(v); s != "" {
            return []string{s}
        }
        return nil
    }
    out := make([]string, 0, len(list))
    for _, item := range list {
        if s := String(item); s != "" {
            out = append(out, s)
        }
    }
    return out
}

func inner(m map[string]any) string {
    for _, k := range innerKeys {
        iv, ok := m[k]
        if !ok || iv == nil {
            continue
        }
        if s := String(iv); s != "" {
            return s
        }
    }
    return ""
}

func isScalar(v any) bool {
    switch v.(type) {
    case string, bool:
        return true
    }
    _, ok := numeric(v)
    return ok
}

func numeric(v any) (float64, bool) {
    var f float64
    switch t := v.(type) {
    case float64:
        f = t
    case float32:
        f = float64(t)
    case int:
        f = float64(t)
    case int8:
        f = float64(t)
    case int16:
        f = float64(t)
    case int32:
        f = float64(t)
    case int64:
        f = float64(t)
    case uint:
        f = float64(t)
    case uint8:
        f = float64(t)
    case uint16:
        f = float64(t)
    case uint32:
        f = float64(t)
    case uint64:
        f = float64(t)
    case json.Number:
        parsed, err := t.Float64()
        if err != nil {
            return 0, false
        }
        f = parsed
    default:
        return 0, false
    }
    if math.IsNaN(f) || math.IsInf(f, 0) {
        return 0, false
    }
    return f, true
}

func parseLeading(s string) (float64, bool) {
    m := leadingFloat.FindString(strings.TrimSpace(s))
    if m == "" {
        return 0, false
    }
    f, err := strconv.ParseFloat(m, 64)
    if err != nil || math.IsInf(f, 0) {
        return 0, false
    }
    return f, true
}

func formatNumber(f float64) string {
    return strconv.FormatFloat(f, 'f', -1, 64)
}

// List returns v as a slice. It accepts []any and any other slice type except []byte.
func List(v any) ([]any, bool) {
    switch t := v.(type) {
    case []any:
        return t, true
    case []byte, nil:
        return nil, false
    }
    rv := reflect.ValueOf(v)
    if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
        return nil, false
    }
    out := make([]any, rv.Len())
    for i := range out {
        out[i] = rv.Index(i).Interface()
    }
    return out, true
}
