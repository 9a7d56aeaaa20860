// Package fieldpath resolves dotted content-extraction paths like
// "choices[0].message.content" against decoded JSON values. A path that does
// not match the shape of the value is never an error, it simply does not
// resolve.
package fieldpath

import (
	"strconv"
	"strings"
)

// Step records the outcome of resolving one path segment.
type Step struct {
	Seg   string
	OK    bool
	Value any
}

// Lookup resolves path against v and returns the value it points at.
// v is expected to be decoded JSON (map[string]any, []any, scalars).
// The second return is false when any segment fails to resolve.
func Lookup(v any, path string) (any, bool) {
	for _, seg := range Split(path) {
		var ok bool
		v, ok = descend(v, seg)
		if !ok {
			return nil, false
		}
	}
	return v, true
}

// Text resolves path and returns the value only if it is a non-empty string.
func Text(v any, path string) (string, bool) {
	val, ok := Lookup(v, path)
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Steps resolves path segment by segment and records each outcome, stopping
// at the first segment that fails. Used by the diagnostic extraction trace.
func Steps(v any, path string) []Step {
	segs := Split(path)
	steps := make([]Step, 0, len(segs))
	for _, seg := range segs {
		next, ok := descend(v, seg)
		if !ok {
			steps = append(steps, Step{Seg: seg})
			return steps
		}
		steps = append(steps, Step{Seg: seg, OK: true, Value: next})
		v = next
	}
	return steps
}

// Split normalizes a path into its segments. Bracket indices and dot-digit
// segments are equivalent ("choices[0].text" == "choices.0.text"), and a
// bare "[]" is shorthand for "[0]".
func Split(path string) []string {
	path = strings.ReplaceAll(path, "[]", "[0]")
	path = strings.ReplaceAll(path, "]", "")
	path = strings.ReplaceAll(path, "[", ".")
	parts := strings.Split(path, ".")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

func descend(v any, seg string) (any, bool) {
	if isIndex(seg) {
		list, ok := v.([]any)
		if !ok {
			return nil, false
		}
		i, err := strconv.Atoi(seg)
		if err != nil || i >= len(list) {
			return nil, false
		}
		return list[i], true
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	val, ok := m[seg]
	return val, ok
}

func isIndex(seg string) bool {
	for _, c := range seg {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(seg) > 0
}
