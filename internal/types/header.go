package types

import (
	"sort"
	"strconv"
	"strings"
)

// Header is a single name/value pair as reported by the browser.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is an ordered header list with case-insensitive lookup.
// Lookups return the first matching entry.
type Headers []Header

// Get returns the first value for name, or "".
func (h Headers) Get(name string) string {
	for _, e := range h {
		if strings.EqualFold(e.Name, name) {
			return e.Value
		}
	}
	return ""
}

// ContentType returns the trimmed Content-Type value.
func (h Headers) ContentType() string {
	return strings.TrimSpace(h.Get("Content-Type"))
}

// ContentLength returns the declared body size. ok is false when the header
// is absent or not a non-negative integer.
func (h Headers) ContentLength() (n int64, ok bool) {
	v := strings.TrimSpace(h.Get("Content-Length"))
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Map flattens the list into a map keyed by the original header names.
// Empty values are dropped and the first occurrence of a name wins.
func (h Headers) Map() map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	seen := make(map[string]bool, len(h))
	for _, e := range h {
		if e.Value == "" {
			continue
		}
		key := strings.ToLower(e.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out[e.Name] = e.Value
	}
	return out
}

// HeadersFromMap converts a CDP header object into Headers. Non-string values
// are skipped and names are sorted so the result is deterministic.
func HeadersFromMap(m map[string]any) Headers {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make(Headers, 0, len(names))
	for _, k := range names {
		s, ok := m[k].(string)
		if !ok || s == "" {
			continue
		}
		out = append(out, Header{Name: k, Value: s})
	}
	return out
}
