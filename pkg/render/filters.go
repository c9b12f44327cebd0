package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Filter names available to rule authors in every renderer.
const (
	FilterJSONPretty    = "json_pretty"
	FilterTruncateWords = "truncate_words"
	FilterUpperFirst    = "upper_first"
)

// DefaultTruncateWords is the word limit of truncate_words without an argument.
const DefaultTruncateWords = 50

// JSONPretty renders v as indented JSON. Values JSON cannot encode are
// rendered with fmt.
func JSONPretty(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// TruncateWords keeps the first n whitespace-separated words of s and appends
// "..." when anything was dropped. Text within the limit is returned unchanged.
func TruncateWords(s string, n int) string {
	if n < 0 {
		n = 0
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + "..."
}

// UpperFirst upper-cases the first letter of s.
func UpperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
