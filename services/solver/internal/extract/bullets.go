// Package extract turns free-form model output into the structured pieces the
// pipeline needs: list items, code, pseudocode, complexity and JSON objects.
// Every function here is pure and falls back to a best-effort answer instead of
// failing, except JSONObject which reports undecodable input.
package extract

import (
	"regexp"
	"strings"
)

// MaxFallbackItems caps how many sentences Bullets returns when the text has
// no list lines.
const MaxFallbackItems = 5

var (
	listLine     = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+?)\s*$`)
	sentenceStop = regexp.MustCompile(`[.!?]\s+|\n`)
)

// Bullets returns the content of every line that starts with "-", "*", "•" or
// "N." in order. Without any such line it falls back to Sentences.
func Bullets(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		m := listLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if item := strings.TrimSpace(m[1]); item != "" {
			items = append(items, item)
		}
	}
	if len(items) > 0 {
		return items
	}
	return Sentences(text, MaxFallbackItems)
}

// Sentences splits text on sentence punctuation followed by whitespace or on
// newlines and returns at most limit non-empty fragments.
func Sentences(text string, limit int) []string {
	var out []string
	for _, frag := range sentenceStop.Split(text, -1) {
		frag = strings.TrimSpace(frag)
		if frag == "" {
			continue
		}
		out = append(out, frag)
		if len(out) == limit {
			break
		}
	}
	return out
}
