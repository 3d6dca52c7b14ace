package extract

import (
	"regexp"
	"strings"
)

// NotAvailable is reported for a complexity field the model did not state.
const NotAvailable = "Complexity not available"

var (
	timeLabel  = complexityLabel("time")
	spaceLabel = complexityLabel("space")
)

// complexityLabel matches "Time Complexity:" with optional emphasis around the
// words ("**Time Complexity**:", "**Time:**"), or a heading line of its own
// such as "### Time Complexity".
func complexityLabel(word string) *regexp.Regexp {
	name := word + `(?:\s+complexity)?`
	return regexp.MustCompile(`(?im)(?:\b|__)` + name + `\s*(?:\*\*|__)?\s*:` +
		`|^[ \t]*#{1,6}[ \t]*(?:\*\*|__)?` + name + `(?:\*\*|__)?[ \t]*:?[ \t]*$`)
}

// Complexity pulls the time and space complexity out of an analysis response.
// Each field runs from its label to the next label or the end of the text.
func Complexity(text string) (timeC, spaceC string) {
	timeLocs := timeLabel.FindAllStringIndex(text, -1)
	spaceLocs := spaceLabel.FindAllStringIndex(text, -1)

	return FormatComplexity(labelledSpan(text, timeLocs, spaceLocs)),
		FormatComplexity(labelledSpan(text, spaceLocs, timeLocs))
}

// labelledSpan returns the text after the first label in own, up to the next
// label of either kind.
func labelledSpan(text string, own, other [][]int) string {
	if len(own) == 0 {
		return ""
	}
	start := own[0][1]
	end := len(text)
	for _, locs := range [][][]int{own, other} {
		for _, loc := range locs {
			if loc[0] >= start && loc[0] < end {
				end = loc[0]
			}
		}
	}
	return text[start:end]
}

// FormatComplexity normalises one captured complexity span. A span that already
// pairs a Big-O term with an explanation ("-" or "because") is kept as is;
// otherwise the Big-O term is moved to the front and joined to the rest with
// " - ". A bare Big-O term is returned alone, and prose without Big-O is kept
// verbatim. An empty span yields NotAvailable.
func FormatComplexity(span string) string {
	s := strings.TrimSpace(strings.Trim(span, "*#•- \t\r\n"))
	s = strings.TrimSpace(strings.TrimRight(s, "*"))
	if s == "" {
		return NotAvailable
	}

	start, end := bigOSpan(s)
	if start < 0 {
		return s
	}
	if hasExplanation(s) {
		return s
	}

	notation := s[start:end]
	rest := strings.TrimSpace(s[:start] + " " + s[end:])
	rest = strings.Trim(rest, ",;:. ")
	if rest == "" {
		return notation
	}
	return notation + " - " + rest
}

func hasExplanation(s string) bool {
	return strings.ContainsAny(s, "-–—") || strings.Contains(strings.ToLower(s), "because")
}

// bigOSpan locates the first "O(...)" term with balanced parentheses.
func bigOSpan(s string) (int, int) {
	for i := 0; i+1 < len(s); i++ {
		if s[i] != 'O' || s[i+1] != '(' {
			continue
		}
		if i > 0 && isWordByte(s[i-1]) {
			continue
		}
		depth := 0
		for j := i + 1; j < len(s); j++ {
			switch s[j] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return i, j + 1
				}
			}
		}
		return -1, -1
	}
	return -1, -1
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}
