package extract

import (
	"regexp"
	"strings"
)

var (
	pseudocodeTags = map[string]bool{"pseudocode": true, "algorithm": true, "plaintext": true}

	labelledHeading  = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*)?(?:\*\*)?\s*(?:pseudocode|algorithm)\s*(?:\*\*)?\s*:\s*(?:\*\*)?\s*(.*)$`)
	titleHeading     = regexp.MustCompile(`^\s*(?:\*\*)?[A-Z][A-Za-z]*(?:[ \t]+[A-Z][A-Za-z]*)*\s*:\s*(?:\*\*)?\s*$`)
	markdownHeading  = regexp.MustCompile(`^\s*#{1,6}\s`)
	pseudoMDHeading  = regexp.MustCompile(`(?i)^\s*#{1,6}\s*(?:pseudocode|algorithm)\b`)
	numberedStepLine = regexp.MustCompile(`^\s*\d+[.)]\s+\S`)
)

// Pseudocode finds the pseudocode section of an approach response. Strategies,
// first non-empty wins:
//  1. a fenced block tagged pseudocode/algorithm/plaintext, else any fenced block
//  2. a "Pseudocode:" or "Algorithm:" label up to the next capitalised heading
//  3. a "## Pseudocode" or "## Algorithm" Markdown section
//  4. the first run of numbered step lines
//
// It returns "" when nothing matches; unlike Code it never falls back to the
// whole response.
func Pseudocode(text string) string {
	for _, strategy := range []func(string) string{
		fencedPseudocode,
		labelledSection,
		markdownSection,
		numberedSteps,
	} {
		if out := strings.TrimSpace(strategy(text)); out != "" {
			return out
		}
	}
	return ""
}

func fencedPseudocode(text string) string {
	blocks := Blocks(text)
	for _, b := range blocks {
		if pseudocodeTags[b.Lang] && b.Body != "" {
			return b.Body
		}
	}
	for _, b := range blocks {
		if b.Body != "" {
			return b.Body
		}
	}
	return ""
}

func labelledSection(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		m := labelledHeading.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		var section []string
		if first := strings.TrimSpace(m[1]); first != "" {
			section = append(section, first)
		}
		for _, next := range lines[i+1:] {
			if isHeading(next) {
				break
			}
			section = append(section, next)
		}
		return strings.Join(section, "\n")
	}
	return ""
}

func markdownSection(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !pseudoMDHeading.MatchString(line) {
			continue
		}
		var section []string
		for _, next := range lines[i+1:] {
			if markdownHeading.MatchString(next) {
				break
			}
			section = append(section, next)
		}
		return strings.Join(section, "\n")
	}
	return ""
}

// numberedSteps returns the first run of at least two numbered lines. Indented
// continuation lines and blank lines between steps stay in the run.
func numberedSteps(text string) string {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if numberedStepLine.MatchString(line) {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	run := []string{lines[start]}
	steps := 1
	var pending []string
	for _, line := range lines[start+1:] {
		switch {
		case numberedStepLine.MatchString(line):
			run = append(run, pending...)
			pending = pending[:0]
			run = append(run, line)
			steps++
		case strings.TrimSpace(line) == "":
			pending = append(pending, line)
		case line[0] == ' ' || line[0] == '\t':
			run = append(run, pending...)
			pending = pending[:0]
			run = append(run, line)
		default:
			if steps < 2 {
				return ""
			}
			return strings.Join(run, "\n")
		}
	}
	if steps < 2 {
		return ""
	}
	return strings.Join(run, "\n")
}

// isHeading reports whether line starts a new titled section such as
// "Time Complexity:" or "## Explanation".
func isHeading(line string) bool {
	if markdownHeading.MatchString(line) {
		return true
	}
	if !titleHeading.MatchString(line) {
		return false
	}
	// "ELSE:" inside pseudocode is not a heading.
	return strings.ToUpper(line) != line
}
