package provider

import (
	"regexp"
	"strings"
)

type redactionPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

// Order matters: the Anthropic key shape must be tried before the generic
// "sk-" OpenAI shape.
var redactionPatterns = []redactionPattern{
	{regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{10,}`), "[REDACTED:anthropic_key]"},
	{regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`), "[REDACTED:openai_key]"},
	{regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`), "[REDACTED:gemini_key]"},
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`), "key=[REDACTED]"},
}

// Redact replaces anything shaped like a credential in s.
func Redact(s string) string {
	for _, p := range redactionPatterns {
		s = p.pattern.ReplaceAllString(s, p.replacement)
	}
	return s
}

// MaskKey returns a display form of an API key: the first three and last four
// characters, or a fixed mask for short keys.
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return ""
	case len(key) <= 8:
		return "****"
	default:
		return key[:3] + "..." + key[len(key)-4:]
	}
}
