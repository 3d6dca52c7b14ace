package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// fencedBlock matches a triple-backtick span. The optional first group is the
// language tag, which only counts as a tag when a newline follows it.
var fencedBlock = regexp.MustCompile("(?s)```(?:([\\w+#.-]*)[ \\t]*\\r?\\n)?(.*?)```")

// Block is one fenced span of a model response.
type Block struct {
	Lang string
	Body string
}

// Blocks returns every fenced block in text, bodies trimmed.
func Blocks(text string) []Block {
	matches := fencedBlock.FindAllStringSubmatch(text, -1)
	out := make([]Block, 0, len(matches))
	for _, m := range matches {
		out = append(out, Block{
			Lang: strings.ToLower(m[1]),
			Body: strings.TrimSpace(m[2]),
		})
	}
	return out
}

// FirstCodeBlock returns the trimmed body of the first fenced block.
func FirstCodeBlock(text string) (string, bool) {
	m := fencedBlock.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[2]), true
}

// Code returns the first non-empty fenced block, or the whole trimmed response
// when the model did not fence its answer. Fences that are all empty yield "".
func Code(text string) string {
	blocks := Blocks(text)
	if len(blocks) == 0 {
		return strings.TrimSpace(text)
	}
	for _, b := range blocks {
		if b.Body != "" {
			return b.Body
		}
	}
	return ""
}

// StripFences removes a Markdown fence wrapper such as ```json ... ``` and
// returns the trimmed content.
func StripFences(text string) string {
	if body, ok := FirstCodeBlock(text); ok {
		return body
	}
	return strings.TrimSpace(text)
}

// ErrNoJSONObject is returned when a response holds no decodable JSON object.
var ErrNoJSONObject = errors.New("no JSON object in response")

// JSONObject decodes the JSON object in a model response. Fences are stripped
// first; prose around the object is ignored.
func JSONObject(text string) (map[string]any, error) {
	body := StripFences(text)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return nil, ErrNoJSONObject
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(body[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSONObject, err)
	}
	return obj, nil
}
