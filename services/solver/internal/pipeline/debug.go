package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/forge-ai/solver/services/solver/internal/extract"
	"github.com/forge-ai/solver/services/solver/internal/provider"
	"github.com/forge-ai/solver/shared/events"
)

const (
	// DebugPlaceholderCode stands in for code when the analysis has no fenced block.
	DebugPlaceholderCode = "// Debug mode - see analysis below"
	// DebugComplexity fills both complexity fields of a debug result.
	DebugComplexity = "N/A - debug mode"

	defaultDebugThought = "Debug analysis based on your screenshots"
	maxDebugThoughts    = 5
)

// DebugRequest is one follow-up on an already extracted problem.
type DebugRequest struct {
	Problem      events.ProblemInfo
	Images       []provider.Image
	Language     string
	PreviousCode string
}

// DebugResult is what a follow-up run produces.
type DebugResult struct {
	RunID           string   `json:"run_id"`
	Code            string   `json:"code"`
	DebugAnalysis   string   `json:"debug_analysis"`
	Thoughts        []string `json:"thoughts"`
	TimeComplexity  string   `json:"time_complexity"`
	SpaceComplexity string   `json:"space_complexity"`
}

var keyPointsHeading = regexp.MustCompile(`(?im)^\s*(?:#{1,6}\s*)?\**key points\**:?\s*$`)

func analyzeDebug(ctx context.Context, in stageInput, req DebugRequest, language string) (*DebugResult, error) {
	text, err := in.ask(ctx, in.models.Debugging, debugSystem, debugPrompt(req.Problem, language, req.PreviousCode), stageMaxTokens, in.images)
	if err != nil {
		return nil, err
	}

	code, ok := extract.FirstCodeBlock(text)
	if !ok || code == "" {
		code = DebugPlaceholderCode
	}
	return &DebugResult{
		Code:            code,
		DebugAnalysis:   strings.TrimSpace(text),
		Thoughts:        debugThoughts(text),
		TimeComplexity:  DebugComplexity,
		SpaceComplexity: DebugComplexity,
	}, nil
}

// debugThoughts prefers the bullets under the Key Points heading and falls
// back to the bullets of the whole answer.
func debugThoughts(text string) []string {
	var thoughts []string
	if loc := keyPointsHeading.FindStringIndex(text); loc != nil {
		thoughts = extract.Bullets(withoutFences(text[loc[1]:]))
	}
	if len(thoughts) == 0 {
		thoughts = extract.Bullets(withoutFences(text))
	}
	if len(thoughts) > maxDebugThoughts {
		thoughts = thoughts[:maxDebugThoughts]
	}
	if len(thoughts) == 0 {
		thoughts = []string{defaultDebugThought}
	}
	return thoughts
}
