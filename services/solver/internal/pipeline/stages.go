package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/forge-ai/solver/services/solver/internal/extract"
	"github.com/forge-ai/solver/services/solver/internal/provider"
	"github.com/forge-ai/solver/shared/events"
	"github.com/rs/zerolog/log"
)

const (
	stageTemperature = 0.2
	stageMaxTokens   = 4000
	codeMaxTokens    = 6000
)

// stageInput is everything a stage reads besides the run context. It is
// fixed for the whole run.
type stageInput struct {
	client provider.Provider
	models provider.Models
	images []provider.Image
}

func (in stageInput) ask(ctx context.Context, model, system, prompt string, maxTokens int, images []provider.Image) (string, error) {
	return in.client.Generate(ctx, provider.Request{
		Model:       model,
		System:      system,
		Prompt:      prompt,
		Images:      images,
		MaxTokens:   maxTokens,
		Temperature: stageTemperature,
	})
}

// executor runs one stage: it reads earlier fields of rc, writes its own and
// returns the payload of the stage's success event. A non-nil error means the
// run must stop here.
type executor func(ctx context.Context, in stageInput, rc *RunContext) (any, error)

type stage struct {
	state  State
	event  string
	action string
	exec   executor
}

// stages is the fixed run order. The last stage has no event of its own; its
// result is carried by run.succeeded.
var stages = []stage{
	{StateExtracting, events.ProblemExtracted, "extract problem information", extractProblem},
	{StateEdgeCases, events.EdgeCasesExtracted, "analyze edge cases", extractEdgeCases},
	{StateSolutionThinking, events.SolutionThinking, "generate solution insights", thinkSolution},
	{StateApproach, events.ApproachDeveloped, "develop approach", developApproach},
	{StateCodeGen, events.CodeGenerated, "generate code", generateCode},
	{StateComplexity, "", "analyze complexity", analyzeComplexity},
}

// ── Stage 1 ───────────────────────────────────────────────────────────────────

func extractProblem(ctx context.Context, in stageInput, rc *RunContext) (any, error) {
	text, err := in.ask(ctx, in.models.Extraction, extractionSystem, extractionPrompt(rc.Language), stageMaxTokens, in.images)
	if err != nil {
		return nil, err
	}
	problem, err := parseProblem(text)
	if err != nil {
		return nil, provider.Errorf(provider.KindParse, in.client.Name(), "unparseable problem info: %w", err)
	}
	rc.Problem = problem
	return events.ProblemExtractedPayload{Problem: problem}, nil
}

func parseProblem(text string) (events.ProblemInfo, error) {
	obj, err := extract.JSONObject(text)
	if err != nil {
		return events.ProblemInfo{}, err
	}
	p := events.ProblemInfo{
		ProblemStatement: jsonField(obj, "problem_statement"),
		Constraints:      jsonField(obj, "constraints"),
		ExampleInput:     jsonField(obj, "example_input"),
		ExampleOutput:    jsonField(obj, "example_output"),
	}
	if p.ProblemStatement == "" {
		return events.ProblemInfo{}, errors.New("problem_statement is missing")
	}
	return p, nil
}

// jsonField reads a field the model may have answered as a string, a list of
// lines or a scalar.
func jsonField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		lines := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				lines = append(lines, s)
			}
		}
		return strings.Join(lines, "\n")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// ── Stages 2-4 ────────────────────────────────────────────────────────────────

func extractEdgeCases(ctx context.Context, in stageInput, rc *RunContext) (any, error) {
	text, err := in.ask(ctx, in.models.Solution, solutionSystem, edgeCasesPrompt(rc), stageMaxTokens, nil)
	if err != nil {
		return nil, err
	}
	rc.EdgeCases = extract.Bullets(text)
	return events.EdgeCasesPayload{EdgeCases: rc.EdgeCases}, nil
}

func thinkSolution(ctx context.Context, in stageInput, rc *RunContext) (any, error) {
	text, err := in.ask(ctx, in.models.Solution, solutionSystem, solutionThinkingPrompt(rc), stageMaxTokens, nil)
	if err != nil {
		return nil, err
	}
	rc.SolutionThoughts = extract.Bullets(text)
	return events.SolutionThinkingPayload{Thoughts: rc.SolutionThoughts}, nil
}

// developApproach may leave Pseudocode empty; the code stage then runs
// without it.
func developApproach(ctx context.Context, in stageInput, rc *RunContext) (any, error) {
	text, err := in.ask(ctx, in.models.Solution, solutionSystem, approachPrompt(rc), stageMaxTokens, nil)
	if err != nil {
		return nil, err
	}
	rc.Pseudocode = extract.Pseudocode(text)
	if rc.Pseudocode == "" {
		log.Warn().Msg("approach has no pseudocode, generating code without it")
	}
	rc.ApproachThoughts = extract.Bullets(withoutFences(text))
	return events.ApproachPayload{Thoughts: rc.ApproachThoughts, Pseudocode: rc.Pseudocode}, nil
}

// withoutFences drops fenced blocks so pseudocode steps are not read back as
// narrative bullets.
func withoutFences(text string) string {
	var sb strings.Builder
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if !inFence {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// ── Stages 5-6 ────────────────────────────────────────────────────────────────

func generateCode(ctx context.Context, in stageInput, rc *RunContext) (any, error) {
	text, err := in.ask(ctx, in.models.Solution, codeSystem, codePrompt(rc), codeMaxTokens, nil)
	if err != nil {
		return nil, err
	}
	code := extract.Code(text)
	if code == "" {
		return nil, provider.Errorf(provider.KindParse, in.client.Name(), "model returned no code")
	}
	rc.Code = code
	return events.CodeGeneratedPayload{Thoughts: rc.CombinedThoughts(), Code: code}, nil
}

func analyzeComplexity(ctx context.Context, in stageInput, rc *RunContext) (any, error) {
	if rc.Code == "" {
		return nil, errors.New("complexity analysis needs generated code")
	}
	text, err := in.ask(ctx, in.models.Solution, solutionSystem, complexityPrompt(rc), stageMaxTokens, nil)
	if err != nil {
		return nil, err
	}
	rc.TimeComplexity, rc.SpaceComplexity = extract.Complexity(text)
	return nil, nil
}
