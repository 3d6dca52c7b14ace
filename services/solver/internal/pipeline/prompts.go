package pipeline

import (
	"fmt"
	"strings"

	"github.com/forge-ai/solver/shared/events"
)

// ── System prompts ────────────────────────────────────────────────────────────

const (
	extractionSystem = "You are a coding challenge interpreter. Read the screenshots of a programming problem " +
		"and return its content as JSON. Return ONLY the JSON object, no explanation."
	solutionSystem = "You are an expert competitive programmer and interview coach. Be concise and concrete."
	codeSystem     = "You are an expert software engineer. Write clean, correct, efficient code that runs as-is."
	debugSystem    = "You are a coding interview assistant reviewing a candidate's solution. " +
		"Use the screenshots of their code, test results and errors to find what is wrong and fix it."
)

// ── Prompt builders ───────────────────────────────────────────────────────────

func extractionPrompt(language string) string {
	var sb strings.Builder
	sb.WriteString("Extract the coding problem shown in these screenshots.\n\n")
	sb.WriteString("Return a JSON object with exactly these fields:\n")
	sb.WriteString(`{"problem_statement": "...", "constraints": "...", "example_input": "...", "example_output": "..."}`)
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("1. problem_statement is required and must contain the full task description\n")
	sb.WriteString("2. Use an empty string for any field not visible in the screenshots\n")
	sb.WriteString("3. Do not wrap the JSON in markdown\n")
	fmt.Fprintf(&sb, "\nThe solution will be written in %s.\n", language)
	return sb.String()
}

func writeProblem(sb *strings.Builder, p events.ProblemInfo) {
	fmt.Fprintf(sb, "PROBLEM:\n%s\n", p.ProblemStatement)
	if p.Constraints != "" {
		fmt.Fprintf(sb, "\nCONSTRAINTS:\n%s\n", p.Constraints)
	}
	if p.ExampleInput != "" {
		fmt.Fprintf(sb, "\nEXAMPLE INPUT:\n%s\n", p.ExampleInput)
	}
	if p.ExampleOutput != "" {
		fmt.Fprintf(sb, "\nEXAMPLE OUTPUT:\n%s\n", p.ExampleOutput)
	}
}

func edgeCasesPrompt(rc *RunContext) string {
	var sb strings.Builder
	writeProblem(&sb, rc.Problem)
	fmt.Fprintf(&sb, "\nLANGUAGE: %s\n\n", rc.Language)
	sb.WriteString("List 3-5 edge cases a correct solution must handle.\n")
	sb.WriteString("One edge case per line, each line starting with \"- \". Keep each to one sentence.\n")
	return sb.String()
}

func solutionThinkingPrompt(rc *RunContext) string {
	var sb strings.Builder
	writeProblem(&sb, rc.Problem)
	fmt.Fprintf(&sb, "\nLANGUAGE: %s\n\n", rc.Language)
	sb.WriteString("Give 3-5 key insights that lead to an efficient solution.\n")
	sb.WriteString("Each insight is one or two sentences on its own line starting with \"- \".\n")
	sb.WriteString("Do not write code.\n")
	return sb.String()
}

func approachPrompt(rc *RunContext) string {
	var sb strings.Builder
	writeProblem(&sb, rc.Problem)
	fmt.Fprintf(&sb, "\nLANGUAGE: %s\n\n", rc.Language)
	sb.WriteString("Describe the approach you would take:\n")
	sb.WriteString("1. Explain the approach as 3-5 bullet points, each starting with \"- \"\n")
	sb.WriteString("2. Then give step-by-step pseudocode inside a fenced block tagged pseudocode:\n")
	sb.WriteString("```pseudocode\n...\n```\n")
	return sb.String()
}

func codePrompt(rc *RunContext) string {
	var sb strings.Builder
	writeProblem(&sb, rc.Problem)
	fmt.Fprintf(&sb, "\nLANGUAGE: %s\n", rc.Language)
	if rc.Pseudocode != "" {
		fmt.Fprintf(&sb, "\nPSEUDOCODE TO FOLLOW:\n%s\n", rc.Pseudocode)
	}
	sb.WriteString("\nWrite a complete, runnable solution.\n\n")
	sb.WriteString("Rules:\n")
	fmt.Fprintf(&sb, "1. Use %s only\n", rc.Language)
	sb.WriteString("2. Put the whole solution in a single fenced code block\n")
	sb.WriteString("3. Prefer the time-optimal approach; keep comments short\n")
	return sb.String()
}

func complexityPrompt(rc *RunContext) string {
	var sb strings.Builder
	writeProblem(&sb, rc.Problem)
	fmt.Fprintf(&sb, "\nSOLUTION (%s):\n```%s\n%s\n```\n\n", rc.Language, rc.Language, rc.Code)
	sb.WriteString("Analyze the time and space complexity of this solution.\n")
	sb.WriteString("Answer in exactly this format:\n")
	sb.WriteString("Time Complexity: O(...) - one sentence explaining why\n")
	sb.WriteString("Space Complexity: O(...) - one sentence explaining why\n")
	return sb.String()
}

func debugPrompt(p events.ProblemInfo, language, previousCode string) string {
	var sb strings.Builder
	writeProblem(&sb, p)
	fmt.Fprintf(&sb, "\nLANGUAGE: %s\n", language)
	if previousCode != "" {
		fmt.Fprintf(&sb, "\nCURRENT SOLUTION:\n```%s\n%s\n```\n", language, previousCode)
	}
	sb.WriteString("\nThe screenshots show the current code, failing tests or error output.\n")
	sb.WriteString("Respond with these sections, in this order, each as a markdown heading:\n\n")
	sb.WriteString("### Issues Identified\n- bullet points naming each bug or failing case\n\n")
	sb.WriteString("### Specific Improvements and Corrections\n- bullet points with concrete fixes\n")
	fmt.Fprintf(&sb, "- include the corrected solution in a single ```%s fenced block\n\n", language)
	sb.WriteString("### Optimizations\n- bullet points, if any apply\n\n")
	sb.WriteString("### Explanation of Changes Needed\nshort paragraph\n\n")
	sb.WriteString("### Key Points\n- 2-5 bullet points summarising the fix\n")
	return sb.String()
}
