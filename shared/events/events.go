// Package events defines the run-event contract streamed to the UI.
// The pipeline, the WebSocket hub and the broker relay import ONLY this package
// to agree on event names and payload shapes.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ── Routing keys (RabbitMQ topic exchange: solver.events) ─────────────────────
const (
	RunStarted         = "run.started"
	ProblemExtracted   = "run.problem_extracted"
	EdgeCasesExtracted = "run.edge_cases_extracted"
	SolutionThinking   = "run.solution_thinking"
	ApproachDeveloped  = "run.approach_developed"
	CodeGenerated      = "run.code_generated"
	RunSucceeded       = "run.succeeded"
	RunFailed          = "run.failed"
	RunCancelled       = "run.cancelled"
	DebugStarted       = "debug.started"
	DebugSucceeded     = "debug.succeeded"
	DebugFailed        = "debug.failed"
	DebugCancelled     = "debug.cancelled"
)

// Queues. At most one run per queue is in flight.
const (
	QueueMain  = "main"
	QueueDebug = "debug"
)

// Terminal reports whether kind ends a run.
func Terminal(kind string) bool {
	switch kind {
	case RunSucceeded, RunFailed, RunCancelled, DebugSucceeded, DebugFailed, DebugCancelled:
		return true
	}
	return false
}

// RunEvent is what the orchestrator emits, in stage order, for one run.
type RunEvent struct {
	RunID   string
	Queue   string
	Kind    string
	Payload any
}

// ── Envelope wraps every message ─────────────────────────────────────────────

type Envelope struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	RunID      string          `json:"run_id,omitempty"`
	Queue      string          `json:"queue,omitempty"`
	Timestamp  time.Time       `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

// WrapRun serialises a RunEvent into an Envelope.
func WrapRun(ev RunEvent) ([]byte, error) {
	p, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:         uuid.New().String(),
		RoutingKey: ev.Kind,
		RunID:      ev.RunID,
		Queue:      ev.Queue,
		Timestamp:  time.Now(),
		Payload:    p,
	})
}

// UnwrapEnvelope decodes an envelope, leaving the payload raw for the
// subscriber to decode by routing key.
func UnwrapEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	return &env, json.Unmarshal(raw, &env)
}

// ── Payload types ─────────────────────────────────────────────────────────────

// ProblemInfo is the structured problem read off the screenshots.
type ProblemInfo struct {
	ProblemStatement string `json:"problem_statement"`
	Constraints      string `json:"constraints,omitempty"`
	ExampleInput     string `json:"example_input,omitempty"`
	ExampleOutput    string `json:"example_output,omitempty"`
}

// Empty reports whether no problem has been extracted.
func (p ProblemInfo) Empty() bool {
	return p == ProblemInfo{}
}

type RunStartedPayload struct {
	Language    string `json:"language"`
	Provider    string `json:"provider"`
	Screenshots int    `json:"screenshots"`
}

type ProblemExtractedPayload struct {
	Problem ProblemInfo `json:"problem"`
}

type EdgeCasesPayload struct {
	EdgeCases []string `json:"edge_cases"`
}

type SolutionThinkingPayload struct {
	Thoughts []string `json:"thoughts"`
}

type ApproachPayload struct {
	Thoughts   []string `json:"thoughts"`
	Pseudocode string   `json:"pseudocode"`
}

type CodeGeneratedPayload struct {
	Thoughts []string `json:"thoughts"`
	Code     string   `json:"code"`
}

type RunSucceededPayload struct {
	Code            string   `json:"code"`
	Thoughts        []string `json:"thoughts"`
	TimeComplexity  string   `json:"time_complexity"`
	SpaceComplexity string   `json:"space_complexity"`
}

type RunFailedPayload struct {
	Stage          string `json:"stage,omitempty"`
	Message        string `json:"message"`
	Classification string `json:"classification"`
}

type RunCancelledPayload struct {
	Stage string `json:"stage,omitempty"`
}

type DebugStartedPayload struct {
	Language    string `json:"language"`
	Provider    string `json:"provider"`
	Screenshots int    `json:"screenshots"`
}

type DebugSucceededPayload struct {
	Code            string   `json:"code"`
	DebugAnalysis   string   `json:"debug_analysis"`
	Thoughts        []string `json:"thoughts"`
	TimeComplexity  string   `json:"time_complexity"`
	SpaceComplexity string   `json:"space_complexity"`
}

type DebugFailedPayload struct {
	Message        string `json:"message"`
	Classification string `json:"classification"`
}
