package pipeline

import (
	"fmt"

	"github.com/forge-ai/solver/shared/events"
)

// State is where a run is in the stage sequence.
//
//	Idle → Extracting → EdgeCases → SolutionThinking → Approach → CodeGen → Complexity → Done
//
// Error and Cancelled are reachable from every non-terminal state and end the run.
type State int

const (
	StateIdle State = iota
	StateExtracting
	StateEdgeCases
	StateSolutionThinking
	StateApproach
	StateCodeGen
	StateComplexity
	StateDone
	StateError
	StateCancelled
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateExtracting:       "extracting",
	StateEdgeCases:        "edge_cases",
	StateSolutionThinking: "solution_thinking",
	StateApproach:         "approach",
	StateCodeGen:          "code_generation",
	StateComplexity:       "complexity",
	StateDone:             "done",
	StateError:            "error",
	StateCancelled:        "cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError || s == StateCancelled
}

// next validates a transition. Forward moves go one step at a time; no state
// is re-entered.
func (s State) next(to State) error {
	switch {
	case s.Terminal():
		return fmt.Errorf("run already %s, cannot move to %s", s, to)
	case to == StateError || to == StateCancelled:
		return nil
	case to == s+1:
		return nil
	default:
		return fmt.Errorf("invalid transition %s → %s", s, to)
	}
}

// RunContext accumulates what each stage produced. Stages run one after the
// other, so a stage only ever sees fields written by earlier stages.
type RunContext struct {
	Language         string             `json:"language"`
	Problem          events.ProblemInfo `json:"problem"`
	EdgeCases        []string           `json:"edge_cases,omitempty"`
	SolutionThoughts []string           `json:"solution_thoughts,omitempty"`
	ApproachThoughts []string           `json:"approach_thoughts,omitempty"`
	Pseudocode       string             `json:"pseudocode,omitempty"`
	Code             string             `json:"code,omitempty"`
	TimeComplexity   string             `json:"time_complexity,omitempty"`
	SpaceComplexity  string             `json:"space_complexity,omitempty"`
}

// CombinedThoughts is the merged view of every stage's thoughts, in stage
// order. The per-stage fields are left untouched.
func (rc *RunContext) CombinedThoughts() []string {
	out := make([]string, 0, len(rc.EdgeCases)+len(rc.SolutionThoughts)+len(rc.ApproachThoughts))
	out = append(out, rc.EdgeCases...)
	out = append(out, rc.SolutionThoughts...)
	out = append(out, rc.ApproachThoughts...)
	return out
}

func (rc *RunContext) clone() RunContext {
	c := *rc
	c.EdgeCases = append([]string(nil), rc.EdgeCases...)
	c.SolutionThoughts = append([]string(nil), rc.SolutionThoughts...)
	c.ApproachThoughts = append([]string(nil), rc.ApproachThoughts...)
	return c
}
