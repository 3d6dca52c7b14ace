package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/forge-ai/solver/services/solver/internal/provider"
	"github.com/forge-ai/solver/shared/events"
)

const (
	cannedProblem    = `{"problem_statement":"Reverse a string","constraints":"","example_input":"\"abc\"","example_output":"\"cba\""}`
	cannedEdgeCases  = "- Empty string\n- Single character\n- Unicode characters"
	cannedThinking   = "- Two pointers swap characters from both ends\n- Slicing builds the reversed copy in one pass"
	cannedApproach   = "Approach:\n- Walk from both ends\n- Swap characters until the pointers meet\n\n```pseudocode\nfunction reverse(s)\n  return s reversed\n```"
	cannedCode       = "Here you go:\n```python\ndef reverse(s):\n    return s[::-1]\n```"
	cannedComplexity = "Time Complexity: O(n) - each character is copied once\nSpace Complexity: O(n) - the reversed copy"
	cannedDebug      = "### Issues Identified\n- Off-by-one in the loop bound\n\n" +
		"### Specific Improvements and Corrections\n```python\ndef reverse(s):\n    return s[::-1]\n```\n\n" +
		"### Optimizations\n- Use slicing\n\n" +
		"### Explanation of Changes Needed\nThe loop skipped the first character.\n\n" +
		"### Key Points\n- Fix the bound\n- Prefer slicing\n"
)

var testModels = provider.Models{Extraction: "ext-model", Solution: "sol-model", Debugging: "dbg-model"}

// happyResponse answers every prompt the pipeline sends with canned text.
func happyResponse(req provider.Request) string {
	switch {
	case req.System == extractionSystem:
		return cannedProblem
	case req.System == debugSystem:
		return cannedDebug
	case req.System == codeSystem:
		return cannedCode
	case strings.Contains(req.Prompt, "time and space complexity"):
		return cannedComplexity
	case strings.Contains(req.Prompt, "edge cases"):
		return cannedEdgeCases
	case strings.Contains(req.Prompt, "key insights"):
		return cannedThinking
	case strings.Contains(req.Prompt, "pseudocode"):
		return cannedApproach
	}
	return "unexpected prompt"
}

// fakeProvider records every request and answers through respond, or with
// happyResponse when respond is nil.
type fakeProvider struct {
	respond func(ctx context.Context, req provider.Request) (string, error)

	mu    sync.Mutex
	calls []provider.Request
}

func (f *fakeProvider) Name() provider.Name { return provider.OpenAI }

func (f *fakeProvider) Generate(ctx context.Context, req provider.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(ctx, req)
	}
	return happyResponse(req), nil
}

func (f *fakeProvider) requests() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Request(nil), f.calls...)
}

// blockWhen makes calls matching match wait for cancellation, signalling
// entered first. Other calls get canned answers.
func blockWhen(entered chan<- struct{}, match func(provider.Request) bool) func(context.Context, provider.Request) (string, error) {
	return func(ctx context.Context, req provider.Request) (string, error) {
		if match(req) {
			entered <- struct{}{}
			<-ctx.Done()
			return "", ctx.Err()
		}
		return happyResponse(req), nil
	}
}

type staticBindings struct {
	binding *provider.Binding
	err     error
}

func (s staticBindings) Active() (*provider.Binding, error) {
	return s.binding, s.err
}

func bindingFor(p provider.Provider) staticBindings {
	return staticBindings{binding: &provider.Binding{Provider: provider.OpenAI, Client: p, Models: testModels, KeyHint: "sk-...test"}}
}

var testImages = []provider.Image{{Data: []byte("png-bytes"), MediaType: "image/png"}}

// drain returns every event buffered on ch.
func drain(ch <-chan events.RunEvent) []events.RunEvent {
	var out []events.RunEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kinds(evs []events.RunEvent) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Kind)
	}
	return out
}

func onQueue(evs []events.RunEvent, queue string) []events.RunEvent {
	var out []events.RunEvent
	for _, ev := range evs {
		if ev.Queue == queue {
			out = append(out, ev)
		}
	}
	return out
}

func waitFor(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func waitTimeout() <-chan time.Time {
	return time.After(2 * time.Second)
}
