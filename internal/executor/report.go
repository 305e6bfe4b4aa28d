package executor

import (
	"sort"
	"time"

	"github.com/ZanzyTHEbar/toolplan"
)

type callOutcome int

const (
	outcomeSucceeded callOutcome = iota
	outcomeFailed
	outcomeCached
	outcomeCancelled
)

// CallResult is the outcome of one planned call.
type CallResult struct {
	Index    int
	Name     string
	Batch    int
	Payload  any
	Err      error
	Cached   bool
	Attempts int
	Duration time.Duration

	produces []toolplan.DataTag
}

// Succeeded reports whether the call produced a payload.
func (r CallResult) Succeeded() bool { return r.Err == nil }

func (r CallResult) outcome() callOutcome {
	switch {
	case r.Cached:
		return outcomeCached
	case r.Err == nil:
		return outcomeSucceeded
	case r.Attempts == 0 && toolplan.HasCode(r.Err, toolplan.ErrCodeCancelled):
		return outcomeCancelled
	default:
		return outcomeFailed
	}
}

// Report collects the results of one plan execution. It implements
// toolplan.State, so it can be handed to the planner as the prior state of
// the next turn.
type Report struct {
	PlanID   string
	Calls    []CallResult // sorted by call index; calls of unstarted batches are absent
	Duration time.Duration
}

func (r *Report) add(results ...CallResult) {
	r.Calls = append(r.Calls, results...)
}

func (r *Report) finalize(start time.Time) {
	sort.SliceStable(r.Calls, func(i, j int) bool { return r.Calls[i].Index < r.Calls[j].Index })
	r.Duration = time.Since(start)
}

// Get returns the result for the call with the given index.
func (r *Report) Get(index int) (CallResult, bool) {
	for _, c := range r.Calls {
		if c.Index == index {
			return c, true
		}
	}
	return CallResult{}, false
}

// Failed returns the calls that ended with an error.
func (r *Report) Failed() []CallResult {
	var out []CallResult
	for _, c := range r.Calls {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}

// Results implements toolplan.State. Only successful calls are reported.
// Payloads that do not declare their tags are wrapped with the tags the
// call's spec produces.
func (r *Report) Results() []toolplan.ToolResult {
	if r == nil {
		return nil
	}
	out := make([]toolplan.ToolResult, 0, len(r.Calls))
	for _, c := range r.Calls {
		if c.Err != nil {
			continue
		}
		payload := c.Payload
		if _, declared := payload.(toolplan.TagDeclarer); !declared {
			payload = toolplan.TaggedPayload{Value: payload, Tags: c.produces}
		}
		out = append(out, toolplan.ToolResult{Name: c.Name, Payload: payload})
	}
	return out
}
