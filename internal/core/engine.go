package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"carecompanion/pkg"
)

// Engine executes the fixed step graph once per inbound turn:
//
//	recall -> supervisor -> {task | health | comfort} -> end
//
// The branch after the supervisor is the only conditional edge; a memory,
// unset, or unrecognised route ends the run instead of erroring, so an
// ambiguous classification degrades to a plain conversational reply.
// The topology is fixed at construction and never mutated.
type Engine struct {
	steps map[StepName]Step
	log   zerolog.Logger
}

// NewEngine wires the five steps of the graph. All of them are required;
// a missing step is a wiring bug and fails construction.
func NewEngine(log zerolog.Logger, steps ...Step) (*Engine, error) {
	e := &Engine{
		steps: make(map[StepName]Step, len(steps)),
		log:   log,
	}
	for _, s := range steps {
		if s == nil {
			return nil, fmt.Errorf("engine: nil step")
		}
		e.steps[s.Name()] = s
	}
	for _, required := range []StepName{StepRecall, StepSupervisor, StepTask, StepHealth, StepComfort} {
		if _, ok := e.steps[required]; !ok {
			return nil, fmt.Errorf("engine: missing step %q", required)
		}
	}
	return e, nil
}

// Execute runs the graph with the given initial state and returns the
// terminal state. Step failures propagate to the caller unchanged; the
// engine performs no retries and no business logic beyond edge selection.
func (e *Engine) Execute(ctx context.Context, state pkg.TurnState) (pkg.TurnState, error) {
	start := time.Now()
	path := make([]StepName, 0, 3)

	run := func(name StepName, s pkg.TurnState) (pkg.TurnState, error) {
		path = append(path, name)
		e.log.Debug().Str("step", string(name)).Msg("executing step")
		out, err := e.steps[name].Run(ctx, s)
		if err != nil {
			return s, fmt.Errorf("step %s: %w", name, err)
		}
		return out, nil
	}

	state, err := run(StepRecall, state)
	if err != nil {
		return state, err
	}

	state, err = run(StepSupervisor, state)
	if err != nil {
		return state, err
	}

	if next, ok := responderFor(state.Route); ok {
		state, err = run(next, state)
		if err != nil {
			return state, err
		}
	}

	e.log.Info().
		Str("route", string(state.Route)).
		Strs("path", pathStrings(path)).
		Dur("elapsed", time.Since(start)).
		Msg("turn completed")

	return state, nil
}

// responderFor is the dispatch table for the conditional edge. It is total
// over RouteLabel: labels without a responder end the run.
func responderFor(route pkg.RouteLabel) (StepName, bool) {
	switch route {
	case pkg.RouteTask:
		return StepTask, true
	case pkg.RouteHealth:
		return StepHealth, true
	case pkg.RouteComfort:
		return StepComfort, true
	case pkg.RouteMemory, pkg.RouteUnset:
		return "", false
	default:
		return "", false
	}
}

func pathStrings(path []StepName) []string {
	out := make([]string, len(path))
	for i, p := range path {
		out[i] = string(p)
	}
	return out
}
