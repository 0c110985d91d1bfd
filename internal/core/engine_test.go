package core

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carecompanion/pkg"
)

// stubStep records its execution and optionally sets the route or fails.
type stubStep struct {
	name  StepName
	route pkg.RouteLabel
	err   error
	runs  *[]StepName
}

func (s *stubStep) Name() StepName { return s.name }

func (s *stubStep) Run(_ context.Context, state pkg.TurnState) (pkg.TurnState, error) {
	*s.runs = append(*s.runs, s.name)
	if s.err != nil {
		return state, s.err
	}
	if s.route != pkg.RouteUnset {
		state.Route = s.route
	}
	return state, nil
}

func newStubEngine(t *testing.T, supervisorRoute pkg.RouteLabel, supervisorErr error) (*Engine, *[]StepName) {
	t.Helper()
	runs := &[]StepName{}
	engine, err := NewEngine(zerolog.Nop(),
		&stubStep{name: StepRecall, runs: runs},
		&stubStep{name: StepSupervisor, route: supervisorRoute, err: supervisorErr, runs: runs},
		&stubStep{name: StepTask, runs: runs},
		&stubStep{name: StepHealth, runs: runs},
		&stubStep{name: StepComfort, runs: runs},
	)
	require.NoError(t, err)
	return engine, runs
}

func TestNewEngineRequiresAllSteps(t *testing.T) {
	runs := &[]StepName{}
	_, err := NewEngine(zerolog.Nop(),
		&stubStep{name: StepRecall, runs: runs},
		&stubStep{name: StepSupervisor, runs: runs},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing step")
}

func TestExecuteBranchesOnRoute(t *testing.T) {
	cases := []struct {
		route pkg.RouteLabel
		path  []StepName
	}{
		{pkg.RouteTask, []StepName{StepRecall, StepSupervisor, StepTask}},
		{pkg.RouteHealth, []StepName{StepRecall, StepSupervisor, StepHealth}},
		{pkg.RouteComfort, []StepName{StepRecall, StepSupervisor, StepComfort}},
		{pkg.RouteMemory, []StepName{StepRecall, StepSupervisor}},
	}

	for _, tc := range cases {
		t.Run(string(tc.route), func(t *testing.T) {
			engine, runs := newStubEngine(t, tc.route, nil)

			out, err := engine.Execute(context.Background(), pkg.TurnState{Input: "hello"})
			require.NoError(t, err)
			assert.Equal(t, tc.route, out.Route)
			assert.Equal(t, tc.path, *runs)
		})
	}
}

func TestExecuteStepErrorPropagatesWithStepName(t *testing.T) {
	boom := errors.New("store offline")
	engine, runs := newStubEngine(t, pkg.RouteUnset, boom)

	_, err := engine.Execute(context.Background(), pkg.TurnState{Input: "hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), string(StepSupervisor))
	assert.Equal(t, []StepName{StepRecall, StepSupervisor}, *runs)
}

func TestExecuteUnsetRouteEndsRun(t *testing.T) {
	engine, runs := newStubEngine(t, pkg.RouteUnset, nil)

	out, err := engine.Execute(context.Background(), pkg.TurnState{Input: "hello"})
	require.NoError(t, err)
	assert.Equal(t, pkg.RouteUnset, out.Route)
	assert.Equal(t, []StepName{StepRecall, StepSupervisor}, *runs)
}
