package core

import (
	"context"

	"carecompanion/pkg"
)

// Step is a single processing unit in the turn pipeline. Steps receive the
// turn state by value and return an updated copy; external side effects
// (durable writes, model calls) are permitted, edge selection is not.
type Step interface {
	Run(ctx context.Context, state pkg.TurnState) (pkg.TurnState, error)
	Name() StepName
}

// StepName identifies a node of the fixed step graph.
type StepName string

const (
	StepRecall     StepName = "recall"
	StepSupervisor StepName = "supervisor"
	StepTask       StepName = "task"
	StepHealth     StepName = "health"
	StepComfort    StepName = "comfort"
)
