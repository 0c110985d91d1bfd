package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"carecompanion/internal/capability"
	"carecompanion/internal/core"
	"carecompanion/internal/storage"
	"carecompanion/pkg"
)

// Task maintains the subject's activity list. The model decides the
// operation through a three-verb protocol (ADD, REMOVE, SHOW); the step
// applies it against durable storage and refreshes the list in the state.
type Task struct {
	store storage.DurableStore
	llm   capability.Client
	log   zerolog.Logger
}

func NewTask(store storage.DurableStore, llm capability.Client, log zerolog.Logger) *Task {
	return &Task{store: store, llm: llm, log: log}
}

func (t *Task) Name() core.StepName {
	return core.StepTask
}

func (t *Task) Run(ctx context.Context, state pkg.TurnState) (pkg.TurnState, error) {
	current, err := t.store.ActiveActivities(ctx, state.SubjectID)
	if err != nil {
		return state, fmt.Errorf("loading activities: %w", err)
	}

	decision, err := t.llm.Generate(ctx, t.prompt(state.Input, current))
	if err != nil {
		// Listing is the only safe operation without a model decision.
		t.log.Warn().Err(err).Msg("task interpretation unavailable, showing current list")
		decision = "SHOW"
	}
	decision = strings.TrimSpace(decision)

	switch {
	case strings.HasPrefix(decision, "ADD:"):
		desc := strings.TrimSpace(strings.TrimPrefix(decision, "ADD:"))
		if desc != "" {
			if err := t.store.AddActivity(ctx, state.SubjectID, desc); err != nil {
				return state, fmt.Errorf("adding activity: %w", err)
			}
			t.log.Info().Str("activity", desc).Msg("activity added")
		}
	case strings.HasPrefix(decision, "REMOVE:"):
		target := strings.TrimSpace(strings.TrimPrefix(decision, "REMOVE:"))
		if match := matchActivity(current, target); match != nil {
			if err := t.store.DeactivateActivity(ctx, state.SubjectID, match.ID); err != nil {
				return state, fmt.Errorf("removing activity: %w", err)
			}
			t.log.Info().Str("activity", match.Description).Msg("activity completed")
		} else {
			// Removing something already gone is a no-op, not an error.
			t.log.Info().Str("target", target).Msg("no matching activity to remove")
		}
	default:
		// SHOW and anything unrecognised both mean: just refresh the list.
	}

	refreshed, err := t.store.ActiveActivities(ctx, state.SubjectID)
	if err != nil {
		return state, fmt.Errorf("reloading activities: %w", err)
	}
	state.Tasks = make([]string, 0, len(refreshed))
	for _, a := range refreshed {
		state.Tasks = append(state.Tasks, a.Description)
	}
	return state, nil
}

// matchActivity returns the first activity whose description contains the
// target (or vice versa), case-insensitive. Nil when nothing matches.
func matchActivity(activities []storage.Activity, target string) *storage.Activity {
	target = strings.ToLower(target)
	if target == "" {
		return nil
	}
	for i, a := range activities {
		desc := strings.ToLower(a.Description)
		if strings.Contains(desc, target) || strings.Contains(target, desc) {
			return &activities[i]
		}
	}
	return nil
}

func (t *Task) prompt(input string, current []storage.Activity) string {
	var list strings.Builder
	for _, a := range current {
		fmt.Fprintf(&list, "- %s\n", a.Description)
	}
	if list.Len() == 0 {
		list.WriteString("(none)\n")
	}

	return fmt.Sprintf(`You manage a daily activity list for a person living with dementia.

CURRENT ACTIVITIES:
%s
Decide what they want and answer with exactly one line:
- To add an activity: ADD: <short description>
- To mark one done or remove it: REMOVE: <words matching the activity>
- To see the list or anything else: SHOW

They said: %q`, list.String(), input)
}
