// Package nodes implements the five steps of the turn pipeline: the
// supervisor plus the recall, task, health, and comfort responders.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"carecompanion/internal/capability"
	"carecompanion/internal/core"
	"carecompanion/internal/storage"
	"carecompanion/pkg"
)

// End-of-conversation keywords. Matching any of these while a responder is
// active closes the exchange so the next neutral turn is not mis-routed.
var endKeywords = []string{
	"thanks", "thank you", "done", "stop", "nevermind", "never mind",
	"goodbye", "bye", "that's all",
}

// Continuation keywords per responder. A short follow-up containing one of
// these stays with the active responder instead of being reclassified.
var continuationKeywords = map[pkg.RouteLabel][]string{
	pkg.RouteComfort: {"more", "another", "again", "see", "show", "picture", "pic", "photo", "call", "hear", "voice", "her", "him", "them"},
	pkg.RouteTask:    {"another", "also", "add", "remind", "reminder", "task", "list", "what else"},
	pkg.RouteHealth:  {"still", "worse", "more", "also", "pain", "hurt"},
}

// Fresh-classification keyword sets, checked in priority order. Comfort is
// first: emotional and family needs win any overlap for this population.
var routeKeywords = []struct {
	label pkg.RouteLabel
	words []string
}{
	{pkg.RouteComfort, []string{"miss", "lonely", "alone", "sad", "scared", "family", "daughter", "son", "wife", "husband", "grandson", "granddaughter", "grandchild", "love", "photo", "picture", "visit"}},
	{pkg.RouteHealth, []string{"hurt", "pain", "ache", "dizzy", "sick", "nausea", "nauseous", "tired", "chest", "breath", "fell", "headache", "unwell", "symptom"}},
	{pkg.RouteTask, []string{"remind", "reminder", "task", "todo", "to-do", "list", "schedule", "appointment", "activity", "finished", "completed"}},
}

// Supervisor resolves exactly one route label per turn through four layers
// in strict priority order: termination, stickiness, keyword
// classification, model fallback. Stickiness deliberately beats a fresh
// keyword match: reclassifying a short follow-up away from its context
// thrashes the conversation more than an occasional extra sticky turn.
type Supervisor struct {
	sessions storage.SessionStore
	store    storage.DurableStore
	llm      capability.Client
	log      zerolog.Logger
}

func NewSupervisor(sessions storage.SessionStore, store storage.DurableStore, llm capability.Client, log zerolog.Logger) *Supervisor {
	return &Supervisor{sessions: sessions, store: store, llm: llm, log: log}
}

func (s *Supervisor) Name() core.StepName {
	return core.StepSupervisor
}

func (s *Supervisor) Run(ctx context.Context, state pkg.TurnState) (pkg.TurnState, error) {
	input := strings.ToLower(state.Input)

	sess, err := s.sessions.Get(ctx, state.SubjectID)
	if err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		s.log.Warn().Err(err).Str("subject", state.SubjectID).Msg("session lookup failed, routing without continuity")
	}
	active := pkg.RouteUnset
	if sess != nil {
		active = sess.Active
	}

	// Layer 1: termination.
	if active != pkg.RouteUnset && matchesAny(input, endKeywords) {
		if err := s.sessions.ClearActive(ctx, state.SubjectID); err != nil {
			s.log.Warn().Err(err).Msg("clearing active responder failed")
		}
		s.log.Info().Str("was_active", string(active)).Msg("conversation closed by end keyword")
		return s.resolve(ctx, state, pkg.RouteMemory)
	}

	// Layer 2: stickiness.
	if active != pkg.RouteUnset && matchesAny(input, continuationKeywords[active]) {
		if err := s.sessions.Touch(ctx, state.SubjectID); err != nil {
			s.log.Warn().Err(err).Msg("refreshing session failed")
		}
		s.log.Info().Str("active", string(active)).Msg("continuation keyword, staying with active responder")
		return s.resolve(ctx, state, active)
	}

	// Layer 3: keyword classification, comfort > health > task.
	for _, set := range routeKeywords {
		if matchesAny(input, set.words) {
			if err := s.sessions.SetActive(ctx, state.SubjectID, set.label); err != nil {
				s.log.Warn().Err(err).Msg("recording active responder failed")
			}
			return s.resolve(ctx, state, set.label)
		}
	}

	// Layer 4: model fallback, coerced into the closed label set.
	label := s.classify(ctx, state)
	if label == pkg.RouteMemory {
		// Memory never becomes the active responder.
		if active != pkg.RouteUnset {
			if err := s.sessions.ClearActive(ctx, state.SubjectID); err != nil {
				s.log.Warn().Err(err).Msg("clearing active responder failed")
			}
		}
	} else {
		if err := s.sessions.SetActive(ctx, state.SubjectID, label); err != nil {
			s.log.Warn().Err(err).Msg("recording active responder failed")
		}
	}
	return s.resolve(ctx, state, label)
}

// resolve finalises the decision: audit-log it, remember the user turn for
// continuity, and write the label into the state exactly once.
func (s *Supervisor) resolve(ctx context.Context, state pkg.TurnState, label pkg.RouteLabel) (pkg.TurnState, error) {
	if err := s.store.LogInteraction(ctx, state.SubjectID, state.Input, label); err != nil {
		return state, fmt.Errorf("recording interaction: %w", err)
	}
	if err := s.sessions.AddTurn(ctx, state.SubjectID, storage.SessionTurn{Role: "user", Content: state.Input}); err != nil {
		s.log.Warn().Err(err).Msg("recording session turn failed")
	}
	state.Route = label
	return state, nil
}

// classify asks the model for one of the closed labels. Every failure mode
// (transport, timeout, out-of-set output) resolves to memory so the turn
// still completes with a plain conversational reply.
func (s *Supervisor) classify(ctx context.Context, state pkg.TurnState) pkg.RouteLabel {
	var activities []string
	if current, err := s.store.ActiveActivities(ctx, state.SubjectID); err == nil {
		for _, a := range current {
			activities = append(activities, "- "+a.Description)
		}
	}

	prompt := fmt.Sprintf(`Classify the patient's input as one of: "task", "health", "comfort" or "memory".

CURRENT ACTIVITIES:
%s

Guidelines:
- "task": managing their to-do list (adding, removing, completing, or asking about activities)
- "health": symptoms, pain, discomfort, feeling unwell
- "comfort": missing someone, loneliness, wanting to see family, photos of loved ones
- "memory": everything else (general conversation, questions, greetings, unclear input)

Input: %q`, strings.Join(activities, "\n"), state.Input)

	raw, err := s.llm.Classify(ctx, prompt, labelStrings())
	if err != nil {
		s.log.Warn().Err(err).Msg("fallback classification unavailable, resolving to memory")
		return pkg.RouteMemory
	}

	label, err := capability.ParseLabel(raw)
	if err != nil {
		s.log.Warn().Err(err).Str("raw", raw).Msg("classifier returned out-of-set label, resolving to memory")
		return pkg.RouteMemory
	}
	return label
}

func labelStrings() []string {
	labels := pkg.RoutableLabels()
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}

func matchesAny(loweredInput string, words []string) bool {
	for _, w := range words {
		if strings.Contains(loweredInput, w) {
			return true
		}
	}
	return false
}
