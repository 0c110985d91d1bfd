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

const healthNotesLimit = 10

// Health extracts a symptom and a severity tier from the input, persists
// the note, and acknowledges with a severity-matched confirmation. High
// severity is the only thing that raises the emergency flag, and the flag
// never changes the resolved route.
type Health struct {
	store storage.DurableStore
	llm   capability.Client
	log   zerolog.Logger
}

func NewHealth(store storage.DurableStore, llm capability.Client, log zerolog.Logger) *Health {
	return &Health{store: store, llm: llm, log: log}
}

func (h *Health) Name() core.StepName {
	return core.StepHealth
}

func (h *Health) Run(ctx context.Context, state pkg.TurnState) (pkg.TurnState, error) {
	note, severity, found := h.extract(ctx, state.Input)

	var confirmation string
	if found {
		if err := h.store.AddHealthNote(ctx, state.SubjectID, note, severity); err != nil {
			return state, fmt.Errorf("recording health note: %w", err)
		}
		state.IsEmergency = severity == pkg.SeverityHigh
		confirmation = confirmationFor(severity, note)
		h.log.Info().Str("severity", string(severity)).Bool("emergency", state.IsEmergency).Msg("health note recorded")
	} else {
		confirmation = "I've noted that down. Your caretaker will be informed."
	}

	if err := h.store.AppendConversation(ctx, state.SubjectID, "assistant", confirmation); err != nil {
		return state, fmt.Errorf("recording confirmation: %w", err)
	}
	state.ConversationLog = append(state.ConversationLog, confirmation)

	recent, err := h.store.RecentHealthNotes(ctx, state.SubjectID, healthNotesLimit)
	if err != nil {
		return state, fmt.Errorf("loading health notes: %w", err)
	}
	state.HealthNotes = make([]string, 0, len(recent))
	for _, n := range recent {
		state.HealthNotes = append(state.HealthNotes, fmt.Sprintf("%s (%s)", n.Note, n.Severity))
	}
	return state, nil
}

// extract asks the model for a symptom and severity. When the model is
// unavailable or its output does not parse, the raw input is kept verbatim
// as a low-severity note so nothing the subject reported is lost.
func (h *Health) extract(ctx context.Context, input string) (note string, severity pkg.Severity, found bool) {
	resp, err := h.llm.Generate(ctx, h.prompt(input))
	if err != nil {
		h.log.Warn().Err(err).Msg("symptom extraction unavailable, keeping literal note")
		return input, pkg.SeverityLow, true
	}
	resp = strings.TrimSpace(resp)
	if strings.EqualFold(resp, "none") {
		return "", "", false
	}

	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "Symptom:"); ok {
			note = strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(line, "Severity:"); ok {
			severity = pkg.Severity(strings.ToLower(strings.TrimSpace(rest)))
		}
	}
	if note == "" || !severity.Valid() {
		h.log.Warn().Str("raw", resp).Msg("unparseable extraction, keeping literal note")
		return input, pkg.SeverityLow, true
	}
	return note, severity, true
}

func confirmationFor(severity pkg.Severity, note string) string {
	switch severity {
	case pkg.SeverityHigh:
		return fmt.Sprintf("I've let your caretaker know about the %s right away. Please sit down and rest. Help is on the way.", note)
	case pkg.SeverityMedium:
		return fmt.Sprintf("I've made a note about the %s and your caretaker will check on you soon. Try to rest in the meantime.", note)
	default:
		return fmt.Sprintf("Thank you for telling me about the %s. I've written it down for your caretaker.", note)
	}
}

func (h *Health) prompt(input string) string {
	return fmt.Sprintf(`A person living with dementia said: %q

If they describe a physical symptom or discomfort, answer with exactly two lines:
Symptom: <short description>
Severity: <low, medium or high>

Severity guidance:
- high: chest pain, trouble breathing, a fall, sudden severe pain
- medium: persistent pain, dizziness, nausea
- low: mild aches, tiredness, minor discomfort

If there is no symptom at all, answer with the single word: None`, input)
}
