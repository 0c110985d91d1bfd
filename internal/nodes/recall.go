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

const recallHistoryLimit = 5

// Recall runs on every turn before routing. It grounds the conversation:
// loads recent durable history, produces a warm conversational reply, and
// persists both sides of the exchange.
type Recall struct {
	store storage.DurableStore
	llm   capability.Client
	log   zerolog.Logger
}

func NewRecall(store storage.DurableStore, llm capability.Client, log zerolog.Logger) *Recall {
	return &Recall{store: store, llm: llm, log: log}
}

func (r *Recall) Name() core.StepName {
	return core.StepRecall
}

func (r *Recall) Run(ctx context.Context, state pkg.TurnState) (pkg.TurnState, error) {
	recent, err := r.store.RecentConversation(ctx, state.SubjectID, recallHistoryLimit)
	if err != nil {
		return state, fmt.Errorf("loading conversation history: %w", err)
	}

	reply, err := r.llm.Generate(ctx, r.prompt(state, recent))
	if err != nil {
		r.log.Warn().Err(err).Msg("recall generation unavailable, using literal reply")
		reply = fmt.Sprintf("I'm here with you, %s. Tell me more about that.", state.Profile.Name)
	}

	if err := r.store.AppendConversation(ctx, state.SubjectID, "user", state.Input); err != nil {
		return state, fmt.Errorf("recording user turn: %w", err)
	}
	if err := r.store.AppendConversation(ctx, state.SubjectID, "assistant", reply); err != nil {
		return state, fmt.Errorf("recording assistant turn: %w", err)
	}

	state.ConversationLog = append(state.ConversationLog, reply)
	return state, nil
}

func (r *Recall) prompt(state pkg.TurnState, recent []pkg.ConversationMessage) string {
	var history strings.Builder
	for _, m := range recent {
		fmt.Fprintf(&history, "%s: %s\n", m.Role, m.Content)
	}
	for _, m := range state.PriorTurns {
		fmt.Fprintf(&history, "%s: %s\n", m.Role, m.Content)
	}

	meds := strings.Join(state.Profile.Medications, ", ")
	if meds == "" {
		meds = "none"
	}

	return fmt.Sprintf(`You are a gentle, patient companion for %s, age %d, living with %s.
Medications: %s.

Recent conversation:
%s
Guidelines:
- Speak in short, warm sentences.
- Never correct or quiz them about what they remember.
- If they repeat themselves, respond as if hearing it for the first time.
- Gently anchor them in the present when confusion appears.

They just said: %q

Reply with your response only.`,
		state.Profile.Name, state.Profile.Age, state.Profile.Diagnosis, meds,
		history.String(), state.Input)
}
