// Package companion is the public entry point of the routing core: it
// assembles the turn state, runs the step graph, and exposes the session
// maintenance operations a host application needs.
package companion

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"carecompanion/internal/core"
	"carecompanion/internal/storage"
	"carecompanion/pkg"
)

// Service runs one conversational turn at a time for any number of
// subjects. It is safe for concurrent use when its collaborators are.
type Service struct {
	engine   *core.Engine
	store    storage.DurableStore
	sessions storage.SessionStore
	log      zerolog.Logger
}

func NewService(engine *core.Engine, store storage.DurableStore, sessions storage.SessionStore, log zerolog.Logger) *Service {
	return &Service{engine: engine, store: store, sessions: sessions, log: log}
}

// RunTurn executes one full turn: profile load, the step graph, and the
// assistant-side session bookkeeping. An unknown subject aborts the turn
// with storage.ErrSubjectNotFound before any step runs.
func (s *Service) RunTurn(ctx context.Context, subjectID, input string, priorTurns []pkg.ConversationMessage) (pkg.TurnState, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return pkg.TurnState{}, fmt.Errorf("empty input")
	}

	profile, err := s.store.Profile(ctx, subjectID)
	if err != nil {
		return pkg.TurnState{}, fmt.Errorf("loading profile for %q: %w", subjectID, err)
	}

	state := pkg.TurnState{
		SubjectID:  subjectID,
		Profile:    *profile,
		Input:      input,
		PriorTurns: priorTurns,
	}

	out, err := s.engine.Execute(ctx, state)
	if err != nil {
		return out, err
	}

	if reply := lastReply(out); reply != "" {
		if err := s.sessions.AddTurn(ctx, subjectID, storage.SessionTurn{Role: "assistant", Content: reply}); err != nil {
			s.log.Warn().Err(err).Str("subject", subjectID).Msg("recording assistant session turn failed")
		}
	}
	return out, nil
}

// Session returns the subject's live session, or
// storage.ErrSessionNotFound when none exists or it has idled out.
func (s *Service) Session(ctx context.Context, subjectID string) (*storage.Session, error) {
	return s.sessions.Get(ctx, subjectID)
}

// EndSession drops the subject's session entirely, history included. The
// next turn starts from a clean slate.
func (s *Service) EndSession(ctx context.Context, subjectID string) error {
	return s.sessions.Delete(ctx, subjectID)
}

func lastReply(state pkg.TurnState) string {
	if len(state.ConversationLog) == 0 {
		return ""
	}
	return state.ConversationLog[len(state.ConversationLog)-1]
}
