package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carecompanion/internal/capability"
	"carecompanion/internal/storage"
	"carecompanion/pkg"
)

func newSupervisorFixture() (*Supervisor, *storage.MemorySessionStore, *storage.MemoryStore, *capability.Mock) {
	sessions := storage.NewMemorySessionStore()
	store := storage.NewMemoryStore()
	store.SeedProfile("margaret", pkg.Profile{Name: "Margaret", Age: 78, Diagnosis: "early-stage Alzheimer's"})
	llm := capability.NewMock()
	sup := NewSupervisor(sessions, store, llm, zerolog.Nop())
	return sup, sessions, store, llm
}

func turnState(input string) pkg.TurnState {
	return pkg.TurnState{
		SubjectID: "margaret",
		Profile:   pkg.Profile{Name: "Margaret", Age: 78, Diagnosis: "early-stage Alzheimer's"},
		Input:     input,
	}
}

func TestSupervisorKeywordClassification(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  pkg.RouteLabel
	}{
		{"comfort", "I miss my daughter so much", pkg.RouteComfort},
		{"health", "my knee really hurts today", pkg.RouteHealth},
		{"task", "remind me to water the plants", pkg.RouteTask},
		{"comfort beats health", "I'm so sad and my head hurts", pkg.RouteComfort},
		{"health beats task", "the pain is bad, add a note", pkg.RouteHealth},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sup, sessions, _, llm := newSupervisorFixture()

			out, err := sup.Run(context.Background(), turnState(tc.input))
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Route)
			assert.Zero(t, llm.CallCount(), "keyword matches must not reach the model")

			sess, err := sessions.Get(context.Background(), "margaret")
			require.NoError(t, err)
			assert.Equal(t, tc.want, sess.Active)
		})
	}
}

func TestSupervisorStickinessBeatsNewKeyword(t *testing.T) {
	sup, sessions, _, llm := newSupervisorFixture()
	require.NoError(t, sessions.SetActive(context.Background(), "margaret", pkg.RouteComfort))

	// "show" continues the comfort exchange even though "hurts" would
	// classify fresh input as health.
	out, err := sup.Run(context.Background(), turnState("show me more, even though my head hurts"))
	require.NoError(t, err)
	assert.Equal(t, pkg.RouteComfort, out.Route)
	assert.Zero(t, llm.CallCount())
}

func TestSupervisorTerminationClearsActiveResponder(t *testing.T) {
	sup, sessions, _, _ := newSupervisorFixture()
	ctx := context.Background()
	require.NoError(t, sessions.SetActive(ctx, "margaret", pkg.RouteHealth))
	require.NoError(t, sessions.AddTurn(ctx, "margaret", storage.SessionTurn{Role: "user", Content: "my chest hurts"}))

	out, err := sup.Run(ctx, turnState("thanks, that's all"))
	require.NoError(t, err)
	assert.Equal(t, pkg.RouteMemory, out.Route)

	sess, err := sessions.Get(ctx, "margaret")
	require.NoError(t, err)
	assert.Equal(t, pkg.RouteUnset, sess.Active)
	assert.NotEmpty(t, sess.RecentTurns, "closing the exchange keeps the turn history")
}

func TestSupervisorEndKeywordWithoutActiveSessionFallsThrough(t *testing.T) {
	sup, _, _, llm := newSupervisorFixture()
	llm.Reply("Classify", "memory")

	out, err := sup.Run(context.Background(), turnState("thanks"))
	require.NoError(t, err)
	assert.Equal(t, pkg.RouteMemory, out.Route)
	assert.Equal(t, 1, llm.CallCount())
}

func TestSupervisorModelFallback(t *testing.T) {
	t.Run("valid label becomes active", func(t *testing.T) {
		sup, sessions, _, llm := newSupervisorFixture()
		llm.Reply("Classify", "task")

		out, err := sup.Run(context.Background(), turnState("hmm, I wonder about tomorrow"))
		require.NoError(t, err)
		assert.Equal(t, pkg.RouteTask, out.Route)

		sess, err := sessions.Get(context.Background(), "margaret")
		require.NoError(t, err)
		assert.Equal(t, pkg.RouteTask, sess.Active)
	})

	t.Run("out-of-set label resolves to memory", func(t *testing.T) {
		sup, _, _, llm := newSupervisorFixture()
		llm.Reply("Classify", "emergency")

		out, err := sup.Run(context.Background(), turnState("hmm, I wonder about tomorrow"))
		require.NoError(t, err)
		assert.Equal(t, pkg.RouteMemory, out.Route)
	})

	t.Run("memory resolution clears a previously active responder", func(t *testing.T) {
		sup, sessions, _, llm := newSupervisorFixture()
		ctx := context.Background()
		require.NoError(t, sessions.SetActive(ctx, "margaret", pkg.RouteTask))
		llm.Reply("Classify", "memory")

		// No end keyword, no task continuation keyword, no fresh keyword:
		// the fallback decides, and memory never stays active.
		out, err := sup.Run(ctx, turnState("what a beautiful sky this evening"))
		require.NoError(t, err)
		assert.Equal(t, pkg.RouteMemory, out.Route)

		sess, err := sessions.Get(ctx, "margaret")
		require.NoError(t, err)
		assert.Equal(t, pkg.RouteUnset, sess.Active)
	})

	t.Run("capability outage resolves to memory", func(t *testing.T) {
		sup, _, _, llm := newSupervisorFixture()
		llm.Fail(errors.New("connection refused"))

		out, err := sup.Run(context.Background(), turnState("hmm, I wonder about tomorrow"))
		require.NoError(t, err)
		assert.Equal(t, pkg.RouteMemory, out.Route)
	})
}

func TestSupervisorAuditsEveryResolvedLabel(t *testing.T) {
	sup, _, store, llm := newSupervisorFixture()
	llm.Reply("Classify", "memory")
	ctx := context.Background()

	for _, input := range []string{"I miss my daughter", "my head hurts", "hello there"} {
		_, err := sup.Run(ctx, turnState(input))
		require.NoError(t, err)
	}

	assert.Equal(t, []pkg.RouteLabel{pkg.RouteComfort, pkg.RouteHealth, pkg.RouteMemory}, store.Interactions("margaret"))
}

func TestSupervisorRecordsUserTurn(t *testing.T) {
	sup, sessions, _, _ := newSupervisorFixture()
	ctx := context.Background()

	_, err := sup.Run(ctx, turnState("I miss my daughter"))
	require.NoError(t, err)

	sess, err := sessions.Get(ctx, "margaret")
	require.NoError(t, err)
	require.Len(t, sess.RecentTurns, 1)
	assert.Equal(t, "user", sess.RecentTurns[0].Role)
	assert.Equal(t, "I miss my daughter", sess.RecentTurns[0].Content)
}
