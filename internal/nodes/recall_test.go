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

func newRecallFixture() (*Recall, *storage.MemoryStore, *capability.Mock) {
	store := storage.NewMemoryStore()
	store.SeedProfile("margaret", pkg.Profile{Name: "Margaret", Age: 78, Diagnosis: "early-stage Alzheimer's"})
	llm := capability.NewMock()
	return NewRecall(store, llm, zerolog.Nop()), store, llm
}

func TestRecallPersistsBothSidesOfTheExchange(t *testing.T) {
	r, store, llm := newRecallFixture()
	llm.Reply("gentle, patient companion", "That sounds like a lovely morning, Margaret.")

	out, err := r.Run(context.Background(), turnState("I sat in the garden today"))
	require.NoError(t, err)

	require.Len(t, out.ConversationLog, 1)
	assert.Equal(t, "That sounds like a lovely morning, Margaret.", out.ConversationLog[0])

	history, err := store.RecentConversation(context.Background(), "margaret", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "I sat in the garden today", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestRecallIncludesHistoryInPrompt(t *testing.T) {
	r, store, llm := newRecallFixture()
	ctx := context.Background()
	require.NoError(t, store.AppendConversation(ctx, "margaret", "user", "my roses are blooming"))

	_, err := r.Run(ctx, turnState("what did I tell you yesterday?"))
	require.NoError(t, err)

	require.Len(t, llm.Prompts, 1)
	assert.Contains(t, llm.Prompts[0], "my roses are blooming")
	assert.Contains(t, llm.Prompts[0], "Margaret")
}

func TestRecallLiteralReplyWhenModelUnavailable(t *testing.T) {
	r, store, llm := newRecallFixture()
	llm.Fail(errors.New("connection refused"))

	out, err := r.Run(context.Background(), turnState("hello"))
	require.NoError(t, err)

	require.Len(t, out.ConversationLog, 1)
	assert.Contains(t, out.ConversationLog[0], "Margaret")

	history, err := store.RecentConversation(context.Background(), "margaret", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2, "the turn is still persisted")
}
