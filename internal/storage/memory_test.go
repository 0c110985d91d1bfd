package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carecompanion/pkg"
)

func seededMemoryStore() *MemoryStore {
	m := NewMemoryStore()
	m.SeedProfile("margaret", pkg.Profile{Name: "Margaret", Age: 78, Diagnosis: "early-stage Alzheimer's"})
	return m
}

func TestMemoryProfileUnknownSubject(t *testing.T) {
	m := seededMemoryStore()

	_, err := m.Profile(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrSubjectNotFound)

	profile, err := m.Profile(context.Background(), "margaret")
	require.NoError(t, err)
	assert.Equal(t, "Margaret", profile.Name)
}

func TestMemoryRecentConversationHonorsLimit(t *testing.T) {
	m := seededMemoryStore()
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three", "four"} {
		require.NoError(t, m.AppendConversation(ctx, "margaret", "user", content))
	}

	recent, err := m.RecentConversation(ctx, "margaret", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].Content)
	assert.Equal(t, "four", recent[1].Content)
}

func TestMemoryActivityLifecycle(t *testing.T) {
	m := seededMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.AddActivity(ctx, "margaret", "water the plants"))
	require.NoError(t, m.AddActivity(ctx, "margaret", "call the doctor"))

	active, err := m.ActiveActivities(ctx, "margaret")
	require.NoError(t, err)
	require.Len(t, active, 2)

	require.NoError(t, m.DeactivateActivity(ctx, "margaret", active[0].ID))
	active, err = m.ActiveActivities(ctx, "margaret")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "call the doctor", active[0].Description)
}

func TestMemoryFindLovedOneMatchesNameAndRelationship(t *testing.T) {
	m := seededMemoryStore()
	m.SeedLovedOne("margaret", LovedOne{Name: "Sarah", Relationship: "daughter"})
	ctx := context.Background()

	byName, err := m.FindLovedOne(ctx, "margaret", "sarah")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, "Sarah", byName.Name)

	byRelation, err := m.FindLovedOne(ctx, "margaret", "my daughter")
	require.NoError(t, err)
	require.NotNil(t, byRelation)
	assert.Equal(t, "Sarah", byRelation.Name)

	none, err := m.FindLovedOne(ctx, "margaret", "tom")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryMostMentioned(t *testing.T) {
	m := seededMemoryStore()
	ctx := context.Background()

	none, err := m.MostMentioned(ctx, "margaret")
	require.NoError(t, err)
	assert.Nil(t, none, "empty directory yields nil, not an error")

	m.SeedLovedOne("margaret", LovedOne{Name: "Tom", Relationship: "son", Mentions: 1})
	m.SeedLovedOne("margaret", LovedOne{Name: "Sarah", Relationship: "daughter", Mentions: 3})

	top, err := m.MostMentioned(ctx, "margaret")
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "Sarah", top.Name)
}

func TestMemoryComfortInteractionBumpsMentions(t *testing.T) {
	m := seededMemoryStore()
	ctx := context.Background()
	id := m.SeedLovedOne("margaret", LovedOne{Name: "Sarah", Relationship: "daughter"})

	require.NoError(t, m.LogComfortInteraction(ctx, "margaret", &id, "photo_view", "missing someone"))
	require.NoError(t, m.LogComfortInteraction(ctx, "margaret", nil, "general_comfort", "loneliness"))

	ones, err := m.LovedOnes(ctx, "margaret")
	require.NoError(t, err)
	require.Len(t, ones, 1)
	assert.Equal(t, 1, ones[0].Mentions)
}

func TestMemoryInteractionAudit(t *testing.T) {
	m := seededMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.LogInteraction(ctx, "margaret", "I miss Sarah", pkg.RouteComfort))
	require.NoError(t, m.LogInteraction(ctx, "margaret", "thanks", pkg.RouteMemory))

	assert.Equal(t, []pkg.RouteLabel{pkg.RouteComfort, pkg.RouteMemory}, m.Interactions("margaret"))
}
