package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"carecompanion/internal/capability"
	"carecompanion/internal/core"
	"carecompanion/internal/storage"
	"carecompanion/pkg"
)

// comfortAnalysis is the model's reading of an emotional turn.
type comfortAnalysis struct {
	LovedOneName    string `json:"lovedOneName"`
	EmotionalNeed   string `json:"emotionalNeed"`
	SuggestedAction string `json:"suggestedAction"`
	ComfortMessage  string `json:"comfortMessage"`
}

// Comfort handles emotional turns: it works out who the subject is missing
// and what would help, then assembles a payload of photos, audio, or a
// call suggestion around a reassuring message. Every materialised action
// is recorded in the comfort interaction log.
type Comfort struct {
	store storage.DurableStore
	llm   capability.Client
	log   zerolog.Logger
}

func NewComfort(store storage.DurableStore, llm capability.Client, log zerolog.Logger) *Comfort {
	return &Comfort{store: store, llm: llm, log: log}
}

func (c *Comfort) Name() core.StepName {
	return core.StepComfort
}

func (c *Comfort) Run(ctx context.Context, state pkg.TurnState) (pkg.TurnState, error) {
	lovedOnes, err := c.store.LovedOnes(ctx, state.SubjectID)
	if err != nil {
		return state, fmt.Errorf("loading loved ones: %w", err)
	}

	if len(lovedOnes) == 0 {
		msg := fmt.Sprintf("I'm right here with you, %s. You are safe, and you are cared for. Would you like to talk about how you're feeling?", state.Profile.Name)
		state.Comfort = &pkg.ComfortPayload{Message: msg, EmptyDirectory: true}
		return c.finish(ctx, state, msg)
	}

	analysis := c.analyze(ctx, state, lovedOnes)
	target, err := c.resolveTarget(ctx, state.SubjectID, analysis.LovedOneName)
	if err != nil {
		return state, fmt.Errorf("resolving loved one: %w", err)
	}

	payload := &pkg.ComfortPayload{
		Message:       analysis.ComfortMessage,
		EmotionalNeed: analysis.EmotionalNeed,
	}
	if target != nil {
		payload.LovedOne = &pkg.PersonRef{
			Name:           target.Name,
			Relationship:   target.Relationship,
			PhoneNumber:    target.PhoneNumber,
			ProfilePicture: target.ProfilePicture,
		}
		if err := c.materialize(ctx, state, analysis, target, payload); err != nil {
			return state, err
		}
	} else {
		names := make([]string, 0, len(lovedOnes))
		for _, lo := range lovedOnes {
			names = append(names, fmt.Sprintf("%s, your %s", lo.Name, lo.Relationship))
		}
		payload.Message += fmt.Sprintf(" Your family loves you very much: %s.", strings.Join(names, "; "))
		if err := c.store.LogComfortInteraction(ctx, state.SubjectID, nil, "general_comfort", analysis.EmotionalNeed); err != nil {
			return state, fmt.Errorf("recording comfort interaction: %w", err)
		}
	}

	state.Comfort = payload
	return c.finish(ctx, state, payload.Message)
}

// analyze parses the model's JSON reading of the turn. Any failure falls
// back to the gentlest default: loneliness, answered with photos.
func (c *Comfort) analyze(ctx context.Context, state pkg.TurnState, lovedOnes []storage.LovedOne) comfortAnalysis {
	fallback := comfortAnalysis{
		EmotionalNeed:   "loneliness",
		SuggestedAction: "show_photos",
		ComfortMessage:  fmt.Sprintf("I can hear this is hard, %s. You are not alone. Your family loves you very much.", state.Profile.Name),
	}

	raw, err := c.llm.Generate(ctx, c.analysisPrompt(state, lovedOnes))
	if err != nil {
		c.log.Warn().Err(err).Msg("comfort analysis unavailable, using default")
		return fallback
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		c.log.Warn().Str("raw", raw).Msg("comfort analysis returned no JSON, using default")
		return fallback
	}

	var analysis comfortAnalysis
	if err := sonic.Unmarshal([]byte(raw[start:end+1]), &analysis); err != nil {
		c.log.Warn().Err(err).Msg("comfort analysis unparseable, using default")
		return fallback
	}
	if analysis.ComfortMessage == "" {
		analysis.ComfortMessage = fallback.ComfortMessage
	}
	if analysis.SuggestedAction == "" {
		analysis.SuggestedAction = fallback.SuggestedAction
	}
	return analysis
}

// resolveTarget picks who the payload centres on: the named person when
// one matches, otherwise whoever is mentioned most, otherwise nil.
func (c *Comfort) resolveTarget(ctx context.Context, subjectID, name string) (*storage.LovedOne, error) {
	if name != "" {
		match, err := c.store.FindLovedOne(ctx, subjectID, name)
		if err != nil {
			return nil, err
		}
		if match != nil {
			return match, nil
		}
	}
	return c.store.MostMentioned(ctx, subjectID)
}

// materialize fills the payload according to the suggested action,
// degrading gracefully when the needed media does not exist.
func (c *Comfort) materialize(ctx context.Context, state pkg.TurnState, analysis comfortAnalysis, target *storage.LovedOne, payload *pkg.ComfortPayload) error {
	logKind := "general_comfort"

	switch analysis.SuggestedAction {
	case "show_photos":
		photos, err := c.store.PhotosOf(ctx, target.ID)
		if err != nil {
			return fmt.Errorf("loading photos: %w", err)
		}
		for _, p := range photos {
			payload.Photos = append(payload.Photos, pkg.PhotoRef{Path: p.Path, Description: p.Description})
		}
		if len(photos) > 0 {
			payload.Message += fmt.Sprintf(" Here are some photos of %s.", target.Name)
			logKind = "photo_view"
		}

	case "play_audio":
		clips, err := c.store.AudioOf(ctx, target.ID)
		if err != nil {
			return fmt.Errorf("loading audio: %w", err)
		}
		if len(clips) > 0 {
			clip := clips[0]
			payload.Audio = &pkg.AudioRef{Path: clip.Path, Description: clip.Description, DurationSeconds: clip.DurationSeconds}
			payload.Message += fmt.Sprintf(" %s recorded a message for you. Would you like to hear it?", target.Name)
			logKind = "audio_play"
		} else if target.PhoneNumber != "" {
			payload.CallSuggestion = &pkg.CallSuggestion{Name: target.Name, Relationship: target.Relationship, PhoneNumber: target.PhoneNumber}
			payload.Message += fmt.Sprintf(" Would you like to call %s?", target.Name)
			logKind = "call_suggested"
		}

	case "suggest_call":
		if target.PhoneNumber != "" {
			payload.CallSuggestion = &pkg.CallSuggestion{Name: target.Name, Relationship: target.Relationship, PhoneNumber: target.PhoneNumber}
			payload.Message += fmt.Sprintf(" Would you like to call %s? I can help with that.", target.Name)
			logKind = "call_suggested"
		}

	case "explain_relationship":
		explanation, err := c.llm.Generate(ctx, c.relationshipPrompt(state, target))
		if err != nil {
			c.log.Warn().Err(err).Msg("relationship explanation unavailable, using literal")
			explanation = fmt.Sprintf("%s is your %s, and they love you very much.", target.Name, target.Relationship)
		}
		payload.Message = explanation
		photos, err := c.store.PhotosOf(ctx, target.ID)
		if err != nil {
			return fmt.Errorf("loading photos: %w", err)
		}
		for i, p := range photos {
			if i == 2 {
				break
			}
			payload.Photos = append(payload.Photos, pkg.PhotoRef{Path: p.Path, Description: p.Description})
		}
		logKind = "memory_prompt"
	}

	id := target.ID
	if err := c.store.LogComfortInteraction(ctx, state.SubjectID, &id, logKind, analysis.EmotionalNeed); err != nil {
		return fmt.Errorf("recording comfort interaction: %w", err)
	}
	return nil
}

func (c *Comfort) finish(ctx context.Context, state pkg.TurnState, msg string) (pkg.TurnState, error) {
	if err := c.store.AppendConversation(ctx, state.SubjectID, "assistant", msg); err != nil {
		return state, fmt.Errorf("recording comfort reply: %w", err)
	}
	state.ConversationLog = append(state.ConversationLog, msg)
	return state, nil
}

func (c *Comfort) analysisPrompt(state pkg.TurnState, lovedOnes []storage.LovedOne) string {
	names := make([]string, 0, len(lovedOnes))
	for _, lo := range lovedOnes {
		names = append(names, fmt.Sprintf("%s (%s)", lo.Name, lo.Relationship))
	}

	return fmt.Sprintf(`%s, who is living with %s, said: %q

Their loved ones: %s.

Respond with JSON only:
{"lovedOneName": "<name if they mention or clearly mean a specific person, else empty>",
 "emotionalNeed": "<loneliness, missing someone, confusion, fear, or sadness>",
 "suggestedAction": "<show_photos, play_audio, suggest_call, or explain_relationship>",
 "comfortMessage": "<two warm, simple sentences addressed to them by name>"}`,
		state.Profile.Name, state.Profile.Diagnosis, state.Input, strings.Join(names, ", "))
}

func (c *Comfort) relationshipPrompt(state pkg.TurnState, target *storage.LovedOne) string {
	return fmt.Sprintf(`Gently explain to %s, who is living with %s, who %s is.
%s is their %s. Use two or three short, warm sentences. Do not mention their condition.`,
		state.Profile.Name, state.Profile.Diagnosis, target.Name, target.Name, target.Relationship)
}
