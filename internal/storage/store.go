// Package storage holds the two stateful collaborators of the routing
// core: the durable per-subject store (profile, conversation log,
// activities, health notes, comfort directory, audit log) and the
// short-lived session store consulted by the supervisor.
package storage

import (
	"context"
	"errors"
	"time"

	"carecompanion/pkg"
)

// ErrSubjectNotFound is the only storage error that aborts a turn: no
// step can proceed without a profile.
var ErrSubjectNotFound = errors.New("subject not found")

// Activity is one entry of the subject's active task list.
type Activity struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// HealthNote is one logged symptom with its severity tier.
type HealthNote struct {
	ID        int64        `json:"id"`
	Note      string       `json:"note"`
	Severity  pkg.Severity `json:"severity"`
	CreatedAt time.Time    `json:"created_at"`
}

// LovedOne is one entry of the comfort directory.
type LovedOne struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Relationship   string `json:"relationship"`
	PhoneNumber    string `json:"phone_number,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	Mentions       int    `json:"mentions"`
}

// Photo is a stored photo of a loved one.
type Photo struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// Audio is a recorded message from a loved one.
type Audio struct {
	ID              int64  `json:"id"`
	Path            string `json:"path"`
	Description     string `json:"description,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// DurableStore exposes per-subject durable records. Appends must be safe
// under concurrent writers for the same subject; the SQLite implementation
// serialises through a single connection, the in-memory one through a
// mutex.
type DurableStore interface {
	// Profile returns ErrSubjectNotFound when the subject id is unknown.
	Profile(ctx context.Context, subjectID string) (*pkg.Profile, error)

	AppendConversation(ctx context.Context, subjectID, role, content string) error
	RecentConversation(ctx context.Context, subjectID string, limit int) ([]pkg.ConversationMessage, error)

	AddActivity(ctx context.Context, subjectID, description string) error
	ActiveActivities(ctx context.Context, subjectID string) ([]Activity, error)
	DeactivateActivity(ctx context.Context, subjectID string, id int64) error

	AddHealthNote(ctx context.Context, subjectID, note string, severity pkg.Severity) error
	RecentHealthNotes(ctx context.Context, subjectID string, limit int) ([]HealthNote, error)

	LovedOnes(ctx context.Context, subjectID string) ([]LovedOne, error)
	// FindLovedOne matches by name or relationship, case-insensitive
	// substring; returns nil when nothing matches.
	FindLovedOne(ctx context.Context, subjectID, nameOrRelation string) (*LovedOne, error)
	// MostMentioned returns nil when the directory is empty.
	MostMentioned(ctx context.Context, subjectID string) (*LovedOne, error)
	PhotosOf(ctx context.Context, lovedOneID int64) ([]Photo, error)
	AudioOf(ctx context.Context, lovedOneID int64) ([]Audio, error)
	LogComfortInteraction(ctx context.Context, subjectID string, lovedOneID *int64, kind, details string) error

	// LogInteraction is the append-only routing audit trail.
	LogInteraction(ctx context.Context, subjectID, input string, route pkg.RouteLabel) error
}
