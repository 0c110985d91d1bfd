package pkg

// Shared state types threaded through the turn pipeline.

// RouteLabel identifies which responder step handles the current turn.
// The zero value means the supervisor has not run yet.
type RouteLabel string

const (
	RouteUnset   RouteLabel = ""
	RouteTask    RouteLabel = "task"
	RouteHealth  RouteLabel = "health"
	RouteComfort RouteLabel = "comfort"
	RouteMemory  RouteLabel = "memory"
)

// Valid reports whether the label belongs to the closed routing set.
func (r RouteLabel) Valid() bool {
	switch r {
	case RouteTask, RouteHealth, RouteComfort, RouteMemory:
		return true
	}
	return false
}

// RoutableLabels is the closed set the fallback classifier may emit.
func RoutableLabels() []RouteLabel {
	return []RouteLabel{RouteTask, RouteHealth, RouteComfort, RouteMemory}
}

// Severity tiers for logged health symptoms.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// ConversationMessage represents a message in conversation history
type ConversationMessage struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// Profile is the subject's record loaded from durable storage.
// It is immutable within a single turn.
type Profile struct {
	Name        string   `json:"name"`
	Age         int      `json:"age"`
	Diagnosis   string   `json:"diagnosis"`
	Medications []string `json:"medications"`
}

// PersonRef identifies one entry of the comfort directory.
type PersonRef struct {
	Name           string `json:"name"`
	Relationship   string `json:"relationship"`
	PhoneNumber    string `json:"phone_number,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// PhotoRef points at a stored photo of a loved one.
type PhotoRef struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// AudioRef points at a recorded message from a loved one.
type AudioRef struct {
	Path            string `json:"path"`
	Description     string `json:"description,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// CallSuggestion proposes phoning a loved one.
type CallSuggestion struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	PhoneNumber  string `json:"phone_number"`
}

// ComfortPayload is assembled by the comfort step only.
type ComfortPayload struct {
	Message        string          `json:"message"`
	EmotionalNeed  string          `json:"emotional_need,omitempty"`
	LovedOne       *PersonRef      `json:"loved_one,omitempty"`
	Photos         []PhotoRef      `json:"photos,omitempty"`
	Audio          *AudioRef       `json:"audio,omitempty"`
	CallSuggestion *CallSuggestion `json:"call_suggestion,omitempty"`
	EmptyDirectory bool            `json:"empty_directory,omitempty"`
}

// TurnState is the unit of work passed through every step of a run.
// One instance exists per inbound request; steps receive it by value and
// return an updated copy. Appends to the ordered logs never reorder or
// drop existing entries.
type TurnState struct {
	SubjectID       string                `json:"subject_id"`
	Profile         Profile               `json:"profile"`
	Input           string                `json:"input"`
	ConversationLog []string              `json:"conversation_log"`
	Tasks           []string              `json:"tasks"`
	HealthNotes     []string              `json:"health_notes"`
	Route           RouteLabel            `json:"route,omitempty"`
	IsEmergency     bool                  `json:"is_emergency,omitempty"`
	Comfort         *ComfortPayload       `json:"comfort,omitempty"`
	PriorTurns      []ConversationMessage `json:"prior_turns,omitempty"`
}
