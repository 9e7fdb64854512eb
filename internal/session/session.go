// Package session holds per-conversation state and the registry that owns
// it. A Session is mutated only by the turn currently holding its lock in
// the Registry; everything handed outside the registry is a copy.
package session

import (
	"time"

	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/flow"
)

// State is the position of a session in the conversation state machine.
type State string

const (
	StateIdle            State = "IDLE"
	StateCollectingData  State = "COLLECTING_DATA"
	StateWaitingForInput State = "WAITING_FOR_INPUT"
	StateReadyToProcess  State = "READY_TO_PROCESS"
	StateCompleted       State = "COMPLETED"
	StateCancelled       State = "CANCELLED"
)

// Terminal reports whether s ends a flow instance.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Flags track sub-flow progress.
type Flags struct {
	CreationInitiated              bool `json:"creation_initiated"`
	ChecklistInitiated             bool `json:"checklist_initiated"`
	ChecklistPending               bool `json:"checklist_pending"`
	AwaitingChecklistConfirmation  bool `json:"awaiting_checklist_confirmation"`
	AwaitingCompletionConfirmation bool `json:"awaiting_completion_confirmation"`
}

// Session is the mutable state of one conversation.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	State          State     `json:"state"`
	ActiveFlow     flow.Type `json:"active_flow"`
	// Collected holds values for the active flow's required fields only.
	Collected map[field.Name]string `json:"collected"`
	// Optional holds values for the active flow's optional fields.
	Optional map[field.Name]string `json:"optional,omitempty"`
	// PendingFieldIndex points into the active flow's required fields when a
	// single field is being asked for, and is -1 otherwise.
	PendingFieldIndex int    `json:"pending_field_index"`
	History           []Turn `json:"history"`
	AttemptCount      int    `json:"attempt_count"`
	Flags             Flags  `json:"flags"`
	// LastResultID is the id returned by the last successful completion.
	LastResultID string `json:"last_result_id,omitempty"`
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:                id,
		CreatedAt:         now,
		LastActivityAt:    now,
		State:             StateIdle,
		ActiveFlow:        flow.None,
		Collected:         make(map[field.Name]string),
		Optional:          make(map[field.Name]string),
		PendingFieldIndex: -1,
	}
}

// HasActiveFlow reports whether a flow instance is in progress.
func (s *Session) HasActiveFlow() bool {
	return s.ActiveFlow != flow.None && !s.State.Terminal() && s.State != StateIdle
}

// BeginFlow starts a fresh instance of t, discarding any terminal flow.
func (s *Session) BeginFlow(t flow.Type) {
	s.State = StateCollectingData
	s.ActiveFlow = t
	s.Collected = make(map[field.Name]string)
	s.Optional = make(map[field.Name]string)
	s.PendingFieldIndex = -1
	s.AttemptCount = 0
	s.Flags.AwaitingChecklistConfirmation = false
	s.Flags.AwaitingCompletionConfirmation = false
	switch t {
	case flow.ContractCreation:
		s.Flags = Flags{CreationInitiated: true}
		s.LastResultID = ""
	case flow.Checklist:
		s.Flags.ChecklistInitiated = true
		s.Flags.ChecklistPending = false
	}
}

// Merge stores values for def's fields and returns how many were stored.
// Required values go to Collected, optional ones to Optional; anything else
// is dropped.
func (s *Session) Merge(values map[field.Name]string, def *flow.Definition) int {
	n := 0
	for k, v := range values {
		if v == "" {
			continue
		}
		switch {
		case def.Index(k) >= 0:
			s.Collected[k] = v
		case def.IsOptional(k):
			s.Optional[k] = v
		default:
			continue
		}
		n++
	}
	return n
}

// Retain clears every collected and optional value except keep.
func (s *Session) Retain(keep ...field.Name) {
	kept := make(map[field.Name]string, len(keep))
	for _, k := range keep {
		if v, ok := s.Collected[k]; ok {
			kept[k] = v
		}
	}
	s.Collected = kept
	s.Optional = make(map[field.Name]string)
}

// Value returns the required or optional value stored for name.
func (s *Session) Value(name field.Name) (string, bool) {
	if v, ok := s.Collected[name]; ok {
		return v, true
	}
	v, ok := s.Optional[name]
	return v, ok
}

// Cancel ends the active flow and clears collected data.
func (s *Session) Cancel() {
	s.State = StateCancelled
	s.Collected = make(map[field.Name]string)
	s.Optional = make(map[field.Name]string)
	s.PendingFieldIndex = -1
	s.AttemptCount = 0
	s.Flags = Flags{}
}

// ResetToIdle drops all flow state, keeping identity and history.
func (s *Session) ResetToIdle() {
	s.State = StateIdle
	s.ActiveFlow = flow.None
	s.Collected = make(map[field.Name]string)
	s.Optional = make(map[field.Name]string)
	s.PendingFieldIndex = -1
	s.AttemptCount = 0
	s.Flags = Flags{}
	s.LastResultID = ""
}

// Snapshot returns a deep copy safe to hand outside the registry.
func (s *Session) Snapshot() Session {
	cp := *s
	cp.Collected = copyValues(s.Collected)
	cp.Optional = copyValues(s.Optional)
	cp.History = append([]Turn(nil), s.History...)
	return cp
}

func copyValues(m map[field.Name]string) map[field.Name]string {
	out := make(map[field.Name]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
