package engine

import (
	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/flow"
	"github.com/szaher/contractbot/internal/session"
)

// Kind classifies a turn's response.
type Kind string

const (
	KindPrompt    Kind = "PROMPT"
	KindComplete  Kind = "COMPLETE"
	KindCancelled Kind = "CANCELLED"
	KindError     Kind = "ERROR"
)

// TurnResult is the response to one turn.
type TurnResult struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	// RemainingFields are the active flow's required fields still missing,
	// in definition order.
	RemainingFields []string          `json:"remaining_fields"`
	CollectedFields map[string]string `json:"collected_fields"`
	// OptionalFields are values supplied for the flow's optional fields.
	OptionalFields map[string]string `json:"optional_fields,omitempty"`
	State          session.State     `json:"state"`
	Flow           flow.Type         `json:"flow"`
	ResultID       string            `json:"result_id,omitempty"`
	Code           string            `json:"error,omitempty"`
	Err            error             `json:"-"`
}

// fill copies the post-turn session view into r.
func (r *TurnResult) fill(s *session.Session, def *flow.Definition) {
	r.State = s.State
	r.Flow = s.ActiveFlow
	r.CollectedFields = make(map[string]string, len(s.Collected))
	for k, v := range s.Collected {
		r.CollectedFields[string(k)] = v
	}
	if len(s.Optional) > 0 {
		r.OptionalFields = make(map[string]string, len(s.Optional))
		for k, v := range s.Optional {
			r.OptionalFields[string(k)] = v
		}
	}
	r.RemainingFields = []string{}
	if def != nil && s.HasActiveFlow() && s.ActiveFlow == def.Type {
		r.RemainingFields = field.Strings(def.Remaining(s.Collected))
	}
	r.Code = errorCode(r.Err)
}
