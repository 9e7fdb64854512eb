package session

import "time"

// DefaultHistoryLimit is the number of turns retained per session.
const DefaultHistoryLimit = 50

// AppendTurn adds a turn and evicts the oldest when the window is exceeded.
func (s *Session) AppendTurn(speaker Speaker, text string, at time.Time, limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.History = append(s.History, Turn{Speaker: speaker, Text: text, Timestamp: at})

	// Evict from the front if over limit
	if len(s.History) > limit {
		s.History = append([]Turn(nil), s.History[len(s.History)-limit:]...)
	}
}
