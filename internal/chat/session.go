package chat

import "sync"

// Session holds the in-memory history for one live connection. It is a
// cache for prompt assembly only; durable history lives in the store. The
// window keeps the newest entries and drops the oldest, so a session's
// memory use is bounded no matter how long the conversation runs.
type Session struct {
	mu     sync.Mutex
	window int
	turns  []Message
}

// NewSession creates a session keeping at most window history entries.
// A non-positive window falls back to the package default.
func NewSession(window int) *Session {
	if window <= 0 {
		window = 15
	}
	return &Session{window: window}
}

// Append records a turn and trims to the window.
func (s *Session) Append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Message{Role: role, Content: content})
	if n := len(s.turns); n > s.window {
		s.turns = append(s.turns[:0], s.turns[n-s.window:]...)
	}
}

// History returns a copy of the current window, oldest first.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.turns))
	copy(out, s.turns)
	return out
}

// Reset drops all session history, e.g. when the client resumes a
// different thread on the same connection.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}
