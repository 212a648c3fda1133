package tokens

import (
	"fmt"
	"sync"
	"time"
)

// Usage tracks token consumption for a session or task.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns combined input and output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Add combines two usage values.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// SessionUsage aggregates usage per session key.
type SessionUsage struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	usage     Usage
	calls     int
	updatedAt time.Time
}

// NewSessionUsage creates an empty aggregator.
func NewSessionUsage() *SessionUsage {
	return &SessionUsage{sessions: make(map[string]*sessionEntry)}
}

// Record accumulates usage for a session.
func (s *SessionUsage) Record(sessionID string, usage Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		e = &sessionEntry{}
		s.sessions[sessionID] = e
	}
	e.usage.Add(usage)
	e.calls++
	e.updatedAt = time.Now().UTC()
}

// Get returns the accumulated usage and call count for a session.
func (s *SessionUsage) Get(sessionID string) (Usage, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[sessionID]; ok {
		return e.usage, e.calls
	}
	return Usage{}, 0
}

// FormatTokens returns a human-readable token count.
func FormatTokens(tokens int) string {
	if tokens < 1000 {
		return fmt.Sprintf("%d", tokens)
	}
	return fmt.Sprintf("%.1fk", float64(tokens)/1000)
}
