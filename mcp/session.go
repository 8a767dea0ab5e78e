package mcp

import (
	"fmt"
	"sync"
)

// Session hands out short references (M1, M2, ...) for movies an agent has
// seen, so later tool calls can name a movie without repeating its ID.
type Session struct {
	mu      sync.Mutex
	refs    map[string]string // session ref -> movie ID
	reverse map[string]string // movie ID -> session ref
	counter int
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{
		refs:    make(map[string]string),
		reverse: make(map[string]string),
	}
}

// Track returns the session reference for movieID, assigning the next one
// if the movie has not been seen.
func (s *Session) Track(movieID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.reverse[movieID]; ok {
		return ref
	}
	s.counter++
	ref := fmt.Sprintf("M%d", s.counter)
	s.refs[ref] = movieID
	s.reverse[movieID] = ref
	return ref
}

// Resolve maps a session reference to a movie ID.
func (s *Session) Resolve(ref string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.refs[ref]
	return id, ok
}

// Lookup returns movieID itself unless it is a session reference.
func (s *Session) Lookup(movieID string) string {
	if id, ok := s.Resolve(movieID); ok {
		return id
	}
	return movieID
}

// Forget drops a deleted movie. Its reference is not reused.
func (s *Session) Forget(movieID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.reverse[movieID]; ok {
		delete(s.refs, ref)
		delete(s.reverse, movieID)
	}
}

// Len returns the number of tracked movies.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}

// Clear resets the session, including the counter.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs = make(map[string]string)
	s.reverse = make(map[string]string)
	s.counter = 0
}
