// Package session keeps per-visitor state on the server. The browser only
// holds a signed cookie naming the session; values (the logged-in user, the
// booking draft, flash messages) live in a Store keyed by that id.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Store persists session values with a time-to-live.
type Store interface {
	Load(ctx context.Context, id string) (map[string]json.RawMessage, error)
	Save(ctx context.Context, id string, values map[string]json.RawMessage, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Session is the request-scoped view of one visitor's values. It is not safe
// for concurrent use; each request gets its own copy.
type Session struct {
	ID       string
	values   map[string]json.RawMessage
	modified bool
	isNew    bool
	// previous is the id replaced by Renew, deleted from the store on save.
	previous string
}

func newSession(id string, values map[string]json.RawMessage, isNew bool) *Session {
	if values == nil {
		values = make(map[string]json.RawMessage)
	}
	return &Session{ID: id, values: values, isNew: isNew}
}

// New returns an empty, unsaved session. Handlers get sessions from the
// middleware; New is for tests and tools.
func New(id string) *Session {
	return newSession(id, nil, true)
}

// Get decodes the value under key into dst. It reports false when the key is
// absent.
func (s *Session) Get(key string, dst interface{}) (bool, error) {
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode session key %q: %w", key, err)
	}
	return true, nil
}

func (s *Session) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

func (s *Session) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode session key %q: %w", key, err)
	}
	s.values[key] = raw
	s.modified = true
	return nil
}

func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.modified = true
	}
}

// Clear drops every value, keeping the id.
func (s *Session) Clear() {
	if len(s.values) > 0 {
		s.values = make(map[string]json.RawMessage)
		s.modified = true
	}
}

func (s *Session) Modified() bool { return s.modified }

func (s *Session) IsNew() bool { return s.isNew }
