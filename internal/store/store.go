package store

import (
	"sync"
	"time"

	"yuzu/voicebridge/internal/types"
)

// maxActivity caps the journal kept per session.
const maxActivity = 200

const activityTruncated = "activity_truncated"

// Store holds per-session speech policy: the global enabled flag and mode,
// per-session disable overrides, the last spoken message of each session and
// the last active session. Safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	globalEnabled bool
	mode          types.Mode
	disabled      map[string]bool
	lastSpoken    map[string]string
	active        string
	activity      map[string][]types.Activity
}

func New() *Store {
	return &Store{
		globalEnabled: true,
		mode:          types.ModeContinuous,
		disabled:      make(map[string]bool),
		lastSpoken:    make(map[string]string),
		activity:      make(map[string][]types.Activity),
	}
}

// IsEnabledForSession reports whether speech is allowed for the session.
func (s *Store) IsEnabledForSession(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalEnabled && !s.disabled[sessionID]
}

func (s *Store) GlobalEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalEnabled
}

func (s *Store) SetGlobalEnabled(enabled bool) {
	s.mu.Lock()
	s.globalEnabled = enabled
	s.mu.Unlock()
}

func (s *Store) Mode() types.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Store) SetMode(m types.Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

// SetSessionEnabled sets the session override. Enabling removes the session
// from the disabled set; the global flag is untouched either way.
func (s *Store) SetSessionEnabled(sessionID string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		delete(s.disabled, sessionID)
		return
	}
	s.disabled[sessionID] = true
}

// ToggleSession inverts the effective state of the session and returns the
// new effective state.
func (s *Store) ToggleSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	effective := s.globalEnabled && !s.disabled[sessionID]
	if effective {
		s.disabled[sessionID] = true
		return false
	}
	delete(s.disabled, sessionID)
	return s.globalEnabled
}

func (s *Store) RecordSpoken(sessionID, messageID string) {
	s.mu.Lock()
	s.lastSpoken[sessionID] = messageID
	s.mu.Unlock()
}

func (s *Store) WasSpoken(sessionID, messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last, ok := s.lastSpoken[sessionID]
	return ok && last == messageID
}

// SetActive records the session as the last active one. Empty ids are ignored.
func (s *Store) SetActive(sessionID string) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	s.active = sessionID
	s.mu.Unlock()
}

func (s *Store) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Forget drops everything known about a deleted session.
func (s *Store) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.disabled, sessionID)
	delete(s.lastSpoken, sessionID)
	delete(s.activity, sessionID)
	if s.active == sessionID {
		s.active = ""
	}
}

// AppendActivity adds an entry to the session journal. Past maxActivity
// entries the oldest are dropped and a single truncation marker at the end
// counts every entry dropped so far.
func (s *Store) AppendActivity(sessionID, typ string, payload map[string]any) types.Activity {
	evt := types.Activity{Type: typ, Ts: time.Now().UTC(), Payload: payload}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.activity[sessionID]
	dropped := 0
	if n := len(entries); n > 0 && entries[n-1].Type == activityTruncated {
		dropped, _ = entries[n-1].Payload["dropped"].(int)
		entries = entries[:n-1]
	}
	entries = append(entries, evt)
	if dropped == 0 && len(entries) <= maxActivity {
		s.activity[sessionID] = entries
		return evt
	}

	keep := maxActivity - 1
	if l := len(entries); l > keep {
		dropped += l - keep
		entries = append([]types.Activity(nil), entries[l-keep:]...)
	}
	warn := types.Activity{Type: activityTruncated, Ts: time.Now().UTC(), Payload: map[string]any{"session_id": sessionID, "dropped": dropped, "kept": len(entries)}}
	s.activity[sessionID] = append(entries, warn)
	return evt
}

// ListActivity returns a copy of the session journal.
func (s *Store) ListActivity(sessionID string) []types.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.activity[sessionID]
	out := make([]types.Activity, len(src))
	copy(out, src)
	return out
}
