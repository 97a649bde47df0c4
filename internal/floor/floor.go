// Package floor holds the speak arbitration state: who has the floor and
// which single request waits for it. It does no locking; the owner
// serializes calls.
package floor

import "yuzu/voicebridge/internal/types"

// State is one of Idle, Speaking or SpeakingPending.
type State interface{ isState() }

type Idle struct{}

type Speaking struct {
	Current types.SpeakRequest
}

type SpeakingPending struct {
	Current types.SpeakRequest
	Pending types.SpeakRequest
}

func (Idle) isState()            {}
func (Speaking) isState()        {}
func (SpeakingPending) isState() {}

// Decision is the outcome of offering a request to the manager.
type Decision struct {
	// Start is true when the caller now owns the floor and must run the
	// pipeline for the offered request.
	Start bool
	// Replaced is the pending request that was overwritten, if any.
	Replaced *types.SpeakRequest
}

type Manager struct {
	state State
}

func New() *Manager { return &Manager{state: Idle{}} }

func (m *Manager) State() State { return m.state }

// Offer takes the floor when idle, otherwise overwrites the pending slot.
func (m *Manager) Offer(req types.SpeakRequest) Decision {
	switch s := m.state.(type) {
	case Speaking:
		m.state = SpeakingPending{Current: s.Current, Pending: req}
		return Decision{}
	case SpeakingPending:
		old := s.Pending
		m.state = SpeakingPending{Current: s.Current, Pending: req}
		return Decision{Replaced: &old}
	default:
		m.state = Speaking{Current: req}
		return Decision{Start: true}
	}
}

// Finish ends the current pipeline. If a request was pending it becomes
// current, the slot is cleared and it is returned with ok=true; otherwise
// the manager goes idle.
func (m *Manager) Finish() (next types.SpeakRequest, ok bool) {
	switch s := m.state.(type) {
	case SpeakingPending:
		m.state = Speaking{Current: s.Pending}
		return s.Pending, true
	default:
		m.state = Idle{}
		return types.SpeakRequest{}, false
	}
}
