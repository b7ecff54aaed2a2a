// Package session owns the connection state machine and the process-wide
// state value object that the rest of the bridge reads.
package session

import (
	"sync/atomic"

	"whatsbridge/internal/domain"
)

// State is the single process-wide connection state. Only the Controller in
// this package writes it; any goroutine may read it.
type State struct {
	current atomic.Int32
	lastQR  atomic.Pointer[string]
}

func NewState() *State {
	return &State{}
}

func (s *State) Get() domain.ConnectionState {
	return domain.ConnectionState(s.current.Load())
}

// IsReady reports whether outbound sends are permitted.
func (s *State) IsReady() bool {
	return s.Get() == domain.StateReady
}

// LastQR returns the most recent scan payload while awaiting a scan, else "".
func (s *State) LastQR() string {
	if s.Get() != domain.StateAwaitingScan {
		return ""
	}
	if p := s.lastQR.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *State) set(st domain.ConnectionState) {
	s.current.Store(int32(st))
	if st != domain.StateAwaitingScan {
		s.lastQR.Store(nil)
	}
}

func (s *State) setQR(code string) {
	s.lastQR.Store(&code)
}
