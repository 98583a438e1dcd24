package service

import (
	"sync"
	"sync/atomic"
	"time"
)

// State собирает отметки циклов раннера и состояние WS.
// Готовность: каждый из обязательных циклов хотя бы раз отработал.
type State struct {
	startedAt time.Time
	required  []string

	wsConnected atomic.Bool

	mu        sync.RWMutex
	lastCycle map[string]time.Time
}

func NewState(required ...string) *State {
	return &State{
		startedAt: time.Now(),
		required:  required,
		lastCycle: make(map[string]time.Time),
	}
}

func (s *State) TouchCycle(loop string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycle[loop] = at
}

func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, loop := range s.required {
		if _, ok := s.lastCycle[loop]; !ok {
			return false
		}
	}
	return true
}

// LastCycles — копия отметок по циклам.
func (s *State) LastCycles() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.lastCycle))
	for k, v := range s.lastCycle {
		out[k] = v
	}
	return out
}

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
