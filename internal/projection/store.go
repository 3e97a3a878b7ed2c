package projection

import (
	"sync"

	"github.com/danmuck/callassist/internal/protocol/event"
)

// Store owns one SessionState. Apply and Transition are the only writers;
// readers take deep-copy snapshots.
type Store struct {
	mu      sync.RWMutex
	state   SessionState
	subs    map[int]chan struct{}
	nextSub int
}

func NewStore() *Store {
	return &Store{
		state: NewSessionState(""),
		subs:  make(map[int]chan struct{}),
	}
}

// Reset replaces the state with defaults for sessionID.
func (s *Store) Reset(sessionID string) {
	s.mu.Lock()
	s.state = NewSessionState(sessionID)
	s.mu.Unlock()
	s.broadcast()
}

func (s *Store) Apply(env event.Envelope) Effect {
	s.mu.Lock()
	effect := Apply(&s.state, env)
	s.mu.Unlock()
	if effect.Changed {
		s.broadcast()
	}
	return effect
}

// Transition sets the lifecycle status. It reports false when the current
// status is terminal.
func (s *Store) Transition(next Status) bool {
	s.mu.Lock()
	changed := setStatus(&s.state, next)
	s.mu.Unlock()
	if changed {
		s.broadcast()
	}
	return changed
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Status
}

func (s *Store) Snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Subscribe returns a channel signalled after every change. Signals
// coalesce: a slow reader sees one pending signal, not one per change.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) broadcast() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
