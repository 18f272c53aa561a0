// Package store holds ingested gateway events in arrival order with lookup
// indexes by thread, turn and actor.
package store

import (
	"sync"

	"github.com/davidahmann/observer/core/event"
)

// Store is append-only. Appended events are copied in and reads copy them
// out, so callers never share payloads with the store.
type Store struct {
	mu       sync.Mutex
	events   []event.ObservedEvent
	byThread map[string][]int
	byTurn   map[string][]int
	byActor  map[string][]int
	threads  []string
	actors   []string
}

func New() *Store {
	return &Store{
		byThread: map[string][]int{},
		byTurn:   map[string][]int{},
		byActor:  map[string][]int{},
	}
}

// Append records observed in position order. Events without a thread or actor
// are left out of that index; the turn index always records.
func (s *Store) Append(observed event.ObservedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	position := len(s.events)
	observed = observed.Clone()
	s.events = append(s.events, observed)

	if observed.ThreadID != "" {
		if _, ok := s.byThread[observed.ThreadID]; !ok {
			s.threads = append(s.threads, observed.ThreadID)
		}
		s.byThread[observed.ThreadID] = append(s.byThread[observed.ThreadID], position)
	}
	turnKey := observed.TurnKey()
	s.byTurn[turnKey] = append(s.byTurn[turnKey], position)
	if observed.Actor != "" {
		if _, ok := s.byActor[observed.Actor]; !ok {
			s.actors = append(s.actors, observed.Actor)
		}
		s.byActor[observed.Actor] = append(s.byActor[observed.Actor], position)
	}
}

func (s *Store) All() []event.ObservedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.ObservedEvent, len(s.events))
	for index, stored := range s.events {
		out[index] = stored.Clone()
	}
	return out
}

func (s *Store) Thread(threadID string) []event.ObservedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(s.byThread[threadID])
}

func (s *Store) Turn(threadID, turnID string) []event.ObservedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(s.byTurn[event.TurnKey(threadID, turnID)])
}

func (s *Store) Actor(actor string) []event.ObservedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(s.byActor[actor])
}

// LastIndex reports the gateway index of the most recent append.
func (s *Store) LastIndex() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return 0, false
	}
	return s.events[len(s.events)-1].Index, true
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// ThreadIDs lists known threads in first-seen order.
func (s *Store) ThreadIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.threads...)
}

// ActorIDs lists known actors in first-seen order.
func (s *Store) ActorIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.actors...)
}

func (s *Store) collect(positions []int) []event.ObservedEvent {
	out := make([]event.ObservedEvent, 0, len(positions))
	for _, position := range positions {
		out = append(out, s.events[position].Clone())
	}
	return out
}
