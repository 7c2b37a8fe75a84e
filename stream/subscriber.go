package stream

import (
	"sync"
	"sync/atomic"
	"time"
)

// Subscriber receives events from topics it is subscribed to.
//
// Delivery is non-blocking for the publisher: each subscriber has its
// own buffered channel and credit-based flow control, so one slow
// connection never blocks publish for the others — its events are
// dropped instead.
//
// A subscriber may carry an owner scope and a set of event types; events
// outside either are filtered out before delivery. A subscriber with no
// scope and no event-type set receives everything on its topics.
type Subscriber struct {
	// id uniquely identifies this subscriber.
	id string

	// ch is the buffered channel events are sent on.
	ch chan *Event

	// credits tracks remaining flow-control credits.
	// When zero, the broker skips this subscriber.
	credits atomic.Int64

	// lastHeartbeat is the unix-nano timestamp of the most recent
	// heartbeat. The broker evicts subscribers whose heartbeat is stale.
	lastHeartbeat atomic.Int64

	// topics tracks which topics this subscriber is on.
	topics map[string]struct{}
	mu     sync.RWMutex

	// scopeUserID/scopeTeamID restrict delivery to events owned by the
	// given user or team. Empty means no scope filter.
	scopeUserID string
	scopeTeamID string

	// eventTypes restricts delivery to the listed types. Empty means all.
	eventTypes map[EventType]struct{}

	// closed prevents double-close of the channel.
	closed atomic.Bool
}

// NewSubscriber creates a subscriber with the given buffer size
// and initial credits. The heartbeat starts at now.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(initialCredits)
	s.lastHeartbeat.Store(time.Now().UnixNano())
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only event channel.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits replenishes flow-control credits.
func (s *Subscriber) AddCredits(n int64) {
	s.credits.Add(n)
}

// Credits returns the current credit count.
func (s *Subscriber) Credits() int64 {
	return s.credits.Load()
}

// Heartbeat records that the connection behind this subscriber is alive.
func (s *Subscriber) Heartbeat() {
	s.lastHeartbeat.Store(time.Now().UnixNano())
}

// LastHeartbeat returns the time of the most recent heartbeat.
func (s *Subscriber) LastHeartbeat() time.Time {
	return time.Unix(0, s.lastHeartbeat.Load())
}

// SetScope restricts delivery to events owned by the given user or team.
// Call before the subscriber starts receiving.
func (s *Subscriber) SetScope(userID, teamID string) {
	s.mu.Lock()
	s.scopeUserID = userID
	s.scopeTeamID = teamID
	s.mu.Unlock()
}

// SetEventTypes restricts delivery to the listed event types.
// An empty list means all types.
func (s *Subscriber) SetEventTypes(types ...EventType) {
	s.mu.Lock()
	if len(types) == 0 {
		s.eventTypes = nil
	} else {
		s.eventTypes = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			s.eventTypes[t] = struct{}{}
		}
	}
	s.mu.Unlock()
}

// addTopic records that this subscriber is on the given topic.
func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

// removeTopic removes a topic from the subscriber's tracked set.
func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// Topics returns a copy of all subscribed topic names.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// matches reports whether the event passes the scope and event-type
// filters. Callers must hold s.mu for reading.
func (s *Subscriber) matches(evt *Event) bool {
	if s.eventTypes != nil {
		if _, ok := s.eventTypes[evt.Type]; !ok {
			return false
		}
	}
	if s.scopeUserID == "" && s.scopeTeamID == "" {
		return true
	}
	// Unscoped events (health, breaker) pass any scope filter.
	if evt.ScopeUserID == "" && evt.ScopeTeamID == "" {
		return true
	}
	if s.scopeUserID != "" && evt.ScopeUserID == s.scopeUserID {
		return true
	}
	if s.scopeTeamID != "" && evt.ScopeTeamID == s.scopeTeamID {
		return true
	}
	return false
}

// send attempts to deliver an event to the subscriber.
// Returns false if the event was dropped (subscriber closed, filter
// mismatch, no credits, or full buffer).
//
// The read lock is held across the channel send so Close cannot close
// the channel while an event is in flight.
func (s *Subscriber) send(evt *Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed.Load() {
		return false
	}
	if !s.matches(evt) {
		return false
	}

	// Check credits.
	for {
		current := s.credits.Load()
		if current <= 0 {
			return false
		}
		if s.credits.CompareAndSwap(current, current-1) {
			break
		}
	}

	// Non-blocking send.
	select {
	case s.ch <- evt:
		return true
	default:
		// Buffer full, restore credit.
		s.credits.Add(1)
		return false
	}
}

// Close closes the subscriber channel. Safe to call multiple times and
// safe against a concurrent send.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
