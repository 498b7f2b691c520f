package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/codeloom/internal/errors"
	"github.com/Iron-Ham/codeloom/internal/logging"
)

// DefaultSubscriberBuffer is the event channel capacity used when the
// registry is constructed with a non-positive buffer size.
const DefaultSubscriberBuffer = 256

// entry pairs a live session with its subscriber set. The entry mutex is
// the session's single critical section: state mutation, sequence
// assignment, and event fan-out all happen while it is held, so a
// subscriber's snapshot plus its event stream always composes to a
// consistent view.
type entry struct {
	mu          sync.Mutex
	session     *Session
	subscribers map[uint64]chan Event
	nextSubID   uint64
}

// Registry is the process-wide concurrent map of sessions. It is the only
// component that mutates session state; everything handed out is a snapshot.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	bufSize int
	logger  *logging.Logger
}

// NewRegistry creates an empty registry. bufSize is the per-subscriber
// event channel capacity; subscribers that fall that far behind are
// dropped rather than blocking the pipeline.
func NewRegistry(logger *logging.Logger, bufSize int) *Registry {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if bufSize <= 0 {
		bufSize = DefaultSubscriberBuffer
	}
	return &Registry{
		entries: make(map[string]*entry),
		bufSize: bufSize,
		logger:  logger,
	}
}

// Create registers a new pending session for the given prompt and returns
// a snapshot of it.
func (r *Registry) Create(prompt string) Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.entries[s.ID] = &entry{
		session:     s,
		subscribers: make(map[uint64]chan Event),
	}
	r.mu.Unlock()

	r.logger.WithSession(s.ID).Debug("session created")
	return s.Clone()
}

// Get returns a snapshot of the session with the given ID.
func (r *Registry) Get(id string) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

// List returns snapshots of all sessions, newest first.
func (r *Registry) List() []Session {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sessions := make([]Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		sessions = append(sessions, e.session.Clone())
		e.mu.Unlock()
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions
}

// Apply runs fn against the live session inside its critical section. The
// events fn returns are stamped with consecutive sequence numbers and
// fanned out to subscribers before the lock is released, so no observer
// can see the state change without its events or vice versa. If fn returns
// an error the session is left untouched by convention (fn must not
// mutate on its error paths) and nothing is published.
func (r *Registry) Apply(id string, fn func(*Session) ([]Event, error)) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	events, err := fn(e.session)
	if err != nil {
		return e.session.Clone(), err
	}

	now := time.Now()
	e.session.UpdatedAt = now
	for i := range events {
		e.session.Seq++
		events[i].Seq = e.session.Seq
		events[i].SessionID = e.session.ID
		events[i].Timestamp = now
		r.fanOut(e, events[i])
	}

	return e.session.Clone(), nil
}

// Subscribe registers a new event observer for the session. It returns a
// snapshot of the current state and a channel carrying every event
// published after that snapshot. The snapshot and the channel registration
// happen atomically, so the snapshot's Seq is exactly the sequence number
// preceding the first delivered event. The returned cancel function
// unregisters the subscriber and closes the channel; subscribers to a
// session that reaches a terminal state have their channels closed after
// the terminal event.
func (r *Registry) Subscribe(id string) (Session, <-chan Event, func(), error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, nil, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.session.Clone()
	ch := make(chan Event, r.bufSize)

	// A terminal session publishes nothing further; hand back a closed
	// channel so the caller's receive loop ends immediately.
	if e.session.IsTerminal() {
		close(ch)
		return snapshot, ch, func() {}, nil
	}

	subID := e.nextSubID
	e.nextSubID++
	e.subscribers[subID] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.subscribers[subID]; ok {
			delete(e.subscribers, subID)
			close(c)
		}
	}
	return snapshot, ch, cancel, nil
}

// Delete removes the session from the registry and closes any remaining
// subscriber channels. Deleting an unknown session returns
// ErrSessionNotFound.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return errors.NewNotFoundError("session", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for subID, ch := range e.subscribers {
		delete(e.subscribers, subID)
		close(ch)
	}
	r.logger.WithSession(id).Debug("session deleted")
	return nil
}

// Sweep removes terminal sessions whose last update is older than maxAge
// and returns how many were removed.
func (r *Registry) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	var stale []string
	for _, s := range r.List() {
		if s.IsTerminal() && s.UpdatedAt.Before(cutoff) {
			stale = append(stale, s.ID)
		}
	}

	removed := 0
	for _, id := range stale {
		if err := r.Delete(id); err == nil {
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("swept stale sessions", "count", removed)
	}
	return removed
}

// lookup finds the entry for a session ID.
func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, errors.NewNotFoundError("session", id)
	}
	return e, nil
}

// fanOut delivers an event to every subscriber of the entry. Callers must
// hold e.mu. Delivery never blocks: a subscriber whose buffer is full is
// dropped and its channel closed. After a terminal event all subscriber
// channels are closed, upholding the contract that nothing follows it.
func (r *Registry) fanOut(e *entry, evt Event) {
	for subID, ch := range e.subscribers {
		select {
		case ch <- evt:
		default:
			delete(e.subscribers, subID)
			close(ch)
			r.logger.WithSession(evt.SessionID).Warn("dropped slow subscriber",
				"subscriber_id", subID, "seq", evt.Seq)
		}
	}

	if evt.Type == EventSessionCompleted || evt.Type == EventSessionError {
		for subID, ch := range e.subscribers {
			delete(e.subscribers, subID)
			close(ch)
		}
	}
}
