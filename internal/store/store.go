package store

import (
	"errors"
	gosync "sync"

	"github.com/nhle/notification-sync/internal/model"
)

// ErrMissingID is returned by Ingest for a record without an identifier.
var ErrMissingID = errors.New("notification has no id")

// Reader is the read and subscribe surface of the notification store handed
// to views. It exposes no way to mutate records.
type Reader interface {
	// Records returns a copy of all records, newest first.
	Records() []model.Notification

	// Recent returns a copy of at most n records, newest first.
	Recent(n int) []model.Notification

	// Get returns the record with the given id.
	Get(id string) (model.Notification, bool)

	// UnreadCount returns the number of unread records.
	UnreadCount() int

	// Len returns the number of records.
	Len() int

	// Loaded reports whether the bootstrap load has completed.
	Loaded() bool

	// Subscribe returns a channel that receives a signal after every change
	// and a func that cancels the subscription. Signals are coalesced: a
	// subscriber that has not drained the previous signal misses nothing,
	// it just sees one signal for several changes.
	Subscribe() (<-chan struct{}, func())
}

// Store is the single in-memory source of truth for one session's
// notifications. Records are unique by ID and ordered newest first; the
// unread count is always derived from the records.
type Store struct {
	mu          gosync.Mutex
	records     []model.Notification
	ids         map[string]struct{}
	loaded      bool
	subscribers map[int]chan struct{}
	nextSubID   int
}

var _ Reader = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		ids:         make(map[string]struct{}),
		subscribers: make(map[int]chan struct{}),
	}
}

// Load replaces the store contents wholesale with the given records, in the
// order given. Records without an ID are dropped and only the first
// occurrence of each ID is kept. It returns the number of records dropped.
func (s *Store) Load(records []model.Notification) int {
	deduped := Dedupe(records)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make([]model.Notification, len(deduped))
	s.ids = make(map[string]struct{}, len(deduped))
	for i, r := range deduped {
		s.records[i] = clone(r)
		s.ids[r.ID] = struct{}{}
	}
	s.loaded = true
	s.notifyLocked()

	return len(records) - len(deduped)
}

// Ingest prepends a pushed record. A record whose ID is already present is
// ignored (redelivery after a reconnect), and a record without an ID is
// rejected with ErrMissingID. Arrival order, not CreatedAt, decides the
// position of new records.
func (s *Store) Ingest(rec model.Notification) (bool, error) {
	if rec.ID == "" {
		return false, ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[rec.ID]; exists {
		return false, nil
	}

	s.records = append([]model.Notification{clone(rec)}, s.records...)
	s.ids[rec.ID] = struct{}{}
	s.notifyLocked()

	return true, nil
}

// MarkReadLocal optimistically marks the record with the given ID as read.
// It reports whether anything changed; absent and already-read records are
// left untouched.
func (s *Store) MarkReadLocal(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID != id {
			continue
		}
		if s.records[i].IsRead {
			return false
		}
		s.records[i].IsRead = true
		s.notifyLocked()
		return true
	}

	return false
}

// MarkAllReadLocal optimistically marks every record as read and returns
// how many records changed.
func (s *Store) MarkAllReadLocal() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.records {
		if !s.records[i].IsRead {
			s.records[i].IsRead = true
			changed++
		}
	}
	if changed > 0 {
		s.notifyLocked()
	}

	return changed
}

// Clear empties the store at session end. Subscriptions stay open.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.ids = make(map[string]struct{})
	s.loaded = false
	s.notifyLocked()
}

// Records returns a copy of all records, newest first.
func (s *Store) Records() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Notification, len(s.records))
	for i, r := range s.records {
		out[i] = clone(r)
	}
	return out
}

// Recent returns a copy of at most n records, newest first.
func (s *Store) Recent(n int) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.records) || n < 0 {
		n = len(s.records)
	}
	out := make([]model.Notification, n)
	for i := 0; i < n; i++ {
		out[i] = clone(s.records[i])
	}
	return out
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.ID == id {
			return clone(r), true
		}
	}
	return model.Notification{}, false
}

// Has reports whether a record with the given ID is present.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.ids[id]
	return ok
}

// UnreadCount returns the number of unread records.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return CountUnread(s.records)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// Loaded reports whether Load has run since creation or the last Clear.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loaded
}

// Subscribe registers a change listener.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch

	var once gosync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
		})
	}

	return ch, cancel
}

// notifyLocked signals every subscriber without blocking. Callers must hold
// s.mu.
func (s *Store) notifyLocked() {
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending for this subscriber.
		}
	}
}

// clone copies a record so callers never share the store's sender or meta.
func clone(r model.Notification) model.Notification {
	if r.Sender != nil {
		sender := *r.Sender
		r.Sender = &sender
	}
	if r.Meta != nil {
		meta := make(model.Meta, len(r.Meta))
		for k, v := range r.Meta {
			meta[k] = v
		}
		r.Meta = meta
	}
	return r
}
