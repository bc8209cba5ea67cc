// Package ticket implements the single-use, TTL-bound credential store
// described in spec.md §4.1. It binds a verified (kubeconfig, target)
// pair to a future WebSocket connection.
package ticket

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecTarget identifies which container to exec into (spec.md §3).
type ExecTarget struct {
	Namespace string
	Pod       string
	Container string   // optional, empty means cluster default
	Command   []string // optional, disables shell-candidate fallback when non-empty
}

// IssuerMeta captures who requested or consumed a ticket.
type IssuerMeta struct {
	RemoteAddr string
	UserAgent  string
}

// record is the internal ticket state; kubeconfig bytes never leave the store.
type record struct {
	kubeconfig string
	target     ExecTarget
	expiresAt  time.Time
	used       bool
	issuedBy   IssuerMeta
}

// Reason distinguishes why consume failed. The reference gateway surfaces
// distinct phrasing per spec.md §9's open question; callers that want to
// unify the three into one bucket may do so at the HTTP/WS boundary.
type Reason int

const (
	ReasonInvalid Reason = iota
	ReasonUsed
	ReasonExpired
)

// Error wraps a failed consume with its Reason.
type Error struct {
	Reason  Reason
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(reason Reason, message string) *Error {
	return &Error{Reason: reason, Message: message}
}

// Store is a process-local, mutex-protected map of outstanding tickets.
// There is no persistence: a restart invalidates every outstanding ticket.
type Store struct {
	mu      sync.Mutex
	records map[string]*record
	ttl     time.Duration
	now     func() time.Time
}

// New creates a Store whose issued tickets expire after ttl.
func New(ttl time.Duration) *Store {
	return &Store{
		records: make(map[string]*record),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue generates a fresh ticket id bound to kubeconfig+target and returns
// the id and its expiry. A sweep runs first to drop expired records.
func (s *Store) Issue(kubeconfig string, target ExecTarget, issuedBy IssuerMeta) (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	id := uuid.New().String()
	expiresAt := s.now().Add(s.ttl)
	s.records[id] = &record{
		kubeconfig: kubeconfig,
		target:     target,
		expiresAt:  expiresAt,
		used:       false,
		issuedBy:   issuedBy,
	}
	return id, expiresAt
}

// Consume atomically takes a ticket if present, unused, and unexpired.
// On success the record is marked used (not removed) so a second consume
// of the same id reports ReasonUsed instead of ReasonInvalid; the sweeper
// reaps used records once they expire. consumerMeta is accepted for audit logging by
// the caller but is not itself persisted (spec.md: no audit-log durability).
func (s *Store) Consume(id string, _ IssuerMeta) (kubeconfig string, target ExecTarget, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	rec, ok := s.records[id]
	if !ok {
		return "", ExecTarget{}, newError(ReasonInvalid, "Invalid or expired ticket.")
	}
	if rec.used {
		return "", ExecTarget{}, newError(ReasonUsed, "Ticket already used.")
	}
	if !rec.expiresAt.After(s.now()) {
		delete(s.records, id)
		return "", ExecTarget{}, newError(ReasonExpired, "Ticket expired.")
	}

	rec.used = true
	return rec.kubeconfig, rec.target, nil
}

// Sweep removes expired records, used or not; a used record stays until
// its expiry so a repeated Consume reports ReasonUsed. It is safe to call
// concurrently and is also invoked on every Issue/Consume.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
}

func (s *Store) sweepLocked() {
	now := s.now()
	for id, rec := range s.records {
		if !rec.expiresAt.After(now) {
			delete(s.records, id)
		}
	}
}

// Len reports the number of outstanding (unswept) records; used by tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
