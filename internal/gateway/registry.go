package gateway

import (
	"sync"
	"time"

	"github.com/sealos/tty-agent/internal/session"
)

// registry tracks the connections currently owned by this gateway
// (spec.md §5's "Session registry": mutated only on accept and close,
// never shared across connections beyond this bookkeeping). It backs
// the operator-facing active-session count; it offers add, remove and a
// count, and no way to iterate the stored sessions.
type registry struct {
	mu    sync.RWMutex
	byID  map[string]*entry
}

type entry struct {
	session   *session.Session
	createdAt time.Time
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]*entry)}
}

func (r *registry) add(id string, sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = &entry{session: sess, createdAt: time.Now()}
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
