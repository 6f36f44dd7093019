// Package registry implements the process-wide connection directory (C in
// spec.md §4.7) backing CLIENT LIST/KILL/ID/SETNAME/GETNAME. Grounded on the
// teacher's internal/infrastructure/processmgr.ProcessManager: a
// map[id]*entry guarded by one sync.RWMutex, with idempotent
// insert/remove and a Stop/Kill-by-id operation — generalized here from
// supervised OS processes to supervised RESP connections.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/redlite/redlite/internal/session"
)

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[uint64]*session.Session
}

func New() *Registry {
	return &Registry{entries: make(map[uint64]*session.Session)}
}

// Register adds a session. Idempotent: re-registering the same ID replaces
// the old entry (it should never happen in practice since IDs are unique
// per accepted connection).
func (r *Registry) Register(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[s.ID] = s
}

// Unregister removes a session once its connection goroutine exits.
func (r *Registry) Unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

func (r *Registry) Get(id uint64) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.entries[id]
	return s, ok
}

// List returns a snapshot of all live sessions, sorted by ID for stable
// CLIENT LIST output.
func (r *Registry) List() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.entries))
	for _, s := range r.entries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// KillFilter selects which sessions CLIENT KILL should terminate. A zero
// value matches nothing; set only the fields the caller specified.
type KillFilter struct {
	ID        *uint64
	Addr      string
	SkipMe    uint64 // session ID to never kill even if it matches (SKIPME yes, default)
	HasID     bool
	HasAddr   bool
	HasSkipMe bool
}

// Kill applies filter to every registered session, calling Kill() on each
// match, and returns the number killed.
func (r *Registry) Kill(filter KillFilter) int {
	if !filter.HasID && !filter.HasAddr {
		return 0
	}
	r.mu.RLock()
	matches := make([]*session.Session, 0)
	for _, s := range r.entries {
		if filter.HasID && (filter.ID == nil || s.ID != *filter.ID) {
			continue
		}
		if filter.HasAddr && s.Addr != filter.Addr {
			continue
		}
		if filter.HasSkipMe && s.ID == filter.SkipMe {
			continue
		}
		matches = append(matches, s)
	}
	r.mu.RUnlock()

	for _, s := range matches {
		s.Kill()
	}
	return len(matches)
}

// ClientInfo is the formatted-line payload for CLIENT LIST/INFO, mirroring
// Redis's "key=value" space-separated line format.
type ClientInfo struct {
	ID       uint64
	Addr     string
	Name     string
	DB       int
	Kind     string
	Age      time.Duration
	Idle     time.Duration
	CmdCount uint64
}

func Describe(s *session.Session) ClientInfo {
	lastCmdAt, cmdCount := s.Stats()
	now := time.Now()
	return ClientInfo{
		ID:       s.ID,
		Addr:     s.Addr,
		Name:     s.Name(),
		DB:       s.DB(),
		Kind:     s.Kind().String(),
		Age:      now.Sub(s.CreatedAt),
		Idle:     now.Sub(lastCmdAt),
		CmdCount: cmdCount,
	}
}
