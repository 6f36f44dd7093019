// Package notify implements the keyspace-notification bus (N in spec.md
// §4.3): a best-effort, non-blocking in-process fan-out of key-change events.
// The bounded-per-subscriber-queue-with-drop-counter shape is grounded on the
// teacher's internal/infrastructure/processmgr.slotPool and logBuffer: a
// fixed-capacity resource guarded by a single mutex, with an explicit
// "how much did we drop" counter instead of ever blocking the writer.
package notify

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Kind enumerates the keyspace-event kinds a mutation can emit.
type Kind string

const (
	KindSet      Kind = "set"
	KindDel      Kind = "del"
	KindExpired  Kind = "expired"
	KindExpire   Kind = "expire"
	KindRename   Kind = "rename_from"
	KindLPush    Kind = "lpush"
	KindRPush    Kind = "rpush"
	KindLPop     Kind = "lpop"
	KindRPop     Kind = "rpop"
	KindSAdd     Kind = "sadd"
	KindSRem     Kind = "srem"
	KindSPop     Kind = "spop"
	KindHSet     Kind = "hset"
	KindHDel     Kind = "hdel"
	KindZAdd     Kind = "zadd"
	KindZRem     Kind = "zrem"
	KindZIncrBy  Kind = "zincrby"
	KindXAdd     Kind = "xadd"
	KindXTrim    Kind = "xtrim"
	KindPersist  Kind = "persist"
	KindMessage  Kind = "message" // generic PUBLISH, not a keyspace mutation
)

// Event is one published notification. Payload is only set for KindMessage
// (PUBLISH); keyspace-mutation events carry no payload, subscribers re-read
// state instead.
type Event struct {
	DB      int
	Key     string
	Kind    Kind
	Payload []byte
}

// Filter narrows a subscription. A zero-value field means "match anything".
type Filter struct {
	DB      *int
	Key     string
	Pattern string // glob pattern over "key", mutually exclusive with Key
	Kinds   map[Kind]struct{}
}

func (f Filter) matches(ev Event) bool {
	if f.DB != nil && *f.DB != ev.DB {
		return false
	}
	if f.Key != "" && f.Key != ev.Key {
		return false
	}
	if f.Pattern != "" && !globMatch(f.Pattern, ev.Key) {
		return false
	}
	if len(f.Kinds) > 0 {
		if _, ok := f.Kinds[ev.Kind]; !ok {
			return false
		}
	}
	return true
}

// Subscriber is a bounded, non-blocking event queue.
type Subscriber struct {
	id      uint64
	filter  Filter
	ch      chan Event
	dropped atomic.Uint64
}

// Events returns the channel new events are delivered on.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Dropped returns the count of events dropped because this subscriber's
// queue was full. Callers (in particular internal/blocking) must tolerate
// drops by re-reading state rather than trusting every event arrives.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

const defaultQueueCap = 1024

// Bus is the process-wide notification singleton.
type Bus struct {
	mu       sync.RWMutex
	subs     map[uint64]*Subscriber
	nextID   uint64
	queueCap int
	version  atomic.Uint64 // bumped on every Publish; used as the poller's snapshot token
}

func NewBus(queueCap int) *Bus {
	if queueCap <= 0 {
		queueCap = defaultQueueCap
	}
	return &Bus{subs: make(map[uint64]*Subscriber), queueCap: queueCap}
}

// Version returns a monotonically increasing counter bumped on every
// publish. internal/blocking snapshots this on entry so a concurrent publish
// between "try non-blocking op" and "start waiting" is never silently missed:
// if the version moved, the waiter retries immediately instead of sleeping.
func (b *Bus) Version() uint64 { return b.version.Load() }

// Subscribe registers a new subscriber and returns its handle. Must be
// paired with Unsubscribe.
func (b *Bus) Subscribe(filter Filter) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &Subscriber{id: b.nextID, filter: filter, ch: make(chan Event, b.queueCap)}
	b.subs[s.id] = s
	return s
}

// Unsubscribe removes a subscriber. Idempotent.
func (b *Bus) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	b.mu.Lock()
	delete(b.subs, s.id)
	b.mu.Unlock()
}

// Publish fans ev out to every matching subscriber and returns how many
// subscribers it was delivered to (PUBLISH's reply value). Non-blocking: a
// subscriber whose queue is full has the event dropped and its Dropped
// counter incremented instead of stalling the writer.
func (b *Bus) Publish(ev Event) int {
	b.version.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for _, s := range b.subs {
		if !s.filter.matches(ev) {
			continue
		}
		select {
		case s.ch <- ev:
			delivered++
		default:
			s.dropped.Add(1)
		}
	}
	return delivered
}

// Match is the exported form of the glob matcher below, reused by
// internal/keyspace for the SCAN family's MATCH clause.
func Match(pattern, s string) bool { return globMatch(pattern, s) }

// globMatch implements Redis-style glob matching (*, ?, [abc], [a-z]) for
// keyspace-notification pattern subscriptions and for MATCH clauses in the
// SCAN family (internal/keyspace reuses this for cursor-based iteration).
func globMatch(pattern, s string) bool {
	return globMatchBytes([]byte(pattern), []byte(s))
}

func globMatchBytes(pattern, s []byte) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatchBytes(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		case '[':
			if len(s) == 0 {
				return false
			}
			end := indexByte(pattern, ']')
			if end < 0 {
				// malformed class: treat '[' literally
				if s[0] != '[' {
					return false
				}
				s = s[1:]
				pattern = pattern[1:]
				continue
			}
			cls := pattern[1:end]
			neg := len(cls) > 0 && cls[0] == '^'
			if neg {
				cls = cls[1:]
			}
			if matchClass(cls, s[0]) == neg {
				return false
			}
			s = s[1:]
			pattern = pattern[end+1:]
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		}
	}
	return len(s) == 0
}

func indexByte(b []byte, c byte) int {
	return strings.IndexByte(string(b), c)
}

func matchClass(cls []byte, c byte) bool {
	for i := 0; i < len(cls); i++ {
		if i+2 < len(cls) && cls[i+1] == '-' {
			if cls[i] <= c && c <= cls[i+2] {
				return true
			}
			i += 2
			continue
		}
		if cls[i] == c {
			return true
		}
	}
	return false
}
