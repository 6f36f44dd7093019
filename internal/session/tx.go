package session

// Transaction support for MULTI/EXEC/DISCARD/WATCH, per spec.md §4.6.
//
// State machine:
//   idle    -- MULTI --> queued
//   queued  -- command --> queued (appended) or dirty (if the command itself
//              is malformed, e.g. unknown command name)
//   queued  -- EXEC --> idle (queue flushed, replies returned)
//   queued  -- DISCARD --> idle (queue dropped)
//   dirty   -- EXEC --> idle (EXECABORT, queue dropped)
//   dirty   -- DISCARD --> idle

// Multi begins a transaction. Returns false if one is already open (caller
// should reply with an error rather than resetting the queue).
func (s *Session) Multi() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txState != TxIdle {
		return false
	}
	s.txState = TxQueued
	s.txQueue = nil
	return true
}

func (s *Session) InTx() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txState != TxIdle
}

func (s *Session) TxState() TxState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txState
}

// Queue appends a command to the pending transaction. No-op if not in a
// transaction.
func (s *Session) Queue(argv [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txQueue = append(s.txQueue, QueuedCommand{Argv: argv})
}

// MarkDirty flags the current transaction as aborted (EXECABORT on EXEC),
// e.g. because a queued command had the wrong arity or an unknown name.
func (s *Session) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txState == TxQueued {
		s.txState = TxDirty
	}
}

// Discard clears transaction state. Returns false if no transaction was
// open.
func (s *Session) Discard() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txState == TxIdle {
		return false
	}
	s.txState = TxIdle
	s.txQueue = nil
	s.watch = nil
	return true
}

// Exec ends the transaction and returns the queued commands plus whether it
// was dirty (EXECABORT). The caller is responsible for checking watched-key
// versions via WatchSnapshot before calling Exec, since the storage layer
// (not this package) knows current versions.
func (s *Session) Exec() (queue []QueuedCommand, dirty bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txState == TxIdle {
		return nil, false, false
	}
	queue = s.txQueue
	dirty = s.txState == TxDirty
	s.txState = TxIdle
	s.txQueue = nil
	s.watch = nil
	return queue, dirty, true
}

// Watch records the given (db,key)->version snapshot, merging into any
// existing watch set. Versions are supplied by the caller, which reads them
// from internal/storage under its own transaction.
func (s *Session) Watch(db int, key string, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watch == nil {
		s.watch = make(map[WatchKey]int64)
	}
	s.watch[WatchKey{DB: db, Key: key}] = version
}

// WatchSnapshot returns a copy of the current watch set, for the dispatcher
// to re-check against live versions at EXEC time.
func (s *Session) WatchSnapshot() map[WatchKey]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.watch) == 0 {
		return nil
	}
	out := make(map[WatchKey]int64, len(s.watch))
	for k, v := range s.watch {
		out[k] = v
	}
	return out
}

// Unwatch clears the watch set without affecting transaction state (UNWATCH
// is valid both inside and outside MULTI).
func (s *Session) Unwatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watch = nil
}
