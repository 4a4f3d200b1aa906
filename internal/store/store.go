// Package store holds the committed key-value data a replica serves
// reads from. It is deliberately dumb: it knows nothing about terms,
// logs, or commit rules. internal/raft is the only writer, applying
// entries strictly in index order as they commit.
package store

import (
	"errors"
	"sync"

	"github.com/arcflux/ledgerraft/internal/wire"
)

// ErrNotFound is returned by Get when the key has never been set.
var ErrNotFound = errors.New("store: key not found")

// Store is the replay of a replica's committed log entries. It is
// guarded by an RWMutex, so it is safe to read from a goroutine other
// than the consensus loop (which owns writes), even though the
// consensus core otherwise avoids locking. In this codebase only
// internal/raft reads and writes it; the debug HTTP surface serves
// replica Status and metrics, not the store.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string]string)}
}

// Get returns the value committed for key, or ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

// Apply writes entry's key/value into the committed map. It is called
// once per log entry, in increasing index order, as committed_index
// advances; it has no notion of "already applied" because the caller
// (internal/raft) guarantees each index is applied exactly once.
func (s *Store) Apply(entry wire.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[entry.Key] = entry.Value
}

// Len returns the number of distinct keys currently committed.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
