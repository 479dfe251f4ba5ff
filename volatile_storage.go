package raft

import (
	"sync"

	"github.com/jotaen/raft/internal/errors"
)

// VolatileStateStorage implements the StateStorage interface.
// It is completely in-memory and should only be used
// for testing purposes.
type VolatileStateStorage struct {
	state  PersistentState
	set    bool
	closed bool
	writes int
	mu     sync.Mutex
}

func NewVolatileStateStorage() *VolatileStateStorage {
	return &VolatileStateStorage{}
}

func (vs *VolatileStateStorage) SetState(state PersistentState) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.closed {
		return errors.Wrap(ErrStorageClosed, "failed to write state")
	}
	vs.state = state
	vs.set = true
	vs.writes++
	return nil
}

func (vs *VolatileStateStorage) State() (PersistentState, bool, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.closed {
		return PersistentState{}, false, errors.Wrap(ErrStorageClosed, "failed to read state")
	}
	return vs.state, vs.set, nil
}

func (vs *VolatileStateStorage) Close() error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.closed = true
	return nil
}

// Writes returns the number of times state was persisted.
func (vs *VolatileStateStorage) Writes() int {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.writes
}
