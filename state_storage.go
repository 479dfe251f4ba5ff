package raft

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/jotaen/raft/internal/errors"
)

var (
	stateBucket = []byte("state")
	stateKey    = []byte("current")
)

// StateStorage represents the component of a node responsible for persistently
// storing its term, trusted leader and vote.
type StateStorage interface {
	// SetState persists the provided state. The storage must be open otherwise an
	// error is returned.
	SetState(state PersistentState) error

	// State returns the most recently persisted state in the storage. The boolean
	// is false if no state was ever persisted. If the storage is closed, an error
	// is returned.
	State() (PersistentState, bool, error)

	// Close releases the resources held by the storage.
	Close() error
}

// PersistentState is the state a node must not forget across restarts.
type PersistentState struct {
	// The latest term the node adopted.
	Term TermID

	// The leader the node trusts, None if unknown.
	LeaderID NodeID

	// The highest term the node voted in and the candidate it voted for.
	// Only meaningful when Voted is true.
	VotedTerm TermID
	VotedFor  NodeID
	Voted     bool
}

// persistentStateStorage implements the StateStorage interface on top of a
// bolt database. This implementation is concurrent safe.
type persistentStateStorage struct {
	db *bolt.DB

	mu sync.Mutex
}

// NewStateStorage creates a new state storage.
// The database containing the state will be located at path/state.db.
func NewStateStorage(path string) (StateStorage, error) {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return nil, errors.Wrap(err, "failed to create state directory %s", path)
	}

	db, err := bolt.Open(filepath.Join(path, "state.db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open state database")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create state bucket")
	}

	return &persistentStateStorage{db: db}, nil
}

func (p *persistentStateStorage) SetState(state PersistentState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return errors.Wrap(ErrStorageClosed, "failed to write state")
	}

	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put(stateKey, encodePersistentState(state))
	})
	if err != nil {
		return errors.Wrap(err, "failed to write state")
	}

	return nil
}

func (p *persistentStateStorage) State() (PersistentState, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return PersistentState{}, false, errors.Wrap(ErrStorageClosed, "failed to read state")
	}

	var data []byte
	err := p.db.View(func(tx *bolt.Tx) error {
		if value := tx.Bucket(stateBucket).Get(stateKey); value != nil {
			// Values are only valid for the life of the transaction.
			data = append([]byte{}, value...)
		}
		return nil
	})
	if err != nil {
		return PersistentState{}, false, errors.Wrap(err, "failed to read state")
	}
	if data == nil {
		return PersistentState{}, false, nil
	}

	state, err := decodePersistentState(data)
	if err != nil {
		return PersistentState{}, false, errors.Wrap(err, "failed to decode state")
	}

	return state, true, nil
}

func (p *persistentStateStorage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	if err != nil {
		return errors.Wrap(err, "failed to close state database")
	}
	return nil
}
