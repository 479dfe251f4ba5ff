package raft

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jotaen/raft/internal/errors"
)

// The number of messages buffered per endpoint before new ones are dropped.
const memoryInboxSize = 1024

// MemoryNetwork connects in-process transports. It can disconnect nodes to
// simulate crashes and partitions. It should only be used for testing purposes.
type MemoryNetwork struct {
	endpoints map[NodeID]*memoryTransport

	// Nodes whose inbound and outbound messages are dropped.
	disconnected map[NodeID]bool

	mu sync.RWMutex
}

// NewMemoryNetwork creates an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		endpoints:    make(map[NodeID]*memoryTransport),
		disconnected: make(map[NodeID]bool),
	}
}

// Transport returns the transport of the node with the provided ID, creating
// it if it does not exist.
func (n *MemoryNetwork) Transport(id NodeID) Transport {
	n.mu.Lock()
	defer n.mu.Unlock()

	if endpoint, ok := n.endpoints[id]; ok {
		return endpoint
	}
	endpoint := &memoryTransport{
		id:      id,
		network: n,
		inbox:   make(chan *envelope, memoryInboxSize),
	}
	n.endpoints[id] = endpoint
	return endpoint
}

// Disconnect drops every message sent to or by the node with the provided ID.
func (n *MemoryNetwork) Disconnect(id NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnected[id] = true
}

// Connect reverses Disconnect.
func (n *MemoryNetwork) Connect(id NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.disconnected, id)
}

func (n *MemoryNetwork) route(e *envelope) error {
	n.mu.RLock()
	target, ok := n.endpoints[e.to]
	dropped := n.disconnected[e.from] || n.disconnected[e.to]
	n.mu.RUnlock()

	if !ok {
		return errors.Wrap(ErrUnknownPeer, "could not deliver %v to %d", e.message, e.to)
	}
	if dropped {
		return nil
	}
	target.enqueue(e)
	return nil
}

// memoryTransport is an implementation of the Transport interface that
// delivers messages through a MemoryNetwork.
type memoryTransport struct {
	id NodeID

	network *MemoryNetwork

	// Messages received and not yet handed to the handler.
	inbox chan *envelope

	// Indicates whether the transport is started.
	running bool

	handler func(from NodeID, message Message)

	stopCh chan struct{}

	wg sync.WaitGroup

	mu sync.RWMutex
}

func (t *memoryTransport) Run() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}

	t.stopCh = make(chan struct{})
	t.wg.Add(1)
	go t.receiveLoop(t.stopCh)
	t.running = true

	return nil
}

func (t *memoryTransport) Shutdown() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

func (t *memoryTransport) Deliver(to NodeID, message Message) error {
	t.mu.RLock()
	running := t.running
	t.mu.RUnlock()

	if !running {
		return errors.Wrap(ErrTransportClosed, "could not deliver %v to %d", message, to)
	}
	return t.network.route(&envelope{id: uuid.New(), from: t.id, to: to, message: message})
}

func (t *memoryTransport) RegisterHandler(handler func(from NodeID, message Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

func (t *memoryTransport) Address() string {
	return fmt.Sprintf("memory://%d", t.id)
}

// enqueue accepts an envelope if the transport is running and its inbox has room.
func (t *memoryTransport) enqueue(e *envelope) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.running {
		return
	}
	select {
	case t.inbox <- e:
	default:
	}
}

func (t *memoryTransport) receiveLoop(stopCh chan struct{}) {
	defer t.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		case e := <-t.inbox:
			t.mu.RLock()
			handler := t.handler
			t.mu.RUnlock()
			if handler != nil {
				handler(e.from, e.message)
			}
		}
	}
}
