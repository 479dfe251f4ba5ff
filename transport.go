package raft

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jotaen/raft/internal/errors"
	"github.com/jotaen/raft/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const (
	shutdownGracePeriod = 300 * time.Millisecond

	// The number of messages buffered per destination before new ones are dropped.
	sendQueueSize = 256

	// The maximum time a single delivery may take.
	deliverTimeout = 500 * time.Millisecond
)

// Outbox accepts messages for delivery to other nodes. Deliver must not
// block on the network: the roles call it while processing a message.
type Outbox interface {
	// Deliver queues message for delivery to the node with the provided ID.
	// Delivery is best effort: a nil error does not mean the message arrived.
	Deliver(to NodeID, message Message) error
}

// Transport represents the underlying transport mechanism used by a node in a cluster
// to send and receive messages. It acts as both a server for a node and a client of other nodes.
// Messages sent to the same destination arrive in the order they were delivered, if they arrive.
type Transport interface {
	Outbox

	// Run will start serving incoming messages received at the local network address.
	Run() error

	// Shutdown will stop the serving of incoming messages and the delivery of queued ones.
	Shutdown() error

	// RegisterHandler registers the function that will be called when a message is received.
	RegisterHandler(handler func(from NodeID, message Message))

	// Address returns the local network address.
	Address() string
}

// TransportOption configures a transport.
type TransportOption func(t *transport)

// WithTransportLogger sets the logger used by a transport.
func WithTransportLogger(logger Logger) TransportOption {
	return func(t *transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// connectionManager handles creating new connections and closing existing ones.
// This implementation is concurrent safe.
type connectionManager struct {
	// The connections to the nodes in the cluster. Maps address to connection.
	connections map[string]*grpc.ClientConn

	// The credentials each connection will use.
	creds credentials.TransportCredentials

	mu sync.Mutex
}

func newConnectionManager(creds credentials.TransportCredentials) *connectionManager {
	return &connectionManager{
		connections: make(map[string]*grpc.ClientConn),
		creds:       creds,
	}
}

// getConnection will retrieve a connection for the provided address. If one does not
// exist, it will be created.
func (c *connectionManager) getConnection(address string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.connections[address]; ok {
		return conn, nil
	}

	conn, err := grpc.Dial(
		address,
		grpc.WithTransportCredentials(c.creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wireCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("could not establish connection: %w", err)
	}
	c.connections[address] = conn

	return conn, nil
}

// closeAll closes all open connections.
func (c *connectionManager) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for address, conn := range c.connections {
		conn.Close()
		delete(c.connections, address)
	}
}

// transport is an implementation of the Transport interface on top of gRPC.
type transport struct {
	// The ID of the local node.
	id NodeID

	// Indicates whether the transport is started.
	running bool

	// The local network address.
	address net.Addr

	// The addresses of the other nodes in the cluster.
	peers map[NodeID]string

	// One ordered queue of outgoing envelopes per peer.
	queues map[NodeID]chan *envelope

	// The RPC server for raft.
	server *grpc.Server

	// The function that is called when a message is received.
	handler func(from NodeID, message Message)

	// Manages connections to other members of the cluster.
	connManager *connectionManager

	// Closed to stop the senders.
	stopCh chan struct{}

	logger Logger

	wg sync.WaitGroup

	mu sync.RWMutex
}

// NewTransport creates a new instance of Transport that can
// be used to deliver messages to peers and serve incoming messages
// at the provided address.
func NewTransport(id NodeID, address string, peers map[NodeID]string, opts ...TransportOption) (Transport, error) {
	resolvedAddress, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, errors.Wrap(err, "could not resolve tcp address %s", address)
	}

	t := &transport{
		id:          id,
		address:     resolvedAddress,
		peers:       make(map[NodeID]string, len(peers)),
		queues:      make(map[NodeID]chan *envelope, len(peers)),
		connManager: newConnectionManager(insecure.NewCredentials()),
		logger:      logging.Discard(),
	}
	for peer, peerAddress := range peers {
		if peer == id {
			continue
		}
		t.peers[peer] = peerAddress
		t.queues[peer] = make(chan *envelope, sendQueueSize)
	}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

func (t *transport) Run() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}

	listener, err := net.Listen(t.address.Network(), t.address.String())
	if err != nil {
		return errors.Wrap(err, "could not create listener")
	}
	t.address = listener.Addr()

	t.server = grpc.NewServer(grpc.ForceServerCodec(wireCodec{}))
	t.server.RegisterService(&outboxServiceDesc, t)
	go t.server.Serve(listener)

	t.stopCh = make(chan struct{})
	for peer, queue := range t.queues {
		t.wg.Add(1)
		go t.sendLoop(peer, t.peers[peer], queue)
	}
	t.running = true

	return nil
}

func (t *transport) Shutdown() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()

	t.wg.Wait()

	stopped := make(chan interface{})
	defer t.connManager.closeAll()

	go func() {
		t.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-time.After(shutdownGracePeriod):
		t.server.Stop()
		<-stopped
	case <-stopped:
	}

	return nil
}

func (t *transport) Deliver(to NodeID, message Message) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.running {
		return errors.Wrap(ErrTransportClosed, "could not deliver %v to %d", message, to)
	}

	queue, ok := t.queues[to]
	if !ok {
		return errors.Wrap(ErrUnknownPeer, "could not deliver %v to %d", message, to)
	}

	e := &envelope{id: uuid.New(), from: t.id, to: to, message: message}
	select {
	case queue <- e:
		return nil
	default:
		return errors.New("could not deliver %v to %d: send queue is full", message, to)
	}
}

func (t *transport) RegisterHandler(handler func(from NodeID, message Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

func (t *transport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.address.String()
}

// sendLoop delivers the envelopes queued for a single peer one at a time,
// preserving their order.
func (t *transport) sendLoop(peer NodeID, address string, queue chan *envelope) {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopCh:
			return
		case e := <-queue:
			if err := t.send(address, e); err != nil {
				t.logger.Debugf("transport %d failed to deliver %v (%s) to %d: %s",
					t.id, e.message, e.id, peer, err.Error())
			}
		}
	}
}

func (t *transport) send(address string, e *envelope) error {
	conn, err := t.connManager.getConnection(address)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	// Abort an in-flight delivery on shutdown.
	go func() {
		select {
		case <-t.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := conn.Invoke(ctx, deliverMethod, e, &delivered{}); err != nil {
		return fmt.Errorf("could not make Deliver RPC: %w", err)
	}
	return nil
}

// deliver handles the Deliver gRPC request. It hands the carried message to
// the registered handler.
func (t *transport) deliver(ctx context.Context, e *envelope) (*delivered, error) {
	if e.to != t.id {
		return nil, status.Errorf(codes.InvalidArgument, "envelope %s addressed to %d, not %d", e.id, e.to, t.id)
	}

	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()

	if handler == nil {
		return nil, status.Error(codes.Unavailable, "no handler registered")
	}

	t.logger.Debugf("transport %d received %v (%s) from %d", t.id, e.message, e.id, e.from)
	handler(e.from, e.message)

	return &delivered{}, nil
}
