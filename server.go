package raft

import (
	"fmt"
	"sync"
	"time"

	"github.com/jotaen/raft/internal/errors"
	"github.com/jotaen/raft/logging"
	"golang.org/x/exp/slices"
)

// The number of received messages buffered before the transport is made to wait.
const inboundQueueSize = 256

type inbound struct {
	from    NodeID
	message Message
}

// Server runs a Node: it feeds it the messages received by a transport and
// drives its heartbeats, retries and elections from timers.
type Server struct {
	// The ID of the node run by this server.
	id NodeID

	node *Node

	transport Transport

	stateStorage StateStorage

	options options

	// Expires when the node has not heard from a leader or granted a vote for
	// an election timeout.
	lease *lease

	// Messages received by the transport, consumed by the run loop.
	inboundCh chan inbound

	// Closed to stop the run loop.
	stopCh chan struct{}

	started bool
	stopped bool

	wg sync.WaitGroup

	mu sync.Mutex
}

// NewServer creates a new server for the node with the provided ID. The
// peers map the ID of every member of the cluster, including this one, to
// its network address. Unless WithTransport is provided, a gRPC transport
// listening on the address of this node is used.
func NewServer(id NodeID, peers map[NodeID]string, opts ...Option) (*Server, error) {
	options, err := newOptions(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create new server")
	}
	if options.heartbeatInterval >= options.electionTimeout {
		return nil, errors.New("failed to create new server: heartbeat interval %v must be less than election timeout %v",
			options.heartbeatInterval, options.electionTimeout)
	}

	if logger, ok := options.logger.(*logging.Logger); ok {
		options.logger = logger.Named(fmt.Sprintf("node=%d", id))
	}

	transport := options.transport
	if transport == nil {
		address, ok := peers[id]
		if !ok {
			return nil, errors.New("failed to create new server: no address for node %d", id)
		}
		transport, err = NewTransport(id, address, peers, WithTransportLogger(options.logger))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create new server")
		}
	}

	ids := make([]NodeID, 0, len(peers))
	for peer := range peers {
		if peer != id {
			ids = append(ids, peer)
		}
	}
	slices.Sort(ids)

	nodeOpts := append(slices.Clone(opts), WithLogger(options.logger))
	node, err := NewNode(id, ids, transport, nodeOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create new server")
	}

	return &Server{
		id:           id,
		node:         node,
		transport:    transport,
		stateStorage: options.stateStorage,
		options:      options,
		inboundCh:    make(chan inbound, inboundQueueSize),
		stopCh:       make(chan struct{}),
	}, nil
}

// Start starts serving incoming messages and running the node. A stopped
// server cannot be started again.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.New("failed to start server %d: server is stopped", s.id)
	}
	if s.started {
		return nil
	}

	s.transport.RegisterHandler(s.handle)
	if err := s.transport.Run(); err != nil {
		return errors.Wrap(err, "failed to start server %d", s.id)
	}

	s.lease = newLease(s.options.electionTimeout)
	if len(s.node.Peers()) == 0 {
		// No leader can be heard from.
		s.lease.expire()
	}
	s.started = true

	s.wg.Add(1)
	go s.run()

	s.options.logger.Infof("server %d started at %s", s.id, s.transport.Address())

	return nil
}

// Stop stops the server, its transport and its state storage. The state
// storage is closed even if the server was never started.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	if started {
		close(s.stopCh)
	}
	s.mu.Unlock()

	if started {
		s.wg.Wait()
		if err := s.transport.Shutdown(); err != nil {
			s.options.logger.Errorf("server %d failed to shut down transport: %s", s.id, err.Error())
		}
	}
	if s.stateStorage != nil {
		if err := s.stateStorage.Close(); err != nil {
			s.options.logger.Errorf("server %d failed to close state storage: %s", s.id, err.Error())
		}
	}

	s.options.logger.Infof("server %d stopped", s.id)
}

// Status returns the status of the node run by this server.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.node.Status()
	if s.stopped {
		status.State = StateStopped
	}
	return status
}

// Address returns the local network address of the server.
func (s *Server) Address() string {
	return s.transport.Address()
}

// Propose queues commands for the next heartbeat round. It fails with a
// NotLeaderError unless the node is the leader.
func (s *Server) Propose(commands ...Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return errors.New("failed to propose commands: server %d is not running", s.id)
	}
	return s.node.Propose(commands...)
}

// handle is called by the transport for every received message.
func (s *Server) handle(from NodeID, message Message) {
	select {
	case s.inboundCh <- inbound{from: from, message: message}:
	case <-s.stopCh:
	}
}

func (s *Server) run() {
	defer s.wg.Done()

	heartbeat := time.NewTicker(s.options.heartbeatInterval)
	defer heartbeat.Stop()
	retry := time.NewTicker(s.options.retryInterval)
	defer retry.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case in := <-s.inboundCh:
			s.receive(in)
		case <-heartbeat.C:
			s.tick()
		case <-retry.C:
			s.mu.Lock()
			s.node.Retry()
			s.mu.Unlock()
		}
	}
}

func (s *Server) receive(in inbound) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.node.Receive(in.from, in.message).(type) {
	case Acknowledge, RequestLog, VoteYes:
		// The node heard from its leader or granted a vote.
		s.lease.renew()
	}
}

// tick starts a heartbeat round on a leader, and an election on any other
// node whose lease expired.
func (s *Server) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.node.State() == StateLeader {
		s.node.Heartbeat()
		return
	}
	if s.lease.isValid() {
		return
	}

	s.node.ElectionTimeout()
	s.lease.renew()
}

func (s *Server) String() string {
	return fmt.Sprintf("Server{id: %d, address: %s}", s.id, s.transport.Address())
}
