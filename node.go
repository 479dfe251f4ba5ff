package raft

import (
	"errors"

	"github.com/jotaen/raft/internal/numeric"
	"golang.org/x/exp/slices"
)

// role is implemented by *Follower, *Candidate and *Leader.
type role interface {
	ID() NodeID
	Term() TermID
}

// Node holds the active role of a single cluster member, routes inbound
// messages to it and swaps roles when the protocol calls for it. A Node is
// not safe for concurrent use; the Server serializes all calls.
type Node struct {
	// The ID of this node.
	id NodeID

	// The other voting members of the cluster.
	peers []NodeID

	// Where replies and role-initiated messages are sent.
	outbox Outbox

	// The active role.
	role role

	// Where the term, leader and vote are persisted, nil if not durable.
	stateStorage StateStorage

	// The most recently persisted state.
	persisted    PersistentState
	hasPersisted bool

	// Accept AppendLog messages addressed to any node.
	anyReceiver bool

	logger Logger
}

// NewNode creates a node that starts as a follower. The initial leader, term
// and vote are taken from the state storage if it holds any, otherwise from
// WithBootstrapLeader, otherwise the node knows no leader at term zero.
func NewNode(id NodeID, peers []NodeID, outbox Outbox, opts ...Option) (*Node, error) {
	if id == None {
		return nil, errors.New("node ID must not be None")
	}
	if outbox == nil {
		return nil, errors.New("outbox must not be nil")
	}

	options, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}

	members := make([]NodeID, 0, len(peers))
	for _, peer := range peers {
		if peer == id || peer == None || slices.Contains(members, peer) {
			continue
		}
		members = append(members, peer)
	}

	n := &Node{
		id:           id,
		peers:        members,
		outbox:       outbox,
		stateStorage: options.stateStorage,
		anyReceiver:  options.anyReceiver,
		logger:       options.logger,
	}

	var restored bool
	if n.stateStorage != nil {
		state, ok, err := n.stateStorage.State()
		if err != nil {
			return nil, err
		}
		if ok {
			var vote *ballot
			if state.Voted {
				vote = &ballot{term: state.VotedTerm, candidate: state.VotedFor}
			}
			leader := state.LeaderID
			if leader == id {
				// A restarted leader has to win an election again.
				leader = None
			}
			n.role = newFollower(id, leader, state.Term, vote, n.followerOptions()...)
			n.persisted, n.hasPersisted = state, true
			restored = true
			n.logger.Infof("node %d restored state: term = %d, leader = %d", id, state.Term, leader)
		}
	}
	if !restored {
		n.role = NewFollower(id, options.bootstrapLeader, options.bootstrapTerm, n.followerOptions()...)
	}
	n.persist()

	return n, nil
}

func (n *Node) followerOptions() []FollowerOption {
	opts := []FollowerOption{WithFollowerLogger(n.logger)}
	if n.anyReceiver {
		opts = append(opts, AcceptAnyReceiver())
	}
	return opts
}

// ID returns the ID of this node.
func (n *Node) ID() NodeID {
	return n.id
}

// Peers returns the other voting members of the cluster.
func (n *Node) Peers() []NodeID {
	return slices.Clone(n.peers)
}

// State returns the state of the active role.
func (n *Node) State() State {
	switch n.role.(type) {
	case *Leader:
		return StateLeader
	case *Candidate:
		return StateCandidate
	default:
		return StateFollower
	}
}

// Status returns the ID, state, term and trusted leader of this node.
func (n *Node) Status() Status {
	status := Status{ID: n.id, State: n.State(), Term: n.role.Term()}
	switch r := n.role.(type) {
	case *Follower:
		status.LeaderID = r.LeaderID()
	case *Leader:
		status.LeaderID = n.id
	}
	return status
}

// Receive hands message, sent by from, to the active role. The reply, if
// any, is delivered to from and returned. The new term and vote are persisted
// before the reply is delivered.
func (n *Node) Receive(from NodeID, message Message) Message {
	reply := n.receive(message)
	n.persist()
	if reply != nil && from != None {
		if err := n.outbox.Deliver(from, reply); err != nil {
			n.logger.Warnf("node %d failed to deliver %v to %d: %s", n.id, reply, from, err.Error())
		}
	}
	return reply
}

func (n *Node) receive(message Message) Message {
	switch r := n.role.(type) {
	case *Follower:
		return r.Receive(message)

	case *Candidate:
		switch m := message.(type) {
		case AppendLog:
			if n.misaddressed(m) {
				return Reject{}
			}
			if m.Term == r.Term() {
				// Another node won the election for this term.
				n.stepDown(m.SenderID)
				return n.role.(*Follower).Receive(m)
			}
			if m.Term > r.Term() {
				n.stepDown(None)
				return n.role.(*Follower).Receive(m)
			}
		case RequestVote:
			if m.ProposedTerm > r.Term() {
				n.stepDown(None)
				return n.role.(*Follower).Receive(m)
			}
		}
		reply := r.Receive(message)
		if r.Won() {
			n.becomeLeader()
		}
		return reply

	case *Leader:
		if term, ok := messageTerm(message); ok && term > r.Term() {
			if n.misaddressed(message) {
				return Reject{}
			}
			n.stepDown(None)
			return n.role.(*Follower).Receive(message)
		}
		r.Receive(message)
		return nil
	}

	return nil
}

// misaddressed reports whether message is an AppendLog the follower role
// would reject for its receiver.
func (n *Node) misaddressed(message Message) bool {
	m, ok := message.(AppendLog)
	if !ok || n.anyReceiver || m.ReceiverID == n.id {
		return false
	}
	n.logger.Debugf("node %d rejecting %v: addressed to %d", n.id, m, m.ReceiverID)
	return true
}

// ElectionTimeout starts a new election unless this node is the leader.
// Followers campaign for the term after the latest one they know of,
// including the term they last voted in. The new term and the vote for
// itself are persisted before any RequestVote is sent.
func (n *Node) ElectionTimeout() {
	var term TermID
	switch r := n.role.(type) {
	case *Follower:
		term = r.Term()
		if votedTerm, _, voted := r.Vote(); voted {
			term = numeric.Max(term, votedTerm)
		}
	case *Candidate:
		term = r.Term()
	default:
		return
	}

	candidate := NewCandidate(n.id, term+1, n.peers, n.outbox)
	candidate.logger = n.logger
	n.role = candidate
	n.logger.Infof("node %d starting election for term %d", n.id, candidate.Term())
	n.persist()

	candidate.StartElection()
	if candidate.Won() {
		n.becomeLeader()
	}
}

// Heartbeat starts a new heartbeat round if this node is the leader.
func (n *Node) Heartbeat() {
	if leader, ok := n.role.(*Leader); ok {
		leader.TriggerHeartbeat()
	}
}

// Retry resends unanswered AppendLog or RequestVote messages.
func (n *Node) Retry() {
	switch r := n.role.(type) {
	case *Leader:
		r.TriggerRetries()
	case *Candidate:
		r.TriggerRetries()
	}
}

// Propose queues commands for replication. It fails with a NotLeaderError
// unless this node is the leader.
func (n *Node) Propose(commands ...Command) error {
	leader, ok := n.role.(*Leader)
	if !ok {
		return NotLeaderError{ServerID: n.id, KnownLeader: n.Status().LeaderID}
	}
	leader.Propose(commands...)
	return nil
}

// stepDown replaces a candidate or leader with a follower of leader for the
// current term, keeping the vote it cast for itself.
func (n *Node) stepDown(leader NodeID) {
	term := n.role.Term()
	n.logger.Infof("node %d stepping down as %s in term %d", n.id, n.State(), term)
	n.role = newFollower(n.id, leader, term, &ballot{term: term, candidate: n.id}, n.followerOptions()...)
}

func (n *Node) becomeLeader() {
	leader := NewLeader(n.id, n.role.Term(), n.peers, n.outbox)
	leader.logger = n.logger
	n.role = leader
	n.logger.Infof("node %d became leader for term %d", n.id, leader.Term())
	n.persist()
	leader.TriggerHeartbeat()
}

func (n *Node) currentState() PersistentState {
	switch r := n.role.(type) {
	case *Follower:
		state := PersistentState{Term: r.Term(), LeaderID: r.LeaderID()}
		state.VotedTerm, state.VotedFor, state.Voted = r.Vote()
		return state
	default:
		// Candidates and leaders have voted for themselves in their term.
		leader := None
		if _, ok := r.(*Leader); ok {
			leader = n.id
		}
		return PersistentState{
			Term:      r.Term(),
			LeaderID:  leader,
			VotedTerm: r.Term(),
			VotedFor:  n.id,
			Voted:     true,
		}
	}
}

// persist writes the term, leader and vote to the state storage if they
// changed since the last write.
func (n *Node) persist() {
	if n.stateStorage == nil {
		return
	}
	state := n.currentState()
	if n.hasPersisted && state == n.persisted {
		return
	}
	if err := n.stateStorage.SetState(state); err != nil {
		n.logger.Errorf("node %d failed to persist state: %s", n.id, err.Error())
		return
	}
	n.persisted, n.hasPersisted = state, true
}
