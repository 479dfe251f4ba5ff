package raft

import (
	"github.com/jotaen/raft/internal/numeric"
	"github.com/jotaen/raft/logging"
	"golang.org/x/exp/slices"
)

// Candidate solicits votes for a new term. It has implicitly voted for
// itself in that term.
type Candidate struct {
	// The ID of this node.
	id NodeID

	// The term this candidate is campaigning for.
	term TermID

	// The other voting members in insertion order.
	peers []NodeID

	// The latest answer of each peer that answered: true for VoteYes.
	votes map[NodeID]bool

	outbox Outbox

	logger Logger
}

// NewCandidate creates a candidate for term. Duplicate peers and the
// candidate's own ID are dropped.
func NewCandidate(id NodeID, term TermID, peers []NodeID, outbox Outbox) *Candidate {
	members := make([]NodeID, 0, len(peers))
	for _, peer := range peers {
		if peer == id || slices.Contains(members, peer) {
			continue
		}
		members = append(members, peer)
	}
	return &Candidate{
		id:     id,
		term:   term,
		peers:  members,
		votes:  make(map[NodeID]bool, len(members)),
		outbox: outbox,
		logger: logging.Discard(),
	}
}

// ID returns the ID of this candidate.
func (c *Candidate) ID() NodeID {
	return c.id
}

// Term returns the term this candidate is campaigning for.
func (c *Candidate) Term() TermID {
	return c.term
}

// Granted returns the number of votes received, including its own.
func (c *Candidate) Granted() int {
	granted := 1
	for _, yes := range c.votes {
		if yes {
			granted++
		}
	}
	return granted
}

// Won reports whether a strict majority of the cluster voted for this
// candidate.
//
// VoteYes and VoteNo carry no term, so a vote sent for an earlier election
// of this node and delivered late is counted as a vote in this one.
func (c *Candidate) Won() bool {
	return c.Granted() >= numeric.Majority(len(c.peers)+1)
}

// StartElection sends a RequestVote to every peer.
func (c *Candidate) StartElection() {
	c.logger.Debugf("candidate %d starting election for term %d", c.id, c.term)
	for _, peer := range c.peers {
		c.send(peer)
	}
}

// TriggerRetries resends the RequestVote to every peer that has not answered.
func (c *Candidate) TriggerRetries() {
	for _, peer := range c.peers {
		if _, answered := c.votes[peer]; !answered {
			c.send(peer)
		}
	}
}

// Receive processes a single message and returns the response, or nil if
// the message does not call for one.
func (c *Candidate) Receive(message Message) Message {
	switch m := message.(type) {
	case VoteYes:
		c.record(m.SenderID, true)
	case VoteNo:
		c.record(m.SenderID, false)
	case RequestVote:
		if m.ProposedTerm <= c.term {
			c.logger.Debugf("candidate %d refusing vote to %d for term %d", c.id, m.SenderID, m.ProposedTerm)
			return VoteNo{SenderID: c.id}
		}
	case AppendLog:
		if m.Term < c.term {
			return Reject{}
		}
	}
	return nil
}

func (c *Candidate) record(peer NodeID, granted bool) {
	if !slices.Contains(c.peers, peer) {
		c.logger.Debugf("candidate %d ignoring vote from unknown node %d", c.id, peer)
		return
	}
	c.votes[peer] = granted
	c.logger.Debugf("candidate %d has %d of %d votes for term %d",
		c.id, c.Granted(), len(c.peers)+1, c.term)
}

func (c *Candidate) send(peer NodeID) {
	message := RequestVote{SenderID: c.id, ProposedTerm: c.term}
	if err := c.outbox.Deliver(peer, message); err != nil {
		c.logger.Warnf("candidate %d failed to deliver %v: %s", c.id, message, err.Error())
	}
}
