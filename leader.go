package raft

import (
	"github.com/jotaen/raft/logging"
	"golang.org/x/exp/slices"
)

// Leader broadcasts AppendLog messages to its followers and tracks which of
// them still owe an acknowledgment for the current round.
type Leader struct {
	// The ID of this node.
	id NodeID

	// The term this node leads.
	term TermID

	// The followers in insertion order.
	followers []NodeID

	// Followers sent an AppendLog this round that have not acknowledged it,
	// in the order they were added. Always a subset of followers.
	expectedAcks []NodeID

	// The commands carried by every AppendLog of the current round.
	batch []Command

	// Commands proposed since the last heartbeat.
	proposed []Command

	outbox Outbox

	logger Logger
}

// NewLeader creates a leader for term. Duplicate followers and the leader's
// own ID are dropped; the remaining order is kept.
func NewLeader(id NodeID, term TermID, followers []NodeID, outbox Outbox) *Leader {
	members := make([]NodeID, 0, len(followers))
	for _, follower := range followers {
		if follower == id || slices.Contains(members, follower) {
			continue
		}
		members = append(members, follower)
	}
	return &Leader{
		id:        id,
		term:      term,
		followers: members,
		outbox:    outbox,
		logger:    logging.Discard(),
	}
}

// ID returns the ID of this leader.
func (l *Leader) ID() NodeID {
	return l.id
}

// Term returns the term of this leader.
func (l *Leader) Term() TermID {
	return l.term
}

// Followers returns the followers of this leader.
func (l *Leader) Followers() []NodeID {
	return slices.Clone(l.followers)
}

// ExpectedAcks returns the followers that have not acknowledged the current
// round, in the order they were sent to.
func (l *Leader) ExpectedAcks() []NodeID {
	return slices.Clone(l.expectedAcks)
}

// Propose queues commands for the next heartbeat round.
func (l *Leader) Propose(commands ...Command) {
	l.proposed = append(l.proposed, commands...)
}

// Receive processes a single message. Only Acknowledge and RequestLog have
// an effect; every other message is ignored.
func (l *Leader) Receive(message Message) {
	switch m := message.(type) {
	case Acknowledge:
		if i := slices.Index(l.expectedAcks, m.SenderID); i >= 0 {
			l.expectedAcks = slices.Delete(l.expectedAcks, i, i+1)
			l.logger.Debugf("leader %d received acknowledgment from %d, %d pending",
				l.id, m.SenderID, len(l.expectedAcks))
		}
	case RequestLog:
		if !slices.Contains(l.followers, m.SenderID) {
			l.logger.Debugf("leader %d ignoring %v from unknown follower", l.id, m)
			return
		}
		l.expect(m.SenderID)
		l.send(m.SenderID)
	default:
		l.logger.Debugf("leader %d ignoring message: %v", l.id, message)
	}
}

// TriggerHeartbeat starts a new round: the proposed commands become the
// round's batch and every follower is sent an AppendLog and awaited.
func (l *Leader) TriggerHeartbeat() {
	l.batch = l.proposed
	l.proposed = nil
	l.expectedAcks = l.expectedAcks[:0]

	for _, follower := range l.followers {
		l.expectedAcks = append(l.expectedAcks, follower)
		l.send(follower)
	}
}

// TriggerRetries resends the current round's AppendLog to every follower
// that has not acknowledged it yet.
func (l *Leader) TriggerRetries() {
	for _, follower := range l.ExpectedAcks() {
		l.send(follower)
	}
}

func (l *Leader) expect(follower NodeID) {
	if !slices.Contains(l.expectedAcks, follower) {
		l.expectedAcks = append(l.expectedAcks, follower)
	}
}

func (l *Leader) send(follower NodeID) {
	message := AppendLog{SenderID: l.id, Term: l.term, ReceiverID: follower, Commands: l.batch}
	if err := l.outbox.Deliver(follower, message); err != nil {
		// The follower stays pending, the next retry sends again.
		l.logger.Warnf("leader %d failed to deliver %v: %s", l.id, message, err.Error())
	}
}
