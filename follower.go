package raft

import "github.com/jotaen/raft/logging"

// ballot records a vote cast by a node: the term and the candidate.
type ballot struct {
	term      TermID
	candidate NodeID
}

// FollowerOption configures a Follower.
type FollowerOption func(f *Follower)

// WithFollowerLogger sets the logger used by a follower.
func WithFollowerLogger(logger Logger) FollowerOption {
	return func(f *Follower) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// AcceptAnyReceiver disables the check that an AppendLog is addressed to the
// follower, allowing broadcast-style delivery.
func AcceptAnyReceiver() FollowerOption {
	return func(f *Follower) {
		f.anyReceiver = true
	}
}

// Follower accepts commands from a trusted leader and takes part in votes.
// It answers every message with exactly one message and never fails.
type Follower struct {
	// The ID of this node.
	id NodeID

	// The leader this follower currently trusts, None if unknown.
	leaderID NodeID

	// The latest term this follower has adopted.
	term TermID

	// The highest term this follower voted in and for whom, nil if it
	// never voted.
	vote *ballot

	// Accept AppendLog messages addressed to any node.
	anyReceiver bool

	logger Logger
}

// NewFollower creates a follower that trusts leaderID for term. Unless the
// leader is None, the follower starts with a vote for that leader in that term.
func NewFollower(id NodeID, leaderID NodeID, term TermID, opts ...FollowerOption) *Follower {
	var vote *ballot
	if leaderID != None {
		vote = &ballot{term: term, candidate: leaderID}
	}
	return newFollower(id, leaderID, term, vote, opts...)
}

func newFollower(id NodeID, leaderID NodeID, term TermID, vote *ballot, opts ...FollowerOption) *Follower {
	f := &Follower{
		id:       id,
		leaderID: leaderID,
		term:     term,
		vote:     vote,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ID returns the ID of this follower.
func (f *Follower) ID() NodeID {
	return f.id
}

// LeaderID returns the leader this follower trusts.
func (f *Follower) LeaderID() NodeID {
	return f.leaderID
}

// Term returns the current term of this follower.
func (f *Follower) Term() TermID {
	return f.term
}

// Vote returns the highest term this follower voted in and the candidate
// that received the vote. The last value is false if it never voted.
func (f *Follower) Vote() (TermID, NodeID, bool) {
	if f.vote == nil {
		return 0, None, false
	}
	return f.vote.term, f.vote.candidate, true
}

// Receive processes a single message and returns the response.
func (f *Follower) Receive(message Message) Message {
	switch m := message.(type) {
	case AppendLog:
		return f.appendLog(m)
	case RequestVote:
		return f.requestVote(m)
	default:
		f.logger.Debugf("follower %d rejecting unexpected message: %v", f.id, message)
		return Reject{}
	}
}

func (f *Follower) appendLog(m AppendLog) Message {
	if !f.anyReceiver && m.ReceiverID != f.id {
		f.logger.Debugf("follower %d rejecting %v: addressed to %d", f.id, m, m.ReceiverID)
		return Reject{}
	}

	if m.SenderID == f.leaderID && m.Term == f.term {
		return Acknowledge{SenderID: f.id}
	}

	if m.Term > f.term {
		// The commands of this batch are dropped; the leader resends them
		// when it receives the RequestLog.
		f.logger.Debugf("follower %d adopting leader %d for term %d (was leader %d, term %d)",
			f.id, m.SenderID, m.Term, f.leaderID, f.term)
		f.leaderID = m.SenderID
		f.term = m.Term
		return RequestLog{SenderID: f.id}
	}

	f.logger.Debugf("follower %d rejecting %v: leader = %d, term = %d", f.id, m, f.leaderID, f.term)
	return Reject{}
}

func (f *Follower) requestVote(m RequestVote) Message {
	if m.ProposedTerm < f.term {
		f.logger.Debugf("follower %d refusing vote to %d: stale term %d < %d",
			f.id, m.SenderID, m.ProposedTerm, f.term)
		return VoteNo{SenderID: f.id}
	}

	switch {
	case f.vote == nil || m.ProposedTerm > f.vote.term:
		f.vote = &ballot{term: m.ProposedTerm, candidate: m.SenderID}
		f.logger.Debugf("follower %d voting for %d in term %d", f.id, m.SenderID, m.ProposedTerm)
		return VoteYes{SenderID: f.id}
	case m.ProposedTerm == f.vote.term && m.SenderID == f.vote.candidate:
		return VoteYes{SenderID: f.id}
	default:
		// Either another candidate for the decided term, or a term older
		// than the last vote, for which no memory is kept.
		f.logger.Debugf("follower %d refusing vote to %d for term %d: voted for %d in term %d",
			f.id, m.SenderID, m.ProposedTerm, f.vote.candidate, f.vote.term)
		return VoteNo{SenderID: f.id}
	}
}
