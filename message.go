package raft

import (
	"bytes"
	"fmt"

	"golang.org/x/exp/slices"
)

// NodeID identifies a member of the cluster. Identifiers are assigned outside
// of this package and are assumed to be unique.
type NodeID uint32

// None is the reserved NodeID meaning "no node", e.g. a follower that does
// not know its leader.
const None NodeID = 0

// TermID is a logical epoch during which at most one leader is recognized.
type TermID uint64

// Command is an opaque entry replicated from the leader to its followers.
type Command []byte

// MessageType identifies the variant of a Message.
type MessageType uint8

const (
	AppendLogType MessageType = iota + 1
	AcknowledgeType
	RejectType
	RequestLogType
	RequestVoteType
	VoteYesType
	VoteNoType
	HeartbeatType
)

func (t MessageType) String() string {
	switch t {
	case AppendLogType:
		return "AppendLog"
	case AcknowledgeType:
		return "Acknowledge"
	case RejectType:
		return "Reject"
	case RequestLogType:
		return "RequestLog"
	case RequestVoteType:
		return "RequestVote"
	case VoteYesType:
		return "VoteYes"
	case VoteNoType:
		return "VoteNo"
	case HeartbeatType:
		return "Heartbeat"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// Message is the closed set of values exchanged between nodes. The variants
// are the value types AppendLog, Acknowledge, Reject, RequestLog,
// RequestVote, VoteYes, VoteNo and Heartbeat.
type Message interface {
	Type() MessageType

	fmt.Stringer

	isMessage()
}

// AppendLog instructs a follower to replicate a batch of commands for a term.
type AppendLog struct {
	SenderID   NodeID
	Term       TermID
	ReceiverID NodeID
	Commands   []Command
}

// Acknowledge confirms that a follower accepted an AppendLog.
type Acknowledge struct {
	SenderID NodeID
}

// Reject is the generic negative response.
type Reject struct{}

// RequestLog asks the leader to resend, emitted by a follower that is behind.
type RequestLog struct {
	SenderID NodeID
}

// RequestVote solicits a vote for the term a candidate wishes to start.
type RequestVote struct {
	SenderID     NodeID
	ProposedTerm TermID
}

// VoteYes grants a vote.
type VoteYes struct {
	SenderID NodeID
}

// VoteNo refuses a vote.
type VoteNo struct {
	SenderID NodeID
}

// Heartbeat is a liveness signal carrying no identifying fields.
type Heartbeat struct{}

func (AppendLog) Type() MessageType   { return AppendLogType }
func (Acknowledge) Type() MessageType { return AcknowledgeType }
func (Reject) Type() MessageType      { return RejectType }
func (RequestLog) Type() MessageType  { return RequestLogType }
func (RequestVote) Type() MessageType { return RequestVoteType }
func (VoteYes) Type() MessageType     { return VoteYesType }
func (VoteNo) Type() MessageType      { return VoteNoType }
func (Heartbeat) Type() MessageType   { return HeartbeatType }

func (AppendLog) isMessage()   {}
func (Acknowledge) isMessage() {}
func (Reject) isMessage()      {}
func (RequestLog) isMessage()  {}
func (RequestVote) isMessage() {}
func (VoteYes) isMessage()     {}
func (VoteNo) isMessage()      {}
func (Heartbeat) isMessage()   {}

func (m AppendLog) String() string {
	return fmt.Sprintf("AppendLog{sender: %d, term: %d, receiver: %d, %d commands}",
		m.SenderID, m.Term, m.ReceiverID, len(m.Commands))
}

func (m Acknowledge) String() string {
	return fmt.Sprintf("Acknowledge{sender: %d}", m.SenderID)
}

func (Reject) String() string {
	return "Reject{}"
}

func (m RequestLog) String() string {
	return fmt.Sprintf("RequestLog{sender: %d}", m.SenderID)
}

func (m RequestVote) String() string {
	return fmt.Sprintf("RequestVote{sender: %d, proposedTerm: %d}", m.SenderID, m.ProposedTerm)
}

func (m VoteYes) String() string {
	return fmt.Sprintf("VoteYes{sender: %d}", m.SenderID)
}

func (m VoteNo) String() string {
	return fmt.Sprintf("VoteNo{sender: %d}", m.SenderID)
}

func (Heartbeat) String() string {
	return "Heartbeat{}"
}

// Equal reports whether two messages are structurally equal. Unlike ==, it is
// safe to use on AppendLog values, whose command batch is a slice. A nil
// command batch equals an empty one.
func Equal(a, b Message) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	x, ok := a.(AppendLog)
	if !ok {
		if _, ok := b.(AppendLog); ok {
			return false
		}
		return a == b
	}
	y, ok := b.(AppendLog)
	if !ok {
		return false
	}
	return x.SenderID == y.SenderID &&
		x.Term == y.Term &&
		x.ReceiverID == y.ReceiverID &&
		slices.EqualFunc(x.Commands, y.Commands, func(c, d Command) bool {
			return bytes.Equal(c, d)
		})
}

// messageTerm returns the term carried by a message, if it carries one.
func messageTerm(message Message) (TermID, bool) {
	switch m := message.(type) {
	case AppendLog:
		return m.Term, true
	case RequestVote:
		return m.ProposedTerm, true
	default:
		return 0, false
	}
}
