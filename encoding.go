package raft

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the protobuf wire records. The layouts are:
//
//	message Message  { uint32 type = 1; uint32 sender = 2; uint64 term = 3; uint32 receiver = 4; repeated bytes commands = 5; }
//	message Envelope { bytes id = 1; uint32 from = 2; uint32 to = 3; Message message = 4; }
//	message State    { uint64 term = 1; uint32 leader = 2; bool voted = 3; uint64 voted_term = 4; uint32 voted_for = 5; }
const (
	messageTypeField     protowire.Number = 1
	messageSenderField   protowire.Number = 2
	messageTermField     protowire.Number = 3
	messageReceiverField protowire.Number = 4
	messageCommandsField protowire.Number = 5

	envelopeIDField      protowire.Number = 1
	envelopeFromField    protowire.Number = 2
	envelopeToField      protowire.Number = 3
	envelopeMessageField protowire.Number = 4

	stateTermField      protowire.Number = 1
	stateLeaderField    protowire.Number = 2
	stateVotedField     protowire.Number = 3
	stateVotedTermField protowire.Number = 4
	stateVotedForField  protowire.Number = 5
)

// envelope is the unit carried by a transport: a message and its routing.
type envelope struct {
	// Unique per delivery, used to trace a message across nodes.
	id uuid.UUID

	from NodeID
	to   NodeID

	message Message
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// decodeNodeID narrows a varint to a NodeID, rejecting values that do not fit.
func decodeNodeID(v uint64) (NodeID, error) {
	if v > math.MaxUint32 {
		return None, fmt.Errorf("node ID %d out of range", v)
	}
	return NodeID(v), nil
}

// encodeMessage encodes a message as a protobuf record.
func encodeMessage(message Message) ([]byte, error) {
	if message == nil {
		return nil, fmt.Errorf("cannot encode nil message")
	}

	var sender NodeID
	var term TermID
	var receiver NodeID
	var commands []Command

	switch m := message.(type) {
	case AppendLog:
		sender, term, receiver, commands = m.SenderID, m.Term, m.ReceiverID, m.Commands
	case Acknowledge:
		sender = m.SenderID
	case Reject:
	case RequestLog:
		sender = m.SenderID
	case RequestVote:
		sender, term = m.SenderID, m.ProposedTerm
	case VoteYes:
		sender = m.SenderID
	case VoteNo:
		sender = m.SenderID
	case Heartbeat:
	default:
		return nil, fmt.Errorf("cannot encode message of type %T", message)
	}

	b := appendVarintField(nil, messageTypeField, uint64(message.Type()))
	b = appendVarintField(b, messageSenderField, uint64(sender))
	b = appendVarintField(b, messageTermField, uint64(term))
	b = appendVarintField(b, messageReceiverField, uint64(receiver))
	for _, command := range commands {
		b = appendBytesField(b, messageCommandsField, command)
	}
	return b, nil
}

// decodeMessage decodes a record produced by encodeMessage. Records with an
// unknown type or malformed fields are rejected.
func decodeMessage(b []byte) (Message, error) {
	var messageType MessageType
	var sender, receiver NodeID
	var term TermID
	var commands []Command

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == messageCommandsField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			commands = append(commands, append(Command{}, v...))
			b = b[n:]
		case typ == protowire.VarintType && num >= messageTypeField && num <= messageReceiverField:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			var err error
			switch num {
			case messageTypeField:
				if v > math.MaxUint8 {
					return nil, fmt.Errorf("unknown message type %d", v)
				}
				messageType = MessageType(v)
			case messageSenderField:
				sender, err = decodeNodeID(v)
			case messageTermField:
				term = TermID(v)
			case messageReceiverField:
				receiver, err = decodeNodeID(v)
			}
			if err != nil {
				return nil, err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}

	switch messageType {
	case AppendLogType:
		return AppendLog{SenderID: sender, Term: term, ReceiverID: receiver, Commands: commands}, nil
	case AcknowledgeType:
		return Acknowledge{SenderID: sender}, nil
	case RejectType:
		return Reject{}, nil
	case RequestLogType:
		return RequestLog{SenderID: sender}, nil
	case RequestVoteType:
		return RequestVote{SenderID: sender, ProposedTerm: term}, nil
	case VoteYesType:
		return VoteYes{SenderID: sender}, nil
	case VoteNoType:
		return VoteNo{SenderID: sender}, nil
	case HeartbeatType:
		return Heartbeat{}, nil
	default:
		return nil, fmt.Errorf("unknown message type %d", uint8(messageType))
	}
}

// encodeEnvelope encodes an envelope and the message it carries.
func encodeEnvelope(e *envelope) ([]byte, error) {
	message, err := encodeMessage(e.message)
	if err != nil {
		return nil, err
	}
	b := appendBytesField(nil, envelopeIDField, e.id[:])
	b = appendVarintField(b, envelopeFromField, uint64(e.from))
	b = appendVarintField(b, envelopeToField, uint64(e.to))
	b = appendBytesField(b, envelopeMessageField, message)
	return b, nil
}

// decodeEnvelope decodes a record produced by encodeEnvelope.
func decodeEnvelope(b []byte) (*envelope, error) {
	e := &envelope{}
	var message []byte

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == envelopeIDField || num == envelopeMessageField):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			if num == envelopeIDField {
				id, err := uuid.FromBytes(v)
				if err != nil {
					return nil, fmt.Errorf("invalid envelope id: %w", err)
				}
				e.id = id
			} else {
				message = v
			}
			b = b[n:]
		case typ == protowire.VarintType && (num == envelopeFromField || num == envelopeToField):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			id, err := decodeNodeID(v)
			if err != nil {
				return nil, err
			}
			if num == envelopeFromField {
				e.from = id
			} else {
				e.to = id
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}

	if message == nil {
		return nil, fmt.Errorf("envelope does not carry a message")
	}
	decoded, err := decodeMessage(message)
	if err != nil {
		return nil, err
	}
	e.message = decoded

	return e, nil
}

// encodePersistentState encodes the state a node persists.
func encodePersistentState(state PersistentState) []byte {
	b := appendVarintField(nil, stateTermField, uint64(state.Term))
	b = appendVarintField(b, stateLeaderField, uint64(state.LeaderID))
	if state.Voted {
		b = protowire.AppendTag(b, stateVotedField, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	b = appendVarintField(b, stateVotedTermField, uint64(state.VotedTerm))
	b = appendVarintField(b, stateVotedForField, uint64(state.VotedFor))
	return b
}

// decodePersistentState decodes a record produced by encodePersistentState.
func decodePersistentState(b []byte) (PersistentState, error) {
	var state PersistentState

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return PersistentState{}, protowire.ParseError(n)
		}
		b = b[n:]

		if typ != protowire.VarintType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return PersistentState{}, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return PersistentState{}, protowire.ParseError(n)
		}
		b = b[n:]

		var err error
		switch num {
		case stateTermField:
			state.Term = TermID(v)
		case stateLeaderField:
			state.LeaderID, err = decodeNodeID(v)
		case stateVotedField:
			state.Voted = protowire.DecodeBool(v)
		case stateVotedTermField:
			state.VotedTerm = TermID(v)
		case stateVotedForField:
			state.VotedFor, err = decodeNodeID(v)
		}
		if err != nil {
			return PersistentState{}, err
		}
	}

	return state, nil
}
