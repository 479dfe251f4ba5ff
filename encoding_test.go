package raft

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestMessageEncoderDecoder(t *testing.T) {
	messages := []Message{
		AppendLog{SenderID: 1, Term: 15, ReceiverID: 2, Commands: []Command{Command("a"), Command{}, Command("bc")}},
		AppendLog{SenderID: 1, Term: 3, ReceiverID: 2},
		Acknowledge{SenderID: 4},
		Reject{},
		RequestLog{SenderID: 5},
		RequestVote{SenderID: 6, ProposedTerm: 7812635},
		VoteYes{SenderID: 7},
		VoteNo{SenderID: 8},
		Heartbeat{},
	}

	for _, message := range messages {
		data, err := encodeMessage(message)
		require.NoError(t, err)

		decoded, err := decodeMessage(data)
		require.NoError(t, err)
		require.True(t, Equal(message, decoded), "expected %v, got %v", message, decoded)
	}
}

func TestEncodeNilMessage(t *testing.T) {
	_, err := encodeMessage(nil)
	require.Error(t, err)
}

func TestDecodeUnknownMessageType(t *testing.T) {
	data := protowire.AppendTag(nil, messageTypeField, protowire.VarintType)
	data = protowire.AppendVarint(data, 42)

	_, err := decodeMessage(data)
	require.Error(t, err)

	_, err = decodeMessage(nil)
	require.Error(t, err)
}

func TestDecodeTruncatedMessage(t *testing.T) {
	data, err := encodeMessage(AppendLog{SenderID: 1, Term: 2, ReceiverID: 3, Commands: []Command{Command("command")}})
	require.NoError(t, err)

	_, err = decodeMessage(data[:len(data)-2])
	require.Error(t, err)
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	data, err := encodeMessage(VoteYes{SenderID: 3})
	require.NoError(t, err)
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("ignored"))

	decoded, err := decodeMessage(data)
	require.NoError(t, err)
	require.Equal(t, VoteYes{SenderID: 3}, decoded)
}

func TestEnvelopeEncoderDecoder(t *testing.T) {
	e := &envelope{
		id:      uuid.New(),
		from:    1,
		to:      2,
		message: AppendLog{SenderID: 1, Term: 2, ReceiverID: 2, Commands: []Command{Command("x")}},
	}

	data, err := encodeEnvelope(e)
	require.NoError(t, err)

	decoded, err := decodeEnvelope(data)
	require.NoError(t, err)
	require.Equal(t, e.id, decoded.id)
	require.Equal(t, e.from, decoded.from)
	require.Equal(t, e.to, decoded.to)
	require.True(t, Equal(e.message, decoded.message))
}

func TestDecodeEnvelopeWithoutMessage(t *testing.T) {
	id := uuid.New()
	data := protowire.AppendTag(nil, envelopeIDField, protowire.BytesType)
	data = protowire.AppendBytes(data, id[:])

	_, err := decodeEnvelope(data)
	require.Error(t, err)
}

func TestDecodeEnvelopeInvalidID(t *testing.T) {
	data := protowire.AppendTag(nil, envelopeIDField, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("short"))

	_, err := decodeEnvelope(data)
	require.Error(t, err)
}

func TestStateEncoderDecoder(t *testing.T) {
	states := []PersistentState{
		{},
		{Term: 1, LeaderID: 2},
		{Term: 9, VotedTerm: 9, VotedFor: 3, Voted: true},
		{Term: 0, VotedTerm: 0, VotedFor: 5, Voted: true},
	}

	for _, state := range states {
		decoded, err := decodePersistentState(encodePersistentState(state))
		require.NoError(t, err)
		require.Equal(t, state, decoded)
	}
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// TestDecodeOutOfRangeFields checks that values too wide for their field are
// rejected rather than truncated.
func TestDecodeOutOfRangeFields(t *testing.T) {
	// 256 + VoteYesType would truncate to VoteYesType.
	data := appendVarint(nil, messageTypeField, 256+uint64(VoteYesType))
	data = appendVarint(data, messageSenderField, 7)
	_, err := decodeMessage(data)
	require.Error(t, err)

	data = appendVarint(nil, messageTypeField, uint64(VoteYesType))
	data = appendVarint(data, messageSenderField, 1<<32+7)
	_, err = decodeMessage(data)
	require.Error(t, err)

	data = appendVarint(nil, messageTypeField, uint64(AppendLogType))
	data = appendVarint(data, messageReceiverField, 1<<32+1)
	_, err = decodeMessage(data)
	require.Error(t, err)

	// The largest node ID is accepted.
	data = appendVarint(nil, messageTypeField, uint64(VoteYesType))
	data = appendVarint(data, messageSenderField, 1<<32-1)
	decoded, err := decodeMessage(data)
	require.NoError(t, err)
	require.Equal(t, VoteYes{SenderID: 1<<32 - 1}, decoded)
}

func TestDecodeEnvelopeOutOfRangeNode(t *testing.T) {
	e := &envelope{id: uuid.New(), from: 1, to: 2, message: Heartbeat{}}
	data, err := encodeEnvelope(e)
	require.NoError(t, err)

	_, err = decodeEnvelope(appendVarint(data, envelopeFromField, 1<<32+1))
	require.Error(t, err)
	_, err = decodeEnvelope(appendVarint(data, envelopeToField, 1<<32+2))
	require.Error(t, err)
}

func TestDecodeStateOutOfRangeNode(t *testing.T) {
	data := encodePersistentState(PersistentState{Term: 3})

	_, err := decodePersistentState(appendVarint(data, stateLeaderField, 1<<32+2))
	require.Error(t, err)
	_, err = decodePersistentState(appendVarint(data, stateVotedForField, 1<<32+3))
	require.Error(t, err)
}
