package raft

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testFollowerID NodeID = 15
	testLeaderID   NodeID = 827349
	testTerm       TermID = 7812635
)

func appendLog(sender NodeID, term TermID, receiver NodeID) AppendLog {
	return AppendLog{SenderID: sender, Term: term, ReceiverID: receiver}
}

func requestVote(sender NodeID, term TermID) RequestVote {
	return RequestVote{SenderID: sender, ProposedTerm: term}
}

// TestFollowerAcknowledgesLeader checks that a follower acknowledges an AppendLog
// from its leader in the current term.
func TestFollowerAcknowledgesLeader(t *testing.T) {
	follower := NewFollower(testFollowerID, testLeaderID, testTerm)
	require.Equal(t, Acknowledge{SenderID: testFollowerID}, follower.Receive(appendLog(testLeaderID, testTerm, testFollowerID)))

	other := NewFollower(16, testLeaderID, testTerm)
	require.Equal(t, Acknowledge{SenderID: 16}, other.Receive(appendLog(testLeaderID, testTerm, 16)))

	// Replays are acknowledged again without a change of state.
	require.Equal(t, Acknowledge{SenderID: testFollowerID}, follower.Receive(appendLog(testLeaderID, testTerm, testFollowerID)))
	require.Equal(t, testLeaderID, follower.LeaderID())
	require.Equal(t, testTerm, follower.Term())
}

// TestFollowerAcknowledgesCommands checks that the commands of an AppendLog do
// not affect the answer.
func TestFollowerAcknowledgesCommands(t *testing.T) {
	follower := NewFollower(testFollowerID, testLeaderID, testTerm)
	message := appendLog(testLeaderID, testTerm, testFollowerID)
	message.Commands = []Command{Command("set x 1"), Command("set y 2")}
	require.Equal(t, Acknowledge{SenderID: testFollowerID}, follower.Receive(message))
}

// TestFollowerRejectsNonLeader checks that a follower rejects an AppendLog from a
// node other than its leader in the current term.
func TestFollowerRejectsNonLeader(t *testing.T) {
	follower := NewFollower(testFollowerID, testLeaderID, testTerm)
	require.Equal(t, Reject{}, follower.Receive(appendLog(3, testTerm, testFollowerID)))
	require.Equal(t, Reject{}, follower.Receive(appendLog(3, 1, testFollowerID)))
	require.Equal(t, testLeaderID, follower.LeaderID())
	require.Equal(t, testTerm, follower.Term())
}

// TestFollowerRejectsPreviousTerm checks that a follower rejects an AppendLog
// from its leader for an older term.
func TestFollowerRejectsPreviousTerm(t *testing.T) {
	follower := NewFollower(testFollowerID, testLeaderID, testTerm)
	require.Equal(t, Reject{}, follower.Receive(appendLog(testLeaderID, testTerm-1, testFollowerID)))
	require.Equal(t, testTerm, follower.Term())
}

// TestFollowerRejectsMisaddressed checks that a follower rejects an AppendLog
// addressed to another node unless it accepts any receiver.
func TestFollowerRejectsMisaddressed(t *testing.T) {
	follower := NewFollower(testFollowerID, testLeaderID, testTerm)
	require.Equal(t, Reject{}, follower.Receive(appendLog(testLeaderID, testTerm, 981273461)))

	lenient := NewFollower(testFollowerID, testLeaderID, testTerm, AcceptAnyReceiver())
	require.Equal(t, Acknowledge{SenderID: testFollowerID}, lenient.Receive(appendLog(testLeaderID, testTerm, 981273461)))
}

// TestFollowerRequestsLogForNewTerm checks that a follower that is behind asks
// for the log and adopts the new leader and term.
func TestFollowerRequestsLogForNewTerm(t *testing.T) {
	follower := NewFollower(testFollowerID, testLeaderID, testTerm)
	require.Equal(t, RequestLog{SenderID: testFollowerID}, follower.Receive(appendLog(testLeaderID, testTerm+1, testFollowerID)))

	follower = NewFollower(testFollowerID, testLeaderID, testTerm)
	follower.Receive(appendLog(3142798, testTerm+1, testFollowerID))
	require.Equal(t, NodeID(3142798), follower.LeaderID())
	require.Equal(t, testTerm+1, follower.Term())

	// The new leader is acknowledged from then on.
	require.Equal(t, Acknowledge{SenderID: testFollowerID}, follower.Receive(appendLog(3142798, testTerm+1, testFollowerID)))
	require.Equal(t, Reject{}, follower.Receive(appendLog(testLeaderID, testTerm, testFollowerID)))
}

// TestFollowerRefusesVoteForPastTerm checks that a follower never votes for a
// term older than its own.
func TestFollowerRefusesVoteForPastTerm(t *testing.T) {
	follower := NewFollower(testFollowerID, testLeaderID, testTerm)
	require.Equal(t, VoteNo{SenderID: testFollowerID}, follower.Receive(requestVote(testLeaderID, testTerm-1)))
}

// TestFollowerVotesOncePerTerm checks that the first candidate for a future term
// gets the vote, even when replayed, and a second candidate does not.
func TestFollowerVotesOncePerTerm(t *testing.T) {
	follower := NewFollower(testFollowerID, testLeaderID, testTerm)

	candidateA := requestVote(987234, testTerm+1)
	require.Equal(t, VoteYes{SenderID: testFollowerID}, follower.Receive(candidateA))
	require.Equal(t, VoteYes{SenderID: testFollowerID}, follower.Receive(candidateA))

	candidateB := requestVote(109238, testTerm+1)
	require.Equal(t, VoteNo{SenderID: testFollowerID}, follower.Receive(candidateB))
	require.Equal(t, VoteNo{SenderID: testFollowerID}, follower.Receive(candidateB))

	term, candidate, voted := follower.Vote()
	require.True(t, voted)
	require.Equal(t, testTerm+1, term)
	require.Equal(t, NodeID(987234), candidate)

	// Voting does not change the trusted leader or the term.
	require.Equal(t, testLeaderID, follower.LeaderID())
	require.Equal(t, testTerm, follower.Term())
}

// TestFollowerVotesForLeaderInSameTerm checks that a follower seeded with its
// leader grants that leader's vote request for the same term.
func TestFollowerVotesForLeaderInSameTerm(t *testing.T) {
	follower := NewFollower(testFollowerID, testLeaderID, testTerm)
	require.Equal(t, VoteYes{SenderID: testFollowerID}, follower.Receive(requestVote(testLeaderID, testTerm)))
}

// TestFollowerRefusesOtherCandidateInSameTerm checks that a follower does not
// vote for another node in the term of its leader.
func TestFollowerRefusesOtherCandidateInSameTerm(t *testing.T) {
	follower := NewFollower(testFollowerID, testLeaderID, testTerm)
	require.Equal(t, VoteNo{SenderID: testFollowerID}, follower.Receive(requestVote(264785, testTerm)))
}

// TestFollowerNewestTermWins checks that a vote for a newer term replaces the
// previous one.
func TestFollowerNewestTermWins(t *testing.T) {
	follower := NewFollower(testFollowerID, testLeaderID, testTerm)

	require.Equal(t, VoteYes{SenderID: testFollowerID}, follower.Receive(requestVote(987234, testTerm+1)))
	require.Equal(t, VoteYes{SenderID: testFollowerID}, follower.Receive(requestVote(287634, testTerm+2)))
	require.Equal(t, VoteNo{SenderID: testFollowerID}, follower.Receive(requestVote(987234, testTerm+1)))
}

// TestFollowerWithoutLeader checks that a follower that knows no leader votes
// for the first candidate of its own term.
func TestFollowerWithoutLeader(t *testing.T) {
	follower := NewFollower(testFollowerID, None, 0)
	_, _, voted := follower.Vote()
	require.False(t, voted)

	require.Equal(t, VoteYes{SenderID: testFollowerID}, follower.Receive(requestVote(2, 0)))
	require.Equal(t, VoteNo{SenderID: testFollowerID}, follower.Receive(requestVote(3, 0)))
	require.Equal(t, RequestLog{SenderID: testFollowerID}, follower.Receive(appendLog(2, 1, testFollowerID)))
}

// TestFollowerRejectsUnexpectedMessages checks that a follower rejects every
// message that is neither an AppendLog nor a RequestVote.
func TestFollowerRejectsUnexpectedMessages(t *testing.T) {
	follower := NewFollower(testFollowerID, 1, 1)
	messages := []Message{
		Acknowledge{SenderID: 1},
		Reject{},
		RequestLog{SenderID: 1},
		VoteYes{SenderID: 1},
		VoteNo{SenderID: 1},
		Heartbeat{},
	}
	for _, message := range messages {
		require.Equal(t, Reject{}, follower.Receive(message), message.String())
	}
	require.Equal(t, NodeID(1), follower.LeaderID())
	require.Equal(t, TermID(1), follower.Term())
}

// TestFollowerRandomSequences checks over random message sequences that the
// term of a follower never decreases and that it grants its vote to at most one
// candidate per term.
func TestFollowerRandomSequences(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		r := rand.New(rand.NewSource(seed))
		follower := NewFollower(testFollowerID, 1, 5)
		granted := map[TermID]NodeID{5: 1}

		for i := 0; i < 500; i++ {
			sender := NodeID(r.Intn(4) + 1)
			term := TermID(r.Intn(20))
			receiver := testFollowerID
			if r.Intn(5) == 0 {
				receiver = 99
			}

			var message Message
			switch r.Intn(4) {
			case 0:
				message = appendLog(sender, term, receiver)
			case 1, 2:
				message = requestVote(sender, term)
			default:
				message = Heartbeat{}
			}

			before := follower.Term()
			votedTermBefore, _, votedBefore := follower.Vote()

			reply := follower.Receive(message)

			require.GreaterOrEqual(t, follower.Term(), before, "seed %d, step %d: %v", seed, i, message)
			votedTerm, _, voted := follower.Vote()
			if votedBefore {
				require.True(t, voted)
				require.GreaterOrEqual(t, votedTerm, votedTermBefore, "seed %d, step %d: %v", seed, i, message)
			}

			if _, ok := reply.(VoteYes); ok {
				vote := message.(RequestVote)
				if candidate, ok := granted[vote.ProposedTerm]; ok {
					require.Equal(t, candidate, vote.SenderID, "seed %d, step %d: second vote in term %d", seed, i, vote.ProposedTerm)
				}
				granted[vote.ProposedTerm] = vote.SenderID
			}
		}
	}
}
