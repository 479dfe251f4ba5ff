package raft

// State is the role a node currently plays.
type State uint32

const (
	StateFollower State = iota
	StateCandidate
	StateLeader
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateFollower:
		return "follower"
	case StateCandidate:
		return "candidate"
	case StateLeader:
		return "leader"
	case StateStopped:
		return "stopped"
	default:
		panic("invalid state")
	}
}

// Status is a point-in-time view of a node.
type Status struct {
	// The ID of the node.
	ID NodeID

	// The role the node plays.
	State State

	// The current term of the node.
	Term TermID

	// The leader the node trusts, None if unknown. A leader reports itself.
	LeaderID NodeID
}
