package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	require.Equal(t, "follower", StateFollower.String())
	require.Equal(t, "candidate", StateCandidate.String())
	require.Equal(t, "leader", StateLeader.String())
	require.Equal(t, "stopped", StateStopped.String())
	require.Panics(t, func() { _ = State(17).String() })
}
