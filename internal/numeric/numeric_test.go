package numeric

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMax(t *testing.T) {
	require.Equal(t, uint64(7), Max(uint64(7), uint64(3)))
	require.Equal(t, uint64(7), Max(uint64(3), uint64(7)))
	require.Equal(t, uint64(5), Max(uint64(5), uint64(5)))
}

// TestMajority checks the quorum size for odd and even cluster sizes.
func TestMajority(t *testing.T) {
	require.Equal(t, 1, Majority(1))
	require.Equal(t, 2, Majority(2))
	require.Equal(t, 2, Majority(3))
	require.Equal(t, 3, Majority(4))
	require.Equal(t, 3, Majority(5))
}
