package raft

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransportDeliver(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	network := NewMemoryNetwork()
	first := network.Transport(1)
	second := network.Transport(2)
	require.Same(t, first, network.Transport(1))

	rec := &recorder{}
	second.RegisterHandler(rec.handle)
	require.NoError(t, first.Run())
	require.NoError(t, second.Run())
	defer first.Shutdown()
	defer second.Shutdown()

	require.NoError(t, first.Deliver(2, Acknowledge{SenderID: 1}))
	require.NoError(t, first.Deliver(2, VoteYes{SenderID: 1}))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, time.Millisecond)
	messages := rec.snapshot()
	require.Equal(t, received{from: 1, message: Acknowledge{SenderID: 1}}, messages[0])
	require.Equal(t, received{from: 1, message: VoteYes{SenderID: 1}}, messages[1])

	require.ErrorIs(t, first.Deliver(3, Heartbeat{}), ErrUnknownPeer)
}

func TestMemoryTransportDisconnect(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	network := NewMemoryNetwork()
	first := network.Transport(1)
	second := network.Transport(2)

	rec := &recorder{}
	second.RegisterHandler(rec.handle)
	require.NoError(t, first.Run())
	require.NoError(t, second.Run())
	defer first.Shutdown()
	defer second.Shutdown()

	network.Disconnect(2)
	require.NoError(t, first.Deliver(2, Heartbeat{}))
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, rec.snapshot())

	network.Connect(2)
	require.NoError(t, first.Deliver(2, Heartbeat{}))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, time.Millisecond)
}

func TestMemoryTransportClosed(t *testing.T) {
	network := NewMemoryNetwork()
	first := network.Transport(1)
	network.Transport(2)

	require.ErrorIs(t, first.Deliver(2, Heartbeat{}), ErrTransportClosed)
	require.Equal(t, "memory://1", first.Address())
}
