package raft

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLeader is returned when an operation that requires leadership is
	// submitted to a node that is not the leader.
	ErrNotLeader = errors.New("node is not the leader")

	// ErrUnknownPeer is returned when a message is addressed to a node that is
	// not a member of the cluster.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrTransportClosed is returned when a message is delivered through a
	// transport that is not running.
	ErrTransportClosed = errors.New("transport is closed")

	// ErrStorageClosed is returned when a closed storage is accessed.
	ErrStorageClosed = errors.New("storage is closed")
)

// NotLeaderError is returned by a server that cannot accept commands. It
// carries the leader the server trusts, if any.
type NotLeaderError struct {
	ServerID    NodeID
	KnownLeader NodeID
}

func (e NotLeaderError) Error() string {
	if e.KnownLeader == None {
		return fmt.Sprintf("server %d is not the leader: leader unknown", e.ServerID)
	}
	return fmt.Sprintf("server %d is not the leader: try %d", e.ServerID, e.KnownLeader)
}

func (e NotLeaderError) Unwrap() error {
	return ErrNotLeader
}

func errUnsupportedValue(v interface{}) error {
	return fmt.Errorf("unsupported value of type %T", v)
}
