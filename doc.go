/*
This library provides the decision core of a term-based leader election and replication protocol in the Raft family,
together with a small runtime to operate it. A cluster is a fixed set of nodes identified by a NodeID. In every term
at most one leader is recognized, and every node casts at most one vote per term.

The core is made of three roles. A Follower trusts a leader for a term, acknowledges its AppendLog messages and takes
part in votes. A Candidate asks its peers for votes for a new term. A Leader sends an AppendLog to every follower on
each heartbeat and resends it to the followers that have not acknowledged it yet. The roles never block and never
fail: every inbound message is answered with data, and outgoing messages go through an Outbox.

A Node holds the active role of a cluster member and switches between roles. It can be driven directly, which is
useful when embedding the protocol in another runtime.

	node, err := raft.NewNode(1, []raft.NodeID{2, 3}, outbox)
	if err != nil {
	    panic(err)
	}

	// Hand every received message to the node. The reply is delivered to the sender through the outbox.
	node.Receive(from, message)

	// Drive the node from timers.
	node.ElectionTimeout()
	node.Heartbeat()
	node.Retry()

The second way is to use the provided Server, which runs a node on a gRPC transport and drives it from timers. Create
a map of the ID of every member of the cluster, including this one, to its network address.

	peers := map[raft.NodeID]string{
	    1: "127.0.0.1:7001",
	    2: "127.0.0.1:7002",
	    3: "127.0.0.1:7003",
	}

The term, leader and vote of a node should survive restarts. A state storage keeps them in a bolt database.

	stateStorage, err := raft.NewStateStorage("/var/lib/raft/1")
	if err != nil {
	    panic(err)
	}

A server may now be created and started. Options such as the election timeout may be provided, otherwise the
defaults are used.

	server, err := raft.NewServer(1, peers, raft.WithStateStorage(stateStorage), raft.WithElectionTimeout(500*time.Millisecond))
	if err != nil {
	    panic(err)
	}
	if err := server.Start(); err != nil {
	    panic(err)
	}
	defer server.Stop()

Alternatively, the server can be described in a YAML file and created with LoadConfig and NewServerFromConfig.

Commands can be proposed to the leader. They are carried by the AppendLog messages of the next heartbeat. A server
that is not the leader returns a NotLeaderError naming the leader it trusts, if any.

	if err := server.Propose(raft.Command("set x 1")); errors.Is(err, raft.ErrNotLeader) {
	    // Try the leader instead.
	}

Be warned that this implementation does not keep a log: commands are delivered to the followers of the current
term but are neither ordered across terms nor applied to a state machine.
*/
package raft
