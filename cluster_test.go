package raft

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jotaen/raft/logging"
)

const (
	testElectionTimeout   = 50 * time.Millisecond
	testHeartbeatInterval = 10 * time.Millisecond
	testRetryInterval     = 5 * time.Millisecond
)

func makePeerMap(numServers int) map[NodeID]string {
	peers := make(map[NodeID]string, numServers)
	for i := 1; i <= numServers; i++ {
		peers[NodeID(i)] = fmt.Sprintf("memory://%d", i)
	}
	return peers
}

type testCluster struct {
	// The testing instance associated with the cluster.
	t *testing.T

	// The network connecting the servers.
	network *MemoryNetwork

	// The servers making up the cluster, where servers[i] has ID i+1.
	servers []*Server

	// The state storage of each server, where storages[i] belongs to servers[i].
	storages []*VolatileStateStorage

	// The servers which are disconnected, where disconnected[i] being
	// true indicates servers[i] is disconnected.
	disconnected []bool

	mu sync.Mutex
}

func newCluster(t *testing.T, numServers int) *testCluster {
	network := NewMemoryNetwork()
	peers := makePeerMap(numServers)
	servers := make([]*Server, numServers)
	storages := make([]*VolatileStateStorage, numServers)

	for i := 0; i < numServers; i++ {
		id := NodeID(i + 1)
		storages[i] = NewVolatileStateStorage()
		server, err := NewServer(id, peers,
			WithTransport(network.Transport(id)),
			WithStateStorage(storages[i]),
			WithLogger(logging.Discard()),
			WithElectionTimeout(testElectionTimeout),
			WithHeartbeatInterval(testHeartbeatInterval),
			WithRetryInterval(testRetryInterval),
		)
		if err != nil {
			t.Fatalf("failed to create cluster server: server = %d, err = %s", id, err.Error())
		}
		servers[i] = server
	}

	return &testCluster{
		t:            t,
		network:      network,
		servers:      servers,
		storages:     storages,
		disconnected: make([]bool, numServers),
	}
}

func (tc *testCluster) startCluster() {
	for i, server := range tc.servers {
		if err := server.Start(); err != nil {
			tc.t.Fatalf("failed to start cluster server: server = %d, err = %s", i+1, err.Error())
		}
	}
}

func (tc *testCluster) stopCluster() {
	for _, server := range tc.servers {
		server.Stop()
	}
}

// leaders returns the indices of the connected servers that consider
// themselves leader.
func (tc *testCluster) leaders() []int {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	leaders := make([]int, 0)
	for i, server := range tc.servers {
		// Leaders that are disconnected are ignored: they cannot tell that
		// the rest of the cluster moved on.
		if server.Status().State == StateLeader && !tc.disconnected[i] {
			leaders = append(leaders, i)
		}
	}
	return leaders
}

// checkLeader waits for a single connected leader and returns its index.
func (tc *testCluster) checkLeader() int {
	start := time.Now()
	for time.Since(start) < 3*time.Second {
		leaders := tc.leaders()
		if len(leaders) > 1 {
			// Two leaders may briefly coexist in different terms.
			terms := make(map[TermID]bool)
			for _, i := range leaders {
				term := tc.servers[i].Status().Term
				if terms[term] {
					tc.t.Fatalf("cluster has more than one leader in term %d: leaders = %v", term, leaders)
				}
				terms[term] = true
			}
		}
		if len(leaders) == 1 {
			return leaders[0]
		}
		time.Sleep(testElectionTimeout)
	}

	tc.t.Fatal("cluster failed to elect a leader")
	return -1
}

// checkNoLeader checks that no connected server becomes leader for a while.
func (tc *testCluster) checkNoLeader() {
	for i := 0; i < 10; i++ {
		if leaders := tc.leaders(); len(leaders) != 0 {
			tc.t.Fatalf("cluster elected leader without quorum: leaders = %v", leaders)
		}
		time.Sleep(testElectionTimeout)
	}
}

func (tc *testCluster) disconnectServer(server int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.network.Disconnect(NodeID(server + 1))
	tc.disconnected[server] = true
}

func (tc *testCluster) reconnectServer(server int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.network.Connect(NodeID(server + 1))
	tc.disconnected[server] = false
}
