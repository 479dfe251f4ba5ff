package raft

import (
	"time"

	"github.com/jotaen/raft/internal/random"
)

// lease represents the time a node is willing to wait for its leader.
// The lease is considered valid until its expiration time, which is
// calculated at the moment of renewal as the current time plus a random
// duration between the minimum duration and twice that.
//
// A follower or candidate whose lease expired starts an election. The
// randomization makes it unlikely that several nodes start an election
// at the same time.
type lease struct {
	// Time at which the lease expires.
	expiration time.Time

	// The minimum duration of a lease (the election timeout).
	duration time.Duration
}

// newLease creates a new instance of a lease that is valid for at least
// the provided duration, measured from now.
func newLease(duration time.Duration) *lease {
	l := &lease{duration: duration}
	l.renew()
	return l
}

// renew resets the expiration time of the lease to the current
// time plus a random duration in [duration, 2 * duration).
func (l *lease) renew() {
	l.expiration = time.Now().Add(random.Timeout(l.duration, 2*l.duration))
}

// expire makes the lease invalid immediately.
func (l *lease) expire() {
	l.expiration = time.Now()
}

// isValid returns true if the current time is less than
// the expiration time of the lease and false otherwise.
func (l *lease) isValid() bool {
	return time.Now().Before(l.expiration)
}
