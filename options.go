package raft

import (
	"errors"
	"fmt"
	"time"

	"github.com/jotaen/raft/logging"
)

const (
	defaultElectionTimeout = time.Duration(300 * time.Millisecond)
	defaultHeartbeat       = time.Duration(50 * time.Millisecond)
	defaultRetryInterval   = time.Duration(20 * time.Millisecond)

	minElectionTimeout = time.Duration(10 * time.Millisecond)
	maxElectionTimeout = time.Duration(10 * time.Second)
	minHeartbeat       = time.Duration(1 * time.Millisecond)
	maxHeartbeat       = time.Duration(1 * time.Second)
	minRetryInterval   = time.Duration(1 * time.Millisecond)
	maxRetryInterval   = time.Duration(1 * time.Second)
)

// Logger supports logging message at the debug, info, warn, error, and
// fatal level.
type Logger interface {
	// Debug logs a message at debug level.
	Debug(args ...any)

	// Debugf logs a formatted message at debug level.
	Debugf(format string, args ...any)

	// Info logs a message at info level.
	Info(args ...any)

	// Infof logs a formatted message at info level.
	Infof(format string, args ...any)

	// Warn logs a message at warn level.
	Warn(args ...any)

	// Warnf logs a formatted message at warn level.
	Warnf(format string, args ...any)

	// Error logs a message at error level.
	Error(args ...any)

	// Errorf logs a formatted message at error level.
	Errorf(format string, args ...any)

	// Fatal logs a message at fatal level.
	Fatal(args ...any)

	// Fatalf logs a formatted message at fatal level.
	Fatalf(format string, args ...any)
}

type options struct {
	// Minimum election timeout. A random time between electionTimeout
	// and 2 * electionTimeout elapses without contact from a leader
	// before a node starts an election.
	electionTimeout time.Duration

	// The interval between heartbeat rounds of a leader.
	heartbeatInterval time.Duration

	// The interval at which unacknowledged AppendLog and unanswered
	// RequestVote messages are resent.
	retryInterval time.Duration

	// A logger for debugging and important events.
	logger Logger

	// The level of logged messages, used when no logger is provided.
	logLevel logging.Level

	// Indicates if log level was set or not.
	levelSet bool

	// A provided storage for the term, leader and vote.
	stateStorage StateStorage

	// A provided network transport.
	transport Transport

	// The leader and term a node trusts when it has no persisted state.
	bootstrapLeader NodeID
	bootstrapTerm   TermID

	// Accept AppendLog messages addressed to any node.
	anyReceiver bool
}

// Option is a function that updates the options associated with a node.
type Option func(options *options) error

// WithElectionTimeout sets the minimum election timeout.
func WithElectionTimeout(timeout time.Duration) Option {
	return func(options *options) error {
		if timeout < minElectionTimeout || timeout > maxElectionTimeout {
			return fmt.Errorf("election timeout value is invalid: minimum = %v, maximum = %v",
				minElectionTimeout, maxElectionTimeout)
		}
		options.electionTimeout = timeout
		return nil
	}
}

// WithHeartbeatInterval sets the interval between heartbeat rounds.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(options *options) error {
		if interval < minHeartbeat || interval > maxHeartbeat {
			return fmt.Errorf("heartbeat interval value is invalid: minimum = %v, maximum = %v",
				minHeartbeat, maxHeartbeat)
		}
		options.heartbeatInterval = interval
		return nil
	}
}

// WithRetryInterval sets the interval at which unanswered messages are resent.
func WithRetryInterval(interval time.Duration) Option {
	return func(options *options) error {
		if interval < minRetryInterval || interval > maxRetryInterval {
			return fmt.Errorf("retry interval value is invalid: minimum = %v, maximum = %v",
				minRetryInterval, maxRetryInterval)
		}
		options.retryInterval = interval
		return nil
	}
}

// WithLogger sets the logger used by the node.
func WithLogger(logger Logger) Option {
	return func(options *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		options.logger = logger
		return nil
	}
}

// WithLogLevel sets the level of the default logger.
func WithLogLevel(level logging.Level) Option {
	return func(options *options) error {
		options.logLevel = level
		options.levelSet = true
		return nil
	}
}

// WithStateStorage sets the storage the node persists its term, leader and
// vote to. Persisted state takes precedence over WithBootstrapLeader.
func WithStateStorage(stateStorage StateStorage) Option {
	return func(options *options) error {
		if stateStorage == nil {
			return errors.New("state storage must not be nil")
		}
		options.stateStorage = stateStorage
		return nil
	}
}

// WithTransport sets the network transport used by a server.
func WithTransport(transport Transport) Option {
	return func(options *options) error {
		if transport == nil {
			return errors.New("transport must not be nil")
		}
		options.transport = transport
		return nil
	}
}

// WithBootstrapLeader makes a node without persisted state start as a
// follower of leader in term, having voted for it.
func WithBootstrapLeader(leader NodeID, term TermID) Option {
	return func(options *options) error {
		if leader == None {
			return errors.New("bootstrap leader must not be None")
		}
		options.bootstrapLeader = leader
		options.bootstrapTerm = term
		return nil
	}
}

// WithAnyReceiver makes followers accept AppendLog messages addressed to
// any node.
func WithAnyReceiver() Option {
	return func(options *options) error {
		options.anyReceiver = true
		return nil
	}
}

func newOptions(opts ...Option) (options, error) {
	var options options
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return options, err
		}
	}

	if options.electionTimeout == 0 {
		options.electionTimeout = defaultElectionTimeout
	}
	if options.heartbeatInterval == 0 {
		options.heartbeatInterval = defaultHeartbeat
	}
	if options.retryInterval == 0 {
		options.retryInterval = defaultRetryInterval
	}
	if options.logger == nil {
		level := logging.Info
		if options.levelSet {
			level = options.logLevel
		}
		logger, err := logging.NewLogger(logging.WithLevel(level))
		if err != nil {
			return options, err
		}
		options.logger = logger
	}

	return options, nil
}
