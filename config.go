package raft

import (
	"os"
	"time"

	"github.com/jotaen/raft/internal/errors"
	"github.com/jotaen/raft/logging"
	"gopkg.in/yaml.v3"
)

// Config describes a server in a YAML file:
//
//	id: 1
//	address: 127.0.0.1:7001
//	peers:
//	  2: 127.0.0.1:7002
//	  3: 127.0.0.1:7003
//	data_dir: /var/lib/raft/1
//	election_timeout: 300ms
//	heartbeat_interval: 50ms
//	retry_interval: 20ms
//	log_level: info
//
// Durations use the syntax of time.ParseDuration. Omitted values keep their
// defaults. Without a data directory the term, leader and vote are not
// persisted.
type Config struct {
	ID                NodeID            `yaml:"id"`
	Address           string            `yaml:"address"`
	Peers             map[NodeID]string `yaml:"peers"`
	DataDir           string            `yaml:"data_dir"`
	ElectionTimeout   string            `yaml:"election_timeout"`
	HeartbeatInterval string            `yaml:"heartbeat_interval"`
	RetryInterval     string            `yaml:"retry_interval"`
	LogLevel          string            `yaml:"log_level"`
}

// LoadConfig reads and validates the configuration file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read configuration %s", path)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode configuration %s", path)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks that the configuration names this node and its address.
func (c Config) Validate() error {
	if c.ID == None {
		return errors.New("invalid configuration: id must not be %d", None)
	}
	if c.Address == "" {
		return errors.New("invalid configuration: address of node %d is missing", c.ID)
	}
	if address, ok := c.Peers[c.ID]; ok && address != c.Address {
		return errors.New("invalid configuration: node %d has addresses %s and %s", c.ID, c.Address, address)
	}
	if _, ok := c.Peers[None]; ok {
		return errors.New("invalid configuration: peer id must not be %d", None)
	}
	return nil
}

// Members returns the address of every member of the cluster, including this node.
func (c Config) Members() map[NodeID]string {
	members := make(map[NodeID]string, len(c.Peers)+1)
	for id, address := range c.Peers {
		members[id] = address
	}
	members[c.ID] = c.Address
	return members
}

// Options converts the timing and logging settings to server options.
func (c Config) Options() ([]Option, error) {
	var opts []Option

	durations := []struct {
		name  string
		value string
		apply func(time.Duration) Option
	}{
		{"election_timeout", c.ElectionTimeout, WithElectionTimeout},
		{"heartbeat_interval", c.HeartbeatInterval, WithHeartbeatInterval},
		{"retry_interval", c.RetryInterval, WithRetryInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		duration, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, errors.Wrap(err, "invalid configuration: %s", d.name)
		}
		opts = append(opts, d.apply(duration))
	}

	if c.LogLevel != "" {
		level, err := logging.ParseLevel(c.LogLevel)
		if err != nil {
			return nil, errors.Wrap(err, "invalid configuration: log_level")
		}
		opts = append(opts, WithLogLevel(level))
	}

	return opts, nil
}

// NewServerFromConfig creates a server as described by the configuration.
// The state storage in the data directory, if any, is owned by the server.
func NewServerFromConfig(config Config, opts ...Option) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	configOpts, err := config.Options()
	if err != nil {
		return nil, err
	}
	opts = append(configOpts, opts...)

	var stateStorage StateStorage
	if config.DataDir != "" {
		stateStorage, err = NewStateStorage(config.DataDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithStateStorage(stateStorage))
	}

	server, err := NewServer(config.ID, config.Members(), opts...)
	if err != nil {
		if stateStorage != nil {
			stateStorage.Close()
		}
		return nil, err
	}
	return server, nil
}
