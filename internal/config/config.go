package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"benor/internal/consensus"
	"benor/internal/quorum"
)

// Defaults
const (
	DefaultHost     = "127.0.0.1"
	DefaultBasePort = 3000
	DefaultLogLevel = "info"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds the cluster configuration shared by every node.
type Config struct {
	N        int               `json:"n"`
	F        int               `json:"f"`
	Values   []consensus.Value `json:"values"`
	Faulty   []int             `json:"faulty"`
	Host     string            `json:"host"`
	BasePort int               `json:"basePort"`
	// Peers overrides the address of individual nodes.
	Peers       map[int]string `json:"peers,omitempty"`
	Seed        int64          `json:"seed"`
	LogLevel    string         `json:"logLevel"`
	MetricsAddr string         `json:"metricsAddr,omitempty"`
}

// Default returns a config with the ambient settings filled in.
func Default() *Config {
	return &Config{
		Host:     DefaultHost,
		BasePort: DefaultBasePort,
		LogLevel: DefaultLogLevel,
	}
}

// LoadFile reads a JSON config. Fields missing from the file keep their
// defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ParsePeers parses a comma-separated list of peers in the format:
// "0=addr0,1=addr1,2=addr2"
func ParsePeers(peersStr string) (map[int]string, error) {
	peers := make(map[int]string)
	if peersStr == "" {
		return peers, nil
	}

	for _, part := range strings.Split(peersStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		idStr := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])
		if idStr == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid peer ID %q: %w", idStr, err)
		}
		if _, dup := peers[id]; dup {
			return nil, fmt.Errorf("duplicate peer ID %d", id)
		}
		peers[id] = addr
	}

	return peers, nil
}

// ParseValues parses initial values in the format "1,0,1".
func ParseValues(valuesStr string) ([]consensus.Value, error) {
	if strings.TrimSpace(valuesStr) == "" {
		return nil, nil
	}

	parts := strings.Split(valuesStr, ",")
	values := make([]consensus.Value, 0, len(parts))
	for i, part := range parts {
		v, err := consensus.ParseValue(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		if !v.IsBinary() {
			return nil, fmt.Errorf("value %d: %w: initial values must be 0 or 1", i, consensus.ErrInvalidValue)
		}
		values = append(values, v)
	}
	return values, nil
}

// ParseFaulty parses faulty node ids in the format "3,4".
func ParseFaulty(faultyStr string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(faultyStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid faulty ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// Validate checks that the cluster can tolerate its faults and that every
// per-node setting is in range.
func (c *Config) Validate() error {
	if c.N < 1 {
		return fmt.Errorf("%w: N must be at least 1, got %d", ErrInvalid, c.N)
	}
	if c.F < 0 {
		return fmt.Errorf("%w: F must not be negative, got %d", ErrInvalid, c.F)
	}
	if !quorum.Tolerates(c.N, c.F) {
		return fmt.Errorf("%w: need 2F < N, got N=%d F=%d", ErrInvalid, c.N, c.F)
	}
	if len(c.Values) != c.N {
		return fmt.Errorf("%w: need %d initial values, got %d", ErrInvalid, c.N, len(c.Values))
	}
	for i, v := range c.Values {
		if !v.IsBinary() {
			return fmt.Errorf("%w: initial value of node %d is %s", ErrInvalid, i, v)
		}
	}

	seen := make(map[int]bool, len(c.Faulty))
	for _, id := range c.Faulty {
		if id < 0 || id >= c.N {
			return fmt.Errorf("%w: faulty node %d outside [0,%d)", ErrInvalid, id, c.N)
		}
		if seen[id] {
			return fmt.Errorf("%w: faulty node %d listed twice", ErrInvalid, id)
		}
		seen[id] = true
	}
	if len(c.Faulty) > c.F {
		return fmt.Errorf("%w: %d faulty nodes exceed F=%d", ErrInvalid, len(c.Faulty), c.F)
	}

	for id := range c.Peers {
		if id < 0 || id >= c.N {
			return fmt.Errorf("%w: peer %d outside [0,%d)", ErrInvalid, id, c.N)
		}
	}
	if len(c.Peers) < c.N && (c.BasePort <= 0 || c.BasePort+c.N-1 > 65535) {
		return fmt.Errorf("%w: base port %d cannot address %d nodes", ErrInvalid, c.BasePort, c.N)
	}
	return nil
}

// IsFaulty reports whether node id is configured as faulty.
func (c *Config) IsFaulty(id int) bool {
	for _, f := range c.Faulty {
		if f == id {
			return true
		}
	}
	return false
}

// Addr returns the listen address of node id: an explicit peer entry, or
// host:basePort+id.
func (c *Config) Addr(id int) string {
	if addr, ok := c.Peers[id]; ok {
		return addr
	}
	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	return net.JoinHostPort(host, strconv.Itoa(c.BasePort+id))
}

// PeerAddrs returns the address of every node, self included.
func (c *Config) PeerAddrs() map[int]string {
	addrs := make(map[int]string, c.N)
	for id := 0; id < c.N; id++ {
		addrs[id] = c.Addr(id)
	}
	return addrs
}
