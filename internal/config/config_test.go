package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benor/internal/consensus"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[int]string
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  map[int]string{},
		},
		{
			name:  "single peer",
			input: "0=127.0.0.1:3000",
			want:  map[int]string{0: "127.0.0.1:3000"},
		},
		{
			name:  "multiple peers",
			input: "0=127.0.0.1:3000,1=127.0.0.1:3001,2=10.0.0.5:4000",
			want: map[int]string{
				0: "127.0.0.1:3000",
				1: "127.0.0.1:3001",
				2: "10.0.0.5:4000",
			},
		},
		{
			name:  "with spaces",
			input: "0 = 127.0.0.1:3000 , 1 = 127.0.0.1:3001",
			want: map[int]string{
				0: "127.0.0.1:3000",
				1: "127.0.0.1:3001",
			},
		},
		{
			name:    "invalid format - no equals",
			input:   "0:127.0.0.1:3000",
			wantErr: true,
		},
		{
			name:    "invalid format - empty ID",
			input:   "=127.0.0.1:3000",
			wantErr: true,
		},
		{
			name:    "invalid format - empty addr",
			input:   "0=",
			wantErr: true,
		},
		{
			name:    "non-numeric ID",
			input:   "n1=127.0.0.1:3000",
			wantErr: true,
		},
		{
			name:    "duplicate ID",
			input:   "0=127.0.0.1:3000,0=127.0.0.1:3001",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeers(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseValues(t *testing.T) {
	got, err := ParseValues("1, 0,1")
	require.NoError(t, err)
	assert.Equal(t, []consensus.Value{consensus.One, consensus.Zero, consensus.One}, got)

	got, err = ParseValues("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseValues("1,?")
	assert.ErrorIs(t, err, consensus.ErrInvalidValue)

	_, err = ParseValues("1,2")
	assert.ErrorIs(t, err, consensus.ErrInvalidValue)
}

func TestParseFaulty(t *testing.T) {
	got, err := ParseFaulty("4, 3")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, got)

	got, err = ParseFaulty("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseFaulty("x")
	assert.Error(t, err)
}

func validConfig() *Config {
	cfg := Default()
	cfg.N = 4
	cfg.F = 1
	cfg.Values = []consensus.Value{consensus.One, consensus.One, consensus.One, consensus.One}
	cfg.Faulty = []int{3}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "valid", mutate: func(c *Config) {}, ok: true},
		{name: "no faults", mutate: func(c *Config) { c.F = 0; c.Faulty = nil }, ok: true},
		{name: "zero nodes", mutate: func(c *Config) { c.N = 0 }},
		{name: "negative F", mutate: func(c *Config) { c.F = -1 }},
		{name: "2F equals N", mutate: func(c *Config) { c.F = 2 }},
		{name: "missing values", mutate: func(c *Config) { c.Values = c.Values[:3] }},
		{name: "undecided initial value", mutate: func(c *Config) { c.Values[0] = consensus.Undecided }},
		{name: "faulty out of range", mutate: func(c *Config) { c.Faulty = []int{4} }},
		{name: "faulty listed twice", mutate: func(c *Config) { c.F = 1; c.Faulty = []int{3, 3} }},
		{name: "more faulty than F", mutate: func(c *Config) { c.Faulty = []int{2, 3} }},
		{name: "peer out of range", mutate: func(c *Config) { c.Peers = map[int]string{7: "127.0.0.1:1"} }},
		{name: "port overflow", mutate: func(c *Config) { c.BasePort = 65534 }},
		{
			name: "explicit peers without base port",
			mutate: func(c *Config) {
				c.BasePort = 0
				c.Peers = map[int]string{0: "a:1", 1: "b:1", 2: "c:1", 3: "d:1"}
			},
			ok: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestConfig_Addr(t *testing.T) {
	cfg := validConfig()
	cfg.Peers = map[int]string{2: "10.0.0.9:7000"}

	assert.Equal(t, "127.0.0.1:3000", cfg.Addr(0))
	assert.Equal(t, "127.0.0.1:3003", cfg.Addr(3))
	assert.Equal(t, "10.0.0.9:7000", cfg.Addr(2))

	addrs := cfg.PeerAddrs()
	assert.Len(t, addrs, 4)
	assert.Equal(t, "127.0.0.1:3001", addrs[1])

	assert.True(t, cfg.IsFaulty(3))
	assert.False(t, cfg.IsFaulty(0))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.json")
	data := `{"n": 4, "f": 1, "values": [1, 0, 1, 1], "faulty": [3], "basePort": 4000}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.N)
	assert.Equal(t, []consensus.Value{consensus.One, consensus.Zero, consensus.One, consensus.One}, cfg.Values)
	assert.Equal(t, "127.0.0.1:4002", cfg.Addr(2))
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"values": [2]}`), 0o644))
	_, err = LoadFile(bad)
	assert.ErrorIs(t, err, consensus.ErrInvalidValue)
}
