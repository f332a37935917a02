package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benor/internal/config"
	"benor/internal/consensus"
)

func setFlags(t *testing.T, opts *options, args ...string) {
	t.Helper()
	old := flag.CommandLine
	t.Cleanup(func() { flag.CommandLine = old })

	fs := flag.NewFlagSet("benor", flag.ContinueOnError)
	fs.IntVar(&opts.n, "n", 0, "")
	fs.IntVar(&opts.f, "f", 0, "")
	fs.StringVar(&opts.values, "values", "", "")
	fs.StringVar(&opts.faulty, "faulty", "", "")
	fs.IntVar(&opts.basePort, "base-port", config.DefaultBasePort, "")
	fs.StringVar(&opts.peers, "peers", "", "")
	fs.IntVar(&opts.nodeID, "node-id", -1, "")
	require.NoError(t, fs.Parse(args))
	flag.CommandLine = fs
}

func TestBuildConfig_Flags(t *testing.T) {
	var opts options
	setFlags(t, &opts, "-n", "4", "-f", "1", "-values", "1,1,0,1", "-faulty", "3", "-base-port", "5000")

	cfg, err := buildConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.N)
	assert.Equal(t, 1, cfg.F)
	assert.Equal(t, []consensus.Value{consensus.One, consensus.One, consensus.Zero, consensus.One}, cfg.Values)
	assert.Equal(t, []int{3}, cfg.Faulty)
	assert.Equal(t, "127.0.0.1:5002", cfg.Addr(2))
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"n": 3, "f": 1, "values": [0, 0, 0], "basePort": 4000}`), 0o644))

	var opts options
	setFlags(t, &opts, "-values", "1,1,1")
	opts.configFile = path

	cfg, err := buildConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.N)
	assert.Equal(t, []consensus.Value{consensus.One, consensus.One, consensus.One}, cfg.Values)
	assert.Equal(t, "127.0.0.1:4000", cfg.Addr(0))
}

func TestBuildConfig_Invalid(t *testing.T) {
	var opts options
	setFlags(t, &opts, "-n", "4", "-f", "2", "-values", "1,1,1,1")
	_, err := buildConfig(opts)
	assert.ErrorIs(t, err, config.ErrInvalid)

	setFlags(t, &opts, "-n", "3", "-f", "1", "-values", "1,1,1", "-node-id", "3")
	opts.nodeID = 3
	_, err = buildConfig(opts)
	assert.ErrorIs(t, err, config.ErrInvalid)

	setFlags(t, &opts, "-n", "3", "-f", "1", "-values", "1,x,1")
	opts.nodeID = -1
	_, err = buildConfig(opts)
	assert.ErrorIs(t, err, consensus.ErrInvalidValue)
}
