// Package config holds process-level configuration, loaded from a TOML
// file via viper into a *Config passed down to each component
// constructor. Several runtime constants are left implementation-defined
// rather than fixed; this package is where an operator tunes them
// without a rebuild.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// SlabConfig configures a single local Slab.
type SlabConfig struct {
	// DBBackend names the tm-db backend (e.g. "goleveldb", "memdb").
	DBBackend string `mapstructure:"db_backend" toml:"db_backend"`
	// DBDir is where DBBackend stores its files; ignored for memdb.
	DBDir string `mapstructure:"db_dir" toml:"db_dir"`
	// TargetPeers is consider_emit's witness count for peering-eligible
	// memos (slab.DefaultTargetPeers if zero).
	TargetPeers int `mapstructure:"target_peers" toml:"target_peers"`
	// RemediationInterval is a period for RunRemediation's attic sweep.
	// It is loaded but nothing reads it: cmd/unbased does not start
	// RunRemediation.
	RemediationInterval time.Duration `mapstructure:"remediation_interval" toml:"remediation_interval"`
}

// PeeringConfig configures the peering Reactor and its transport.
type PeeringConfig struct {
	// ListenAddress is this slab's advertised transport address.
	ListenAddress string `mapstructure:"listen_address" toml:"listen_address"`
	// Seeds lists addresses of peers. It is loaded but nothing reads it;
	// cmd/unbased makes no connections from it.
	Seeds []string `mapstructure:"seeds" toml:"seeds"`
	// PresenceInterval is loaded but nothing reads it; the Reactor always
	// uses the peering.PresenceInterval constant.
	PresenceInterval time.Duration `mapstructure:"presence_interval" toml:"presence_interval"`
}

// RPCDebugConfig configures the introspection HTTP/websocket server.
type RPCDebugConfig struct {
	ListenAddress string `mapstructure:"listen_address" toml:"listen_address"`
}

// Config is the top-level configuration document, the root of
// config.toml.
type Config struct {
	Slab     SlabConfig     `mapstructure:"slab" toml:"slab"`
	Peering  PeeringConfig  `mapstructure:"peering" toml:"peering"`
	RPCDebug RPCDebugConfig `mapstructure:"rpcdebug" toml:"rpcdebug"`
}

// DefaultConfig returns a Config with the same defaults a fresh node
// would run with if config.toml set nothing at all.
func DefaultConfig() *Config {
	return &Config{
		Slab: SlabConfig{
			DBBackend:           "goleveldb",
			DBDir:               "data",
			TargetPeers:         0, // 0 defers to slab.DefaultTargetPeers
			RemediationInterval: 30 * time.Second,
		},
		Peering: PeeringConfig{
			ListenAddress: "tcp://0.0.0.0:26700",
		},
		RPCDebug: RPCDebugConfig{
			ListenAddress: "tcp://127.0.0.1:26701",
		},
	}
}

// Load reads path (a TOML file) over DefaultConfig's values using viper,
// before any component is constructed.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "config: read")
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "config: unmarshal")
	}
	return cfg, nil
}

// WriteDefault writes DefaultConfig to path in TOML form, for a fresh
// node's init command.
func WriteDefault(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "config: create")
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(DefaultConfig())
}
