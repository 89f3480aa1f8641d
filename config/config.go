package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage backends accepted in Config.Storage.
const (
	StorageLevelDB = "leveldb"
	StorageSQLite  = "sqlite"
)

// PlayerAlloc is a player record created at genesis.
type PlayerAlloc struct {
	ID       uint64 `json:"id" yaml:"id"`
	Owner    string `json:"owner" yaml:"owner"` // pubkey hex
	Energy   uint64 `json:"energy" yaml:"energy"`
	Troops   uint64 `json:"troops" yaml:"troops"`
	Capacity int    `json:"capacity,omitempty" yaml:"capacity,omitempty"` // 0 → record width
}

// BattlefieldAlloc is a battlefield created at genesis. Player1 and Player2
// are player ids from the same genesis.
type BattlefieldAlloc struct {
	ID            uint64 `json:"id" yaml:"id"`
	Player1       uint64 `json:"player1" yaml:"player1"`
	Player2       uint64 `json:"player2" yaml:"player2"`
	Player1Troops uint64 `json:"player1_troops" yaml:"player1_troops"`
	Player2Troops uint64 `json:"player2_troops" yaml:"player2_troops"`
	Capacity      int    `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID      string             `json:"chain_id" yaml:"chain_id"`
	Players      []PlayerAlloc      `json:"players" yaml:"players"`
	Battlefields []BattlefieldAlloc `json:"battlefields" yaml:"battlefields"`
}

// Config holds all node configuration.
type Config struct {
	NodeID         string        `json:"node_id" yaml:"node_id"`
	DataDir        string        `json:"data_dir" yaml:"data_dir"`
	Storage        string        `json:"storage" yaml:"storage"` // leveldb | sqlite
	RPCPort        int           `json:"rpc_port" yaml:"rpc_port"`
	RPCAuthToken   string        `json:"rpc_auth_token,omitempty" yaml:"rpc_auth_token,omitempty"`
	StrictAccounts bool          `json:"strict_accounts" yaml:"strict_accounts"`
	Genesis        GenesisConfig `json:"genesis" yaml:"genesis"`
}

// envOverrides lists the settings that may come from the environment.
type envOverrides struct {
	NodeID         string `env:"TOLBATTLE_NODE_ID"`
	DataDir        string `env:"TOLBATTLE_DATA_DIR"`
	Storage        string `env:"TOLBATTLE_STORAGE"`
	RPCPort        int    `env:"TOLBATTLE_RPC_PORT"`
	RPCAuthToken   string `env:"TOLBATTLE_RPC_AUTH_TOKEN"`
	StrictAccounts bool   `env:"TOLBATTLE_STRICT_ACCOUNTS"`
	ChainID        string `env:"TOLBATTLE_CHAIN_ID"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:  "node0",
		DataDir: "./data",
		Storage: StorageLevelDB,
		RPCPort: 8545,
		Genesis: GenesisConfig{
			ChainID: "tolbattle-dev",
		},
	}
}

// Load reads a config file from path and applies environment overrides.
// Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
// An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// ApplyEnv overwrites cfg fields with any TOLBATTLE_* variables that are set.
func ApplyEnv(cfg *Config) error {
	ov := envOverrides{
		NodeID:         cfg.NodeID,
		DataDir:        cfg.DataDir,
		Storage:        cfg.Storage,
		RPCPort:        cfg.RPCPort,
		RPCAuthToken:   cfg.RPCAuthToken,
		StrictAccounts: cfg.StrictAccounts,
		ChainID:        cfg.Genesis.ChainID,
	}
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	cfg.NodeID = ov.NodeID
	cfg.DataDir = ov.DataDir
	cfg.Storage = ov.Storage
	cfg.RPCPort = ov.RPCPort
	cfg.RPCAuthToken = ov.RPCAuthToken
	cfg.StrictAccounts = ov.StrictAccounts
	cfg.Genesis.ChainID = ov.ChainID
	return nil
}

// Validate checks the settings a node cannot start without.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageLevelDB, StorageSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id is required")
	}
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port %d out of range", c.RPCPort)
	}
	return nil
}

// Save writes the config to path, as YAML when the extension says so and as
// formatted JSON otherwise.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
