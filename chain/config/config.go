package config

import (
	"encoding/json"
	"os"

	"github.com/crytic/forkdb/chain/state"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ProjectConfig describes the configuration of a forkdb project: where state is forked from, how fetched state is
// cached, and how logs are emitted.
type ProjectConfig struct {
	// Fork describes the remote chain to fork from.
	Fork ForkConfig `json:"fork"`

	// Cache describes how remote reads are cached.
	Cache CacheConfig `json:"cache"`

	// Logging describes the configuration used for logging
	Logging LoggingConfig `json:"logging"`
}

// ForkConfig describes the remote endpoint and the block all remote reads are pinned to.
type ForkConfig struct {
	// RpcUrl is the JSON-RPC endpoint to fork from. If empty, the store runs purely in memory.
	RpcUrl string `json:"rpcUrl"`

	// RpcBlock is the block number to pin reads to. Zero pins to the latest block at startup, unless RpcBlockHash
	// is set.
	RpcBlock uint64 `json:"rpcBlock"`

	// RpcBlockHash pins reads to the block with this hash. It takes precedence over RpcBlock.
	RpcBlockHash string `json:"rpcBlockHash,omitempty"`

	// PoolSize is the number of RPC clients to open against RpcUrl.
	PoolSize uint `json:"poolSize"`
}

// CacheConfig describes the fetch cache placed between the store and the remote.
type CacheConfig struct {
	// Persistent describes whether fetched values are written to disk so later sessions at the same block reuse
	// them.
	Persistent bool `json:"persistent"`

	// Directory is the directory under which the persistent cache directory is created. If empty, the working
	// directory is used.
	Directory string `json:"directory"`
}

// LoggingConfig describes the configuration options used for logging
type LoggingConfig struct {
	// Level describes whether logs of certain severity levels (eg info, warning, etc.) will be emitted or discarded.
	// Increasing level values represent more severe logs
	Level zerolog.Level `json:"level"`

	// LogDirectory describes the directory where structured log _files_ will be outputted. If the string is empty, then
	// no log files are kept
	LogDirectory string `json:"logDirectory"`

	// NoColor indicates whether or not log messages should be displayed with colored formatting.
	NoColor bool `json:"noColor"`
}

// IsForking returns whether the configuration names a remote to fork from.
func (f ForkConfig) IsForking() bool {
	return f.RpcUrl != ""
}

// BlockReference returns the block the configuration pins remote reads to. The zero reference means the latest
// block.
func (f ForkConfig) BlockReference() (state.BlockReference, error) {
	if f.RpcBlockHash != "" {
		b, err := hexutil.Decode(f.RpcBlockHash)
		if err != nil || len(b) != common.HashLength {
			return state.BlockReference{}, errors.Errorf("malformed fork block hash %q", f.RpcBlockHash)
		}
		return state.BlockByHash(common.BytesToHash(b)), nil
	}
	if f.RpcBlock != 0 {
		return state.BlockByNumber(f.RpcBlock), nil
	}
	return state.BlockReference{}, nil
}

// ReadProjectConfigFromFile reads a JSON-serialized ProjectConfig from a provided file path. Fields missing from the
// file keep their default values.
// Returns the ProjectConfig if it succeeds, or an error if one occurs.
func ReadProjectConfigFromFile(path string) (*ProjectConfig, error) {
	// Read our project configuration file data
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Parse the project configuration over the defaults
	projectConfig := DefaultProjectConfig()
	err = json.Unmarshal(b, projectConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse project configuration %s", path)
	}

	return projectConfig, nil
}

// WriteToFile writes the ProjectConfig to a provided file path in a JSON-serialized format.
// Returns an error if one occurs.
func (p *ProjectConfig) WriteToFile(path string) error {
	// Serialize the configuration
	b, err := json.MarshalIndent(p, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}

	// Save it to the provided output path and return the result
	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Validate validates that the ProjectConfig meets certain requirements.
// Returns an error if one occurs.
func (p *ProjectConfig) Validate() error {
	if p.Fork.IsForking() {
		// Verify we have at least one client to issue requests with
		if p.Fork.PoolSize == 0 {
			return errors.Errorf("fork pool size must be a positive number")
		}

		// Verify the block hash, if any, is well-formed
		if _, err := p.Fork.BlockReference(); err != nil {
			return err
		}

		if p.Fork.RpcBlockHash != "" && p.Fork.RpcBlock != 0 {
			return errors.Errorf("only one of the fork block number and block hash may be set")
		}
	} else if p.Fork.RpcBlock != 0 || p.Fork.RpcBlockHash != "" {
		return errors.Errorf("a fork block was provided without an RPC URL")
	}

	if p.Cache.Persistent && !p.Fork.IsForking() {
		return errors.Errorf("a persistent cache requires an RPC URL to fork from")
	}

	// Verify the log level is one zerolog knows about
	if p.Logging.Level < zerolog.TraceLevel || p.Logging.Level > zerolog.Disabled {
		return errors.Errorf("invalid log level %d", p.Logging.Level)
	}
	return nil
}
