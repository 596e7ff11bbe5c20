package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/crytic/forkdb/chain/config"
	"github.com/crytic/forkdb/chain/state"
	"github.com/crytic/forkdb/chain/state/cache"
	"github.com/crytic/forkdb/chain/state/snapshot"
	"github.com/crytic/forkdb/cmd/exitcodes"
	"github.com/crytic/forkdb/logging"
	"github.com/crytic/forkdb/logging/colors"
	"github.com/crytic/forkdb/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// readProjectConfig resolves the project configuration for a command and applies the command's flags to it:
// #1: We will search for either a custom config file (via --config) or the default (forkdb.json).
// If we find it, read it. If we can't read it, throw an error.
// #2: If a custom file was provided (--config was used), and we can't find the file, throw an error.
// #3: If forkdb.json can't be found, use the default project configuration.
func readProjectConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	var projectConfig *config.ProjectConfig

	// Check to see if --config flag was used and store the value of --config flag
	configFlagUsed := cmd.Flags().Changed("config")
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If --config was not used, look for `forkdb.json` in the current work directory
	if !configFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		configPath = filepath.Join(workingDirectory, DefaultProjectConfigFilename)
	}

	// Check to see if the file exists at configPath
	exists, err := utils.FileExists(configPath)
	if err != nil {
		return nil, err
	}

	switch {
	case exists:
		// Possibility #1: File was found
		cmdLogger.Debug("Reading the configuration file at: ", colors.Bold, configPath, colors.Reset)
		projectConfig, err = config.ReadProjectConfigFromFile(configPath)
		if err != nil {
			return nil, err
		}
	case configFlagUsed:
		// Possibility #2: If the --config flag was used, and we couldn't find the file, we'll throw an error
		return nil, errors.Errorf("could not find the config file at %v", configPath)
	default:
		// Possibility #3: --config flag was not used and forkdb.json was not found, so use the default project config
		cmdLogger.Debug("Unable to find the config file at ", configPath, ", will use the default project configuration")
		projectConfig = config.DefaultProjectConfig()
	}

	// Update the project configuration given whatever flags were set using the CLI
	err = updateProjectConfigWithForkFlags(cmd, projectConfig)
	if err != nil {
		return nil, err
	}
	return projectConfig, projectConfig.Validate()
}

// setupLogging replaces the global logger with one built from the project configuration: console output at the
// configured level, plus a structured log file if a log directory is configured. The returned function closes the
// log file, if any.
func setupLogging(projectConfig *config.ProjectConfig) (func(), error) {
	if projectConfig.Logging.NoColor {
		colors.DisableColor()
	}

	logger := logging.NewLogger(projectConfig.Logging.Level)
	logger.AddWriter(os.Stdout, logging.UNSTRUCTURED, !projectConfig.Logging.NoColor)

	closeLog := func() {}
	if projectConfig.Logging.LogDirectory != "" {
		filename := "log-" + strconv.FormatInt(time.Now().Unix(), 10) + ".log"
		file, err := utils.CreateFile(projectConfig.Logging.LogDirectory, filename)
		if err != nil {
			return nil, err
		}
		logger.AddWriter(file, logging.STRUCTURED, false)
		closeLog = func() {
			_ = file.Close()
		}
	}

	logging.GlobalLogger = logger
	cmdLogger = logging.GlobalLogger.NewSubLogger("module", logging.CLI_SERVICE)
	return closeLog, nil
}

// openStore builds the store described by the project configuration. Without an RPC URL the store is purely
// in-memory; otherwise it forks from the remote at the configured block, through a persistent cache if one is
// configured. If resume is not nil, the store starts from its entries. The returned function releases the remote
// connections and the cache.
func openStore(ctx context.Context, projectConfig *config.ProjectConfig, resume *snapshot.Data) (*state.Store, func(), error) {
	if !projectConfig.Fork.IsForking() {
		cmdLogger.Info("No RPC URL configured, state is purely local")
		if resume == nil {
			return state.NewMemoryStore(), func() {}, nil
		}
		store, err := state.Restore(resume)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}

	block, err := projectConfig.Fork.BlockReference()
	if err != nil {
		return nil, nil, err
	}
	backend, err := state.NewRPCBackend(ctx, projectConfig.Fork.RpcUrl, block, projectConfig.Fork.PoolSize)
	if err != nil {
		return nil, nil, err
	}
	cmdLogger.Info("Forking from ", colors.Bold, backend.Endpoint(), colors.Reset, " at block ", colors.Bold, backend.PinnedBlock(), colors.Reset)

	var fetchCache cache.StateCache
	if projectConfig.Cache.Persistent {
		directory := projectConfig.Cache.Directory
		if directory == "" {
			directory, err = os.Getwd()
			if err != nil {
				backend.Close()
				return nil, nil, errors.WithStack(err)
			}
		} else if err = utils.MakeDirectory(directory); err != nil {
			backend.Close()
			return nil, nil, err
		}
		fetchCache, err = cache.NewPersistentCache(ctx, directory, backend.Endpoint(), backend.PinnedBlock().String())
		if err != nil {
			backend.Close()
			return nil, nil, err
		}
		cmdLogger.Debug("Using the persistent cache under ", filepath.Join(directory, cache.CacheDirectoryName))
	}

	// Count the reads the remote answered, so a run can report how much it relied on the remote
	var remoteReads atomic.Int64
	backend.Events.RemoteFetch.Subscribe(func(event state.RemoteFetchEvent) error {
		remoteReads.Add(1)
		cmdLogger.Trace("Remote ", event.Op, " read took ", event.Duration)
		return nil
	})

	release := func() {
		cmdLogger.Info("Made ", remoteReads.Load(), " remote read(s)")
		if closer, ok := fetchCache.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				cmdLogger.Warn("Failed to close the persistent cache", err)
			}
		}
		backend.Close()
	}
	if resume == nil {
		return state.NewForkingStore(backend, fetchCache), release, nil
	}
	store, err := state.RestoreForking(resume, backend, fetchCache)
	if err != nil {
		release()
		return nil, nil, err
	}
	cmdLogger.Info("Resuming from snapshot ", colors.Bold, resume.ID.String(), colors.Reset)
	return store, release, nil
}

// exitCodeForError maps an error to the exit code describing its category.
func exitCodeForError(err error) int {
	switch {
	case errors.Is(err, state.ErrRemoteFetch):
		return exitcodes.ExitCodeRemoteError
	case errors.Is(err, snapshot.ErrFormat), errors.Is(err, state.ErrBlockMismatch):
		return exitcodes.ExitCodeSnapshotError
	default:
		return exitcodes.ExitCodeHandledError
	}
}

// handleCommandError logs an error that ended a command and attaches the exit code for its category.
func handleCommandError(commandName string, err error) error {
	cmdLogger.Error(fmt.Sprintf("Failed to run the %s command", commandName), err)
	return exitcodes.NewErrorWithExitCode(err, exitCodeForError(err))
}

// getBlockNumbersFlag reads a list of block numbers from a uint slice flag.
func getBlockNumbersFlag(cmd *cobra.Command, name string) ([]uint64, error) {
	values, err := cmd.Flags().GetUintSlice(name)
	if err != nil {
		return nil, err
	}
	numbers := make([]uint64, len(values))
	for i, value := range values {
		numbers[i] = uint64(value)
	}
	return numbers, nil
}
