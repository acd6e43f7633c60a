// Package cli implements the apicache command line: the HTTP service and the
// operator commands that act on the same cache.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/illmade-knight/go-apicache/pkg/config"
	"github.com/illmade-knight/go-apicache/pkg/microservice"
)

// EnvConfigPath names the config file when --config is not given.
const EnvConfigPath = config.EnvPrefix + "CONFIG"

// isTerminal checks if the given writer is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// app is the state shared by every subcommand once the root has run.
type app struct {
	version string
	cfg     *config.Config
	logger  zerolog.Logger
}

// NewRootCmd creates the root command using the process environment.
func NewRootCmd(ver string) *cobra.Command {
	return NewRootCmdWithEnv(ver, os.LookupEnv)
}

// NewRootCmdWithEnv creates the root command with an explicit env lookup for testability.
func NewRootCmdWithEnv(ver string, lookupEnv func(string) (string, bool)) *cobra.Command {
	a := &app{version: ver}

	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:           "apicache",
		Short:         "Cache a remote JSON API and serve it",
		Long:          "apicache fetches a remote JSON API, caches the result and serves it to many readers.",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath == "" {
				configPath, _ = lookupEnv(EnvConfigPath)
			}
			cfg, err := config.Load(configPath, lookupEnv)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			a.cfg = cfg
			a.logger = newLogger(cfg.BaseConfig, debug, cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file (env "+EnvConfigPath+")")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.AddCommand(
		newServeCmd(a),
		newRefreshCmd(a),
		newInfoCmd(a),
		newClearCmd(a),
		newTokenCmd(a),
	)
	return cmd
}

const rootCmdExample = `  # Serve the cached API on the configured port
  apicache serve --config apicache.yaml

  # Force the next read to bypass the cache and fetch now
  apicache refresh

  # Show the state of the cache
  apicache info

  # Mint an admin token for the refresh endpoint
  apicache token --subject ops --role admin --ttl 1h`

// newLogger builds the process logger. Debug forces the debug level and
// console output.
func newLogger(cfg microservice.BaseConfig, debug bool, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	format := cfg.LogFormat
	if debug {
		level = zerolog.DebugLevel
		format = "console"
	}

	out := w
	if format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    !isTerminal(w),
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if cfg.ServiceName != "" {
		logger = logger.With().Str("service", cfg.ServiceName).Logger()
	}
	return logger
}
