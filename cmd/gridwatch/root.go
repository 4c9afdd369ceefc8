// Root command for the gridwatch CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/gridcache/internal/paths"
	"github.com/mesh-intelligence/gridcache/internal/sqlite"
	"github.com/mesh-intelligence/gridcache/internal/wsbackend"
	"github.com/mesh-intelligence/gridcache/pkg/gridcache"
	"github.com/mesh-intelligence/gridcache/pkg/types"
)

// Global flag values.
var (
	flagConfigDir string
	flagBackend   string
	flagDBPath    string
	flagURL       string
	flagVerbose   bool
)

// cliConfig holds the resolved configuration, set by PersistentPreRunE.
var cliConfig config

// logger is the process logger, set by PersistentPreRunE.
var logger *slog.Logger

var rootCmd = &cobra.Command{
	Use:     "gridwatch",
	Short:   "gridwatch streams and inspects cached table data",
	Version: gridcache.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		}))

		configDir, err := paths.ResolveConfigDir(flagConfigDir)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(configDir)
		if err != nil {
			return err
		}
		cliConfig = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "backend kind: sqlite or websocket (default: from config)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "database file for the sqlite backend (default: $(CWD)/.gridwatch.db)")
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "websocket URL for the websocket backend")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(getCmd)
}

// openBackend opens the configured backend. The returned closer releases it.
func openBackend(ctx context.Context) (types.Backend, io.Closer, error) {
	kind := cliConfig.backendKind
	if flagBackend != "" {
		kind = flagBackend
	}
	switch kind {
	case backendSQLite:
		dbPath, err := paths.ResolveDBPath(flagDBPath, cliConfig.dbPath)
		if err != nil {
			return nil, nil, err
		}
		b, err := sqlite.Open(dbPath, cliConfig.schema.TableID, logger)
		if err != nil {
			return nil, nil, err
		}
		return b, closerFunc(b.Close), nil
	case backendWebsocket:
		url := cliConfig.url
		if flagURL != "" {
			url = flagURL
		}
		if url == "" {
			return nil, nil, fmt.Errorf("websocket backend selected but no url configured")
		}
		b, err := wsbackend.Dial(ctx, url, logger)
		if err != nil {
			return nil, nil, err
		}
		return b, closerFunc(b.Close), nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", kind)
	}
}

// openCache opens the backend and a table cache on top of it.
func openCache(ctx context.Context) (types.TableCache, io.Closer, error) {
	backend, closer, err := openBackend(ctx)
	if err != nil {
		return nil, nil, err
	}
	cache, err := gridcache.NewTableCache(backend, cliConfig.schema, types.Config{UnloadDebounce: cliConfig.debounce}, logger)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return cache, closerFunc(func() error {
		cache.Close()
		return closer.Close()
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
