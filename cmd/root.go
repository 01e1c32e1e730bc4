package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentic-research/rota/api"
	"github.com/agentic-research/rota/internal/calendar"
	"github.com/agentic-research/rota/internal/store"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	dbPath     string
	teamName   string
	userID     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "rota",
	Short:         "Rota: virtualized rotating shift-calendar engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to HCL pattern configuration (built-in rotation if empty)")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to SQLite exception database (in-memory if empty)")
	rootCmd.PersistentFlags().StringVarP(&teamName, "team", "t", "A", "Team whose calendar to merge")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "default", "User whose exceptions to overlay")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// loadConfig resolves the pattern configuration: the --config file if
// given, the built-in rotation otherwise.
func loadConfig(logger *zap.Logger) (*api.Config, error) {
	if configPath == "" {
		logger.Debug("no configuration given, using built-in rotation")
		return api.Default(), nil
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return api.Load(osfs.New(filepath.Dir(abs)), filepath.Base(abs), logger)
}

// openStore resolves the exception store: SQLite when --db is set, an
// empty in-memory store otherwise. The close func is a no-op for the
// memory store.
func openStore(logger *zap.Logger) (store.Store, func(), error) {
	if dbPath == "" {
		logger.Debug("no database given, using empty in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}
	s, err := store.OpenSQLite(dbPath, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func newGenerator(logger *zap.Logger) (*calendar.Generator, error) {
	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, err
	}
	return calendar.NewGenerator(cfg)
}
