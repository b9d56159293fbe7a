package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Napageneral/rolodex/internal/config"
	"github.com/Napageneral/rolodex/internal/db"
	"github.com/Napageneral/rolodex/internal/engine"
	"github.com/Napageneral/rolodex/internal/store"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rolodex",
		Short: "Contact aggregation and duplicate resolution",
		Long: `Rolodex aggregates raw contact records from many accounts into
contacts, finds duplicate records within an account and merges
them without losing facts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("rolodex %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	})

	rootCmd.AddCommand(
		newInitCmd(),
		newImportCmd(),
		newShowCmd(),
		newDupesCmd(),
		newMergeCmd(),
		newCallLogCmd(),
		newEventsCmd(),
		newWatchCmd(),
	)
	return rootCmd
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize rolodex config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			type Result struct {
				OK        bool   `json:"ok"`
				Message   string `json:"message,omitempty"`
				ConfigDir string `json:"config_dir,omitempty"`
				DBPath    string `json:"db_path,omitempty"`
			}

			configDir, err := config.GetConfigDir()
			if err != nil {
				return fmt.Errorf("failed to get config directory: %w", err)
			}
			if err := os.MkdirAll(configDir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := os.Stat(filepath.Join(configDir, "config.yaml")); os.IsNotExist(err) {
				if err := cfg.Save(); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
			}
			if err := db.Init(cfg); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			dbPath, err := db.GetPath(cfg)
			if err != nil {
				return fmt.Errorf("failed to get database path: %w", err)
			}

			result := Result{OK: true, ConfigDir: configDir, DBPath: dbPath, Message: "Rolodex initialized successfully"}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Config directory: %s\n", result.ConfigDir)
				fmt.Printf("✓ Database: %s\n", result.DBPath)
				fmt.Println("\nRolodex initialized successfully!")
			}
			return nil
		},
	}
}

// runtimeEnv is everything a command needs to talk to the store.
type runtimeEnv struct {
	cfg    *config.Config
	engine *engine.Engine
	log    *zap.SugaredLogger
	close  func()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.DisableStacktrace = true
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openEnv opens the store and logger. Callers defer close.
func openEnv() (*runtimeEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("invalid account profiles: %w", err)
	}
	if err := db.Init(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	database, err := db.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger := newLogger(cfg.Log.Level)
	sugar := logger.Sugar()
	return &runtimeEnv{
		cfg:    cfg,
		engine: engine.New(store.New(database), reg, sugar.Warnf),
		log:    sugar,
		close: func() {
			database.Close()
			_ = logger.Sync()
		},
	}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func reportError(err error) {
	if jsonOutput {
		printJSON(map[string]any{"ok": false, "message": err.Error()})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
