// Command hstry is the thin CLI over the engine packages under
// internal/: it never implements ingestion, search ranking, or dedup
// logic itself, only flag parsing, output rendering, and the
// Service-RPC-if-up-else-direct-Store dispatch. The Service is opt-in:
// no data command spawns it transparently.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/byteowlz/hstry/internal/config"

	_ "github.com/byteowlz/hstry/internal/storage/dolt"
	_ "github.com/byteowlz/hstry/internal/storage/mysql"
	_ "github.com/byteowlz/hstry/internal/storage/sqlite"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	jsonOutput bool
	noService  bool
	cfgFile    string

	cfg *config.Config

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCodeFor(err)
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:           "hstry",
	Short:         "Aggregate, search, and sync AI coding assistant conversation history",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "edit" || cmd.Name() == "path" {
			return nil // config {path|edit} must work even with a malformed config file
		}
		loaded, err := loadConfig()
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Ingestion & Search:"},
		&cobra.Group{ID: "manage", Title: "Sources & Adapters:"},
		&cobra.Group{ID: "remote", Title: "Remote & Service:"},
		&cobra.Group{ID: "setup", Title: "Configuration:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default "+config.Path()+")")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of formatted text")
	rootCmd.PersistentFlags().BoolVar(&noService, "no-service", os.Getenv(config.EnvNoService) != "", "force direct Store access, bypassing the background Service")

	rootCmd.AddCommand(
		scanCmd, syncCmd, importCmd,
		searchCmd, indexCmd,
		listCmd, showCmd, exportCmd, dedupCmd,
		sourceCmd, adaptersCmd,
		remoteCmd, serviceCmd,
		configCmd, statsCmd, compactCmd,
		mmryCmd,
	)
}

// loadConfig layers viper's file < environment < flag precedence over
// internal/config's own TOML file, using
// internal/config purely for the shape and XDG path resolution and
// viper purely for the HSTRY_* environment override plumbing.
func loadConfig() (*config.Config, error) {
	fileCfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path(cfgFile))
	v.SetConfigType("toml")
	v.SetEnvPrefix("HSTRY")
	v.AutomaticEnv()
	_ = v.ReadInConfig() // absence is not an error; fileCfg already carries defaults

	if v.IsSet("service.poll_interval_secs") {
		fileCfg.Service.PollIntervalSecs = v.GetInt("service.poll_interval_secs")
	}
	if v.IsSet("store.backend") {
		fileCfg.Store.Backend = v.GetString("store.backend")
	}
	return fileCfg, nil
}

func path(override string) string {
	if override != "" {
		return override
	}
	return config.Path()
}
