package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/byteowlz/hstry/internal/adapter/registry"
	"github.com/byteowlz/hstry/internal/config"
	"github.com/byteowlz/hstry/internal/index"
	"github.com/byteowlz/hstry/internal/rpc"
	"github.com/byteowlz/hstry/internal/service"
	"github.com/byteowlz/hstry/internal/storage/factory"
)

var serviceCmd = &cobra.Command{
	Use:     "service",
	GroupID: "remote",
	Short:   "Run, install, or control the background Service",
	Long: `service drives internal/service.Service: a singleton background
process that watches every enabled source for changes, runs the
Ingestor and Dedup Engine automatically, and serves CLI requests over
a local RPC socket instead of re-opening the Store per invocation.
It is opt-in; no command auto-starts it.`,
}

var serviceRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Service in the foreground (blocks until interrupted)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := config.EnsureDirs(); err != nil {
			return err
		}
		store, err := factory.NewFromConfig(ctx, cfg, config.DataDir())
		if err != nil {
			return err
		}
		defer store.Close()

		idx, err := index.Open(ctx, indexPath())
		if err != nil {
			return err
		}
		defer idx.Close()
		if cfg.Search.IndexBatchSize > 0 {
			idx.BatchSize = cfg.Search.IndexBatchSize
		}

		svc := &service.Service{
			Store:            store,
			Index:            idx,
			Registry:         registry.New(cfg),
			SourcePrecedence: cfg.Dedup.SourcePrecedence,
			PollInterval:     time.Duration(cfg.Service.PollIntervalSecs) * time.Second,
			StorePath:        cfg.Database,
			Version:          version,
		}
		return svc.Run(ctx)
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the Service is running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !service.IsRunning() {
			if jsonOutput {
				return printJSON(map[string]any{"running": false})
			}
			fmt.Println("service is not running")
			return nil
		}
		info, err := service.ReadLockInfo()
		if err != nil {
			return err
		}
		network, addr, epErr := rpc.DiscoverEndpoint(service.SocketPath())
		if jsonOutput {
			out := map[string]any{"running": true, "info": info}
			if epErr == nil {
				out["endpoint"] = network + "://" + addr
			}
			return printJSON(out)
		}
		fmt.Printf("running: pid=%d store=%s version=%s started=%s\n", info.PID, info.Store, info.Version, info.StartedAt.Format(time.RFC3339))
		if epErr == nil {
			fmt.Printf("endpoint: %s://%s\n", network, addr)
		}
		return nil
	},
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running Service to shut down gracefully",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return service.Stop()
	},
}

var serviceRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Stop the running Service, then start it as a managed unit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if service.IsRunning() {
			if err := service.Stop(); err != nil {
				return err
			}
		}
		return startManagedService(cmd.Context())
	},
}

var serviceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Service as a managed background unit (installing one first if needed)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return startManagedService(cmd.Context())
	},
}

var serviceEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Install and start a user-level service unit (systemd --user on Linux, launchd on macOS)",
	Long: `enable writes a unit file targeting "hstry service run" and
registers it with the platform's service manager: a systemd --user
unit on Linux, a LaunchAgent plist on macOS. Anywhere else, enable
fails (as does "service start") and the Service must be run manually
with "hstry service run" in a supervised shell.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := installServiceUnit(); err != nil {
			return err
		}
		fmt.Println("service unit installed and started")
		return nil
	},
}

var serviceDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Stop and uninstall the user-level service unit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return uninstallServiceUnit()
	},
}

func init() {
	serviceCmd.AddCommand(serviceRunCmd, serviceStartCmd, serviceRestartCmd, serviceStopCmd, serviceStatusCmd, serviceEnableCmd, serviceDisableCmd)
}

// startManagedService starts the installed unit via the platform
// service manager, installing one first if none exists yet.
func startManagedService(ctx context.Context) error {
	switch runtime.GOOS {
	case "linux":
		if !unitExists(linuxUnitPath()) {
			if err := installServiceUnit(); err != nil {
				return err
			}
			return nil
		}
		return runCmd(ctx, "systemctl", "--user", "start", unitName)
	case "darwin":
		if !unitExists(darwinPlistPath()) {
			return installServiceUnit()
		}
		return runCmd(ctx, "launchctl", "kickstart", "-k", launchdTarget())
	default:
		return fmt.Errorf("service start: no managed service integration on %s; use 'hstry service run' directly", runtime.GOOS)
	}
}

func unitExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func runCmd(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, out)
	}
	return nil
}
