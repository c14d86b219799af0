package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/byteowlz/hstry/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Inspect or edit config.toml",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if jsonOutput {
			return printJSON(cfg)
		}
		return toml.NewEncoder(os.Stdout).Encode(cfg)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file's path",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Println(config.Path())
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config.toml in $EDITOR",
	RunE: func(cmd *cobra.Command, _ []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		if err := config.EnsureDirs(); err != nil {
			return err
		}
		if _, err := os.Stat(config.Path()); os.IsNotExist(err) {
			if err := config.Default().Save(); err != nil {
				return err
			}
		}
		c := exec.CommandContext(cmd.Context(), editor, config.Path())
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
		return c.Run()
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one config field and save (store.backend, service.poll_interval_secs, script_host)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		switch key {
		case "store.backend":
			cfg.Store.Backend = value
		case "script_host":
			cfg.ScriptHost = value
		case "service.poll_interval_secs":
			var secs int
			if _, err := fmt.Sscanf(value, "%d", &secs); err != nil {
				return fmt.Errorf("config set: %s must be an integer: %w", key, err)
			}
			cfg.Service.PollIntervalSecs = secs
		default:
			return fmt.Errorf("config set: unknown key %q", key)
		}
		return cfg.Save()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd, configEditCmd, configSetCmd)
}
