package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// unitName is both the systemd unit name (hstry.service) and the
// LaunchAgent label (reverse-DNS by convention).
const unitName = "hstry.service"

func launchdTarget() string {
	return fmt.Sprintf("gui/%d/com.hstry.service", os.Getuid())
}

func linuxUnitPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "systemd", "user", unitName)
}

func darwinPlistPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "LaunchAgents", "com.hstry.service.plist")
}

// installServiceUnit writes a unit file for the current platform and
// registers it with the platform's service manager: a systemd --user
// unit on Linux, a LaunchAgent plist on macOS.
func installServiceUnit() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("service: resolve executable path: %w", err)
	}

	switch runtime.GOOS {
	case "linux":
		return installSystemdUserUnit(exe)
	case "darwin":
		return installLaunchdAgent(exe)
	default:
		return fmt.Errorf("service enable: no managed service integration on %s; run 'hstry service run' under your own supervisor", runtime.GOOS)
	}
}

func uninstallServiceUnit() error {
	ctx := context.Background()
	switch runtime.GOOS {
	case "linux":
		path := linuxUnitPath()
		_ = runCmd(ctx, "systemctl", "--user", "disable", "--now", unitName)
		return os.Remove(path)
	case "darwin":
		path := darwinPlistPath()
		_ = runCmd(ctx, "launchctl", "bootout", launchdTarget())
		return os.Remove(path)
	default:
		return fmt.Errorf("service disable: no managed service integration on %s", runtime.GOOS)
	}
}

func installSystemdUserUnit(exe string) error {
	path := linuxUnitPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("service: create unit dir: %w", err)
	}

	unit := fmt.Sprintf(`[Unit]
Description=hstry conversational history engine

[Service]
Type=simple
ExecStart=%s service run
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`, exe)

	if err := os.WriteFile(path, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("service: write unit file: %w", err)
	}

	ctx := context.Background()
	if err := runCmd(ctx, "systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	return runCmd(ctx, "systemctl", "--user", "enable", "--now", unitName)
}

func installLaunchdAgent(exe string) error {
	path := darwinPlistPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("service: create LaunchAgents dir: %w", err)
	}

	plist := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>com.hstry.service</string>
	<key>ProgramArguments</key>
	<array>
		<string>%s</string>
		<string>service</string>
		<string>run</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
</dict>
</plist>
`, exe)

	if err := os.WriteFile(path, []byte(plist), 0o644); err != nil {
		return fmt.Errorf("service: write plist: %w", err)
	}

	ctx := context.Background()
	return runCmd(ctx, "launchctl", "bootstrap", fmt.Sprintf("gui/%d", os.Getuid()), path)
}
