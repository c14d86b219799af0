//go:build windows

package service

import (
	"os"
)

func processAlive(pid int) bool {
	// os.FindProcess always succeeds on windows without actually
	// checking liveness; the lock file's own flock is the authoritative
	// signal there, so this is best-effort only.
	_, err := os.FindProcess(pid)
	return err == nil
}

func terminateProcess(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
