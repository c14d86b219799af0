package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/byteowlz/hstry/internal/config"
	"github.com/byteowlz/hstry/internal/lockfile"
)

// LockInfo is the JSON metadata written into the service's lock file:
// PID, version, start time, and the store path so `hstry service
// status` can report which store a running service is serving.
type LockInfo struct {
	PID       int       `json:"pid"`
	Store     string    `json:"store"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"startedAt"`
}

// SocketPath returns the UNIX socket path the Service's RPC endpoint
// listens on.
func SocketPath() string {
	return filepath.Join(config.StateDir(), "service.sock")
}

func lockPath() string {
	return filepath.Join(config.StateDir(), "service.lock")
}

func pidPath() string {
	return filepath.Join(config.StateDir(), "service.pid")
}

// lock is a held exclusive lock on the service's lock file, released by
// Close.
type lock struct {
	f *os.File
}

// acquireLock opens (creating if needed) the lock file and tries to
// take a non-blocking exclusive flock on it: open, flock, write JSON
// metadata, write a sidecar PID file.
func acquireLock(storePath, version string) (*lock, error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("service: ensure state dir: %w", err)
	}

	path := lockPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("service: open lock file: %w", err)
	}

	if err := lockfile.FlockExclusiveNonBlocking(f); err != nil {
		_ = f.Close()
		if lockfile.IsLocked(err) {
			return nil, lockfile.ErrLocked
		}
		return nil, fmt.Errorf("service: flock: %w", err)
	}

	info := LockInfo{PID: os.Getpid(), Store: storePath, Version: version, StartedAt: time.Now().UTC()}
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	_ = enc.Encode(info)
	_ = f.Sync()

	_ = os.WriteFile(pidPath(), []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o600)

	return &lock{f: f}, nil
}

func (l *lock) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = lockfile.FlockUnlock(l.f)
	err := l.f.Close()
	l.f = nil
	_ = os.Remove(pidPath())
	return err
}

// ReadLockInfo reads the currently-held lock file's metadata, for
// `hstry service status`, without itself acquiring
// the lock.
func ReadLockInfo() (*LockInfo, error) {
	data, err := os.ReadFile(lockPath()) // #nosec G304 -- fixed XDG state path, not user input
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("service: parse lock file: %w", err)
	}
	return &info, nil
}

// IsRunning reports whether a live process holds the service lock.
func IsRunning() bool {
	info, err := ReadLockInfo()
	if err != nil {
		return false
	}
	return processAlive(info.PID)
}

// Stop signals a running service to shut down gracefully (SIGTERM on
// unix; see lifecycle_unix.go/lifecycle_windows.go).
func Stop() error {
	info, err := ReadLockInfo()
	if err != nil {
		return fmt.Errorf("service: not running: %w", err)
	}
	if !processAlive(info.PID) {
		return fmt.Errorf("service: stale lock file, process %d not running", info.PID)
	}
	return terminateProcess(info.PID)
}
