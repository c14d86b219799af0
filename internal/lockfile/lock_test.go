package lockfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFlockFunctions(t *testing.T) {
	t.Run("FlockExclusiveBlocking and FlockUnlock", func(t *testing.T) {
		tmpDir := t.TempDir()
		lockPath := filepath.Join(tmpDir, "test.lock")

		if err := os.WriteFile(lockPath, []byte("test"), 0644); err != nil {
			t.Fatalf("failed to create lock file: %v", err)
		}

		f, err := os.OpenFile(lockPath, os.O_RDWR, 0644)
		if err != nil {
			t.Fatalf("failed to open lock file: %v", err)
		}
		defer f.Close()

		if err := FlockExclusiveBlocking(f); err != nil {
			t.Errorf("FlockExclusiveBlocking failed: %v", err)
		}

		if err := FlockUnlock(f); err != nil {
			t.Errorf("FlockUnlock failed: %v", err)
		}
	})

	t.Run("flockExclusive non-blocking succeeds on unlocked file", func(t *testing.T) {
		tmpDir := t.TempDir()
		lockPath := filepath.Join(tmpDir, "test.lock")

		if err := os.WriteFile(lockPath, []byte("test"), 0644); err != nil {
			t.Fatalf("failed to create lock file: %v", err)
		}

		f, err := os.OpenFile(lockPath, os.O_RDWR, 0644)
		if err != nil {
			t.Fatalf("failed to open lock file: %v", err)
		}
		defer f.Close()

		if err := flockExclusive(f); err != nil {
			t.Errorf("flockExclusive should succeed on unlocked file: %v", err)
		}

		FlockUnlock(f)
	})

	t.Run("flockExclusive returns errDaemonLocked when already locked", func(t *testing.T) {
		tmpDir := t.TempDir()
		lockPath := filepath.Join(tmpDir, "test.lock")

		if err := os.WriteFile(lockPath, []byte("test"), 0644); err != nil {
			t.Fatalf("failed to create lock file: %v", err)
		}

		f1, err := os.OpenFile(lockPath, os.O_RDWR, 0644)
		if err != nil {
			t.Fatalf("failed to open lock file: %v", err)
		}
		defer f1.Close()

		if err := FlockExclusiveBlocking(f1); err != nil {
			t.Fatalf("failed to acquire first lock: %v", err)
		}
		defer FlockUnlock(f1)

		f2, err := os.OpenFile(lockPath, os.O_RDWR, 0644)
		if err != nil {
			t.Fatalf("failed to open second lock file handle: %v", err)
		}
		defer f2.Close()

		err = flockExclusive(f2)
		if err != errDaemonLocked {
			t.Errorf("expected errDaemonLocked, got %v", err)
		}
	})
}

func TestIsProcessRunning(t *testing.T) {
	t.Run("current process is running", func(t *testing.T) {
		if !isProcessRunning(os.Getpid()) {
			t.Error("expected current process to be running")
		}
	})

	t.Run("non-existent process is not running", func(t *testing.T) {
		if isProcessRunning(99999) {
			t.Error("expected non-existent process to not be running")
		}
	})

	t.Run("parent process is running", func(t *testing.T) {
		ppid := os.Getppid()
		if ppid > 0 && !isProcessRunning(ppid) {
			t.Error("expected parent process to be running")
		}
	})
}
