//go:build unix

package runtime

import "golang.org/x/sys/unix"

func signalTerminate() unix.Signal {
	return unix.SIGTERM
}
