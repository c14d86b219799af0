//go:build windows

package runtime

import "os"

// Windows has no SIGTERM; forceful kill is the only portable option.
func signalTerminate() os.Signal {
	return os.Kill
}
