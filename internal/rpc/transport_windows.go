//go:build windows

package rpc

import (
	"net"
	"os"
	"time"
)

// Windows has no UNIX domain sockets the service can rely on across
// supported versions, so the "socket path" is a file holding the
// loopback address the service actually listens on.

func listenRPC(socketPath string) (net.Listener, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(socketPath, []byte(l.Addr().String()), 0o600); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func listenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

func dialRPC(socketPath string, timeout time.Duration) (net.Conn, error) {
	addr, err := os.ReadFile(socketPath)
	if err != nil {
		return nil, ErrDaemonUnavailable
	}
	return net.DialTimeout("tcp", string(addr), timeout)
}

func dialTCP(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

func endpointExists(socketPath string) bool {
	_, err := os.Stat(socketPath)
	return err == nil
}
