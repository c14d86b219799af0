package rpc

import "errors"

// ErrDaemonUnavailable indicates that no running Service could be
// reached at the expected endpoint.
var ErrDaemonUnavailable = errors.New("service unavailable")
