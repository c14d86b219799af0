package main

import (
	"errors"

	"github.com/byteowlz/hstry/internal/types"
)

// errConfig wraps a config-loading failure so exitCodeFor can tell it
// apart from a plain usage error.
var errConfig = errors.New("config error")

// errPartial signals a multi-source run where at least one source
// failed.
var errPartial = errors.New("partial failure")

// exitCodeFor maps an error returned from the command tree onto the
// documented exit codes: 0 success, 1 usage, 2 runtime, 3 partial.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errPartial):
		return 3
	case errors.Is(err, types.ErrUsage), errors.Is(err, types.ErrAdapterNotFound):
		return 1
	case errors.Is(err, errConfig), errors.Is(err, types.ErrConfig):
		return 1
	default:
		return 2
	}
}
