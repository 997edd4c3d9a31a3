// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"fmt"
	"os"
)

// OpenMode translates os.OpenFile flags into a provider mode string:
// "r", "w" or "rw" for the access mode, followed by "a" for O_APPEND
// and "t" for O_TRUNC. Other flags have no provider equivalent and are
// ignored.
func OpenMode(flag int) string {
	var mode string
	switch {
	case flag&os.O_RDWR != 0:
		mode = "rw"
	case flag&os.O_WRONLY != 0:
		mode = "w"
	default:
		mode = "r"
	}
	if flag&os.O_APPEND != 0 {
		mode += "a"
	}
	if flag&os.O_TRUNC != 0 {
		mode += "t"
	}
	return mode
}

// ParseMode is the provider-side inverse of OpenMode. It accepts the
// modes a provider is expected to honor and returns os.OpenFile flags.
// Write modes imply O_CREATE, and a bare "w" truncates.
func ParseMode(mode string) (int, error) {
	switch mode {
	case "r":
		return os.O_RDONLY, nil
	case "w", "wt":
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, nil
	case "wa":
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, nil
	case "rw":
		return os.O_RDWR | os.O_CREATE, nil
	case "rwt":
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC, nil
	case "rwa":
		return os.O_RDWR | os.O_CREATE | os.O_APPEND, nil
	default:
		return 0, fmt.Errorf("%w: bad mode %q", ErrIllegalArgument, mode)
	}
}
