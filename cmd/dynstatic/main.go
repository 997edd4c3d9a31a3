// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/learningequality/dynstatic/lib/logging"
	"github.com/learningequality/dynstatic/lib/version"
)

const usage = `Usage:
  dynstatic compress DIR...
  dynstatic catalog import --catalog DB VOLUME DIR
  dynstatic catalog volumes --catalog DB
  dynstatic catalog remove --catalog DB VOLUME
  dynstatic catalog tree-uri --catalog DB VOLUME [PATH]
  dynstatic catalog ls --catalog DB URI
  dynstatic version
`

// errUsage is returned for malformed command lines; main prints the
// usage text for it.
var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, logging.NewCommandLogger())
	stop()
	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command", errUsage)
	}
	switch args[0] {
	case "--version", "version":
		version.Fprint(stdout, "dynstatic")
		return nil
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	case "compress":
		return runCompress(ctx, args[1:], stdout, logger)
	case "catalog":
		return runCatalog(ctx, args[1:], stdout, logger)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

// parseFlags parses args with flagSet and checks the positional
// argument count lies in [minArgs, maxArgs]. A negative maxArgs means
// no upper bound.
func parseFlags(flagSet *pflag.FlagSet, args []string, minArgs, maxArgs int) ([]string, error) {
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errUsage, flagSet.Name(), err)
	}
	positional := flagSet.Args()
	if len(positional) < minArgs || (maxArgs >= 0 && len(positional) > maxArgs) {
		return nil, fmt.Errorf("%w: %s: wrong number of arguments", errUsage, flagSet.Name())
	}
	return positional, nil
}
