// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/learningequality/dynstatic/lib/document"
	"github.com/learningequality/dynstatic/lib/document/catalog"
)

func runCatalog(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: catalog needs a subcommand", errUsage)
	}

	var catalogPath, authority string
	flagSet := pflag.NewFlagSet("catalog "+args[0], pflag.ContinueOnError)
	flagSet.StringVar(&catalogPath, "catalog", "", "path to the catalog database (required)")
	flagSet.StringVar(&authority, "authority", catalog.DefaultAuthority, "document URI authority")

	var minArgs, maxArgs int
	switch args[0] {
	case "import":
		minArgs, maxArgs = 2, 2
	case "volumes":
		minArgs, maxArgs = 0, 0
	case "remove":
		minArgs, maxArgs = 1, 1
	case "tree-uri":
		minArgs, maxArgs = 1, 2
	case "ls":
		minArgs, maxArgs = 1, 1
	default:
		return fmt.Errorf("%w: unknown catalog subcommand %q", errUsage, args[0])
	}
	positional, err := parseFlags(flagSet, args[1:], minArgs, maxArgs)
	if err != nil {
		return err
	}
	if catalogPath == "" {
		return fmt.Errorf("%w: --catalog is required", errUsage)
	}

	store, err := catalog.Open(ctx, catalog.Config{
		Path:      catalogPath,
		Authority: authority,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	switch args[0] {
	case "import":
		stats, err := store.Import(ctx, positional[0], positional[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "imported %s: %d files, %d directories, %d skipped, %d removed\n",
			positional[0], stats.Files, stats.Directories, stats.Skipped, stats.Removed)
		fmt.Fprintln(stdout, store.TreeURI(positional[0], ""))
		return nil

	case "volumes":
		volumes, err := store.Volumes(ctx)
		if err != nil {
			return err
		}
		writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "VOLUME\tSOURCE\tIMPORTED")
		for _, volume := range volumes {
			fmt.Fprintf(writer, "%s\t%s\t%s\n", volume.Name, volume.SourceRoot, volume.ImportedAt.UTC().Format(time.RFC3339))
		}
		return writer.Flush()

	case "remove":
		return store.RemoveVolume(ctx, positional[0])

	case "tree-uri":
		relative := ""
		if len(positional) == 2 {
			relative = positional[1]
		}
		fmt.Fprintln(stdout, store.TreeURI(positional[0], relative))
		return nil

	default: // ls
		return listChildren(ctx, document.NewAccessor(store, logger), positional[0], stdout)
	}
}

func listChildren(ctx context.Context, accessor *document.Accessor, treeURI string, stdout io.Writer) error {
	children, err := accessor.ListChildren(ctx, treeURI)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)

	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tSIZE\tMODIFIED\tURI")
	for _, name := range names {
		child := children[name]
		display := name
		if child.IsDir() {
			display += "/"
		}
		modified := time.UnixMilli(child.LastModified).UTC().Format(time.RFC3339)
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\n", display, child.Size, modified, child.URI)
	}
	return writer.Flush()
}
