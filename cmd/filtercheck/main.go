// Package main provides filtercheck, a CLI for inspecting saved filter definitions.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "filtercheck",
		Usage: "Parse, render and store filter definitions",
		Description: `Reads filter XML documents and shows how they are understood.

Examples:
  filtercheck tree customers.xml
  filtercheck render --value city=Berlin --value total=50 customers.xml
  filtercheck saved import --dsn filters.db --component customers-browse --name Berlin customers.xml
  filtercheck saved list --dsn filters.db --component customers-browse`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log parser diagnostics to stderr",
			},
		},
		Commands: []*cli.Command{
			treeCommand(),
			renderCommand(),
			savedCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
