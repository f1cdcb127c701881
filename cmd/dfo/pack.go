package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/dfo/pkg/dfo"
)

func packCmd() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "serialize a directory tree to stdout",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "exclude pattern (repeatable)",
			},
		},
		Action: packAction,
	}
}

func packAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: dfo pack <dir>")
	}
	dir := c.Args().Get(0)

	out := bufio.NewWriter(os.Stdout)
	res, err := dfo.Pack(dir, out, &dfo.PackOptions{
		Excludes: c.StringSlice("exclude"),
	})
	if err != nil {
		return err
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("flush stdout: %w", err)
	}

	slog.Info("packed",
		"dir", dir,
		"checksum", res.Checksum,
		"nodes", res.Nodes,
	)
	return nil
}
