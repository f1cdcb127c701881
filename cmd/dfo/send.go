package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/dfo/pkg/dfo"
	"github.com/tqbf/dfo/pkg/remote"
)

func sendCmd() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "pack a tree and stream it to a dfod receiver",
		ArgsUsage: "<dir> <url>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "exclude pattern (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Minute,
				Usage: "transfer timeout",
			},
		},
		Action: sendAction,
	}
}

func sendAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: dfo send <dir> <url>")
	}
	dir := c.Args().Get(0)
	url := c.Args().Get(1)

	ctx, cancel := context.WithTimeout(
		context.Background(), c.Duration("timeout"),
	)
	defer cancel()

	receipt, err := remote.Send(ctx, url, dir, &dfo.PackOptions{
		Excludes: c.StringSlice("exclude"),
	})
	if err != nil {
		return err
	}

	slog.Info("sent",
		"dir", dir,
		"checksum", receipt.Checksum,
		"nodes", receipt.Nodes,
	)
	fmt.Println(receipt.Checksum)
	return nil
}
