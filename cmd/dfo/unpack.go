package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/dfo/pkg/dfo"
)

func unpackCmd() *cli.Command {
	return &cli.Command{
		Name:      "unpack",
		Usage:     "read a stream from stdin and materialize it",
		ArgsUsage: "<dir>",
		Action:    unpackAction,
	}
}

func unpackAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: dfo unpack <dir>")
	}
	dir := c.Args().Get(0)

	res, err := dfo.Unpack(os.Stdin, dir, unpackOptions(c))
	if err != nil {
		return err
	}
	if res.Checksum != res.Trailer {
		return fmt.Errorf(
			"root checksum %s does not match trailer %s",
			res.Checksum, res.Trailer,
		)
	}

	slog.Debug("unpacked", "dir", dir, "nodes", res.Nodes)

	// A checksum on stdout means the tree verified.
	fmt.Println(res.Checksum)
	return nil
}
