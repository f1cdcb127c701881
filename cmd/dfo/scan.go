package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/dfo/pkg/dfo"
)

func verifyCmd() *cli.Command {
	return &cli.Command{
		Name:   "verify",
		Usage:  "check a stream's integrity without materializing it",
		Action: verifyAction,
	}
}

func verifyAction(c *cli.Context) error {
	res, err := dfo.Verify(os.Stdin, unpackOptions(c))
	if err != nil {
		return err
	}
	if res.Checksum != res.Trailer {
		return fmt.Errorf(
			"root checksum %s does not match trailer %s",
			res.Checksum, res.Trailer,
		)
	}

	slog.Info("verified", "nodes", res.Nodes)
	fmt.Println(res.Checksum)
	return nil
}

func listCmd() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "list the nodes in a stream",
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	res, err := dfo.List(os.Stdin, os.Stdout, unpackOptions(c))
	if err != nil {
		return err
	}
	if res.Checksum != res.Trailer {
		return fmt.Errorf(
			"root checksum %s does not match trailer %s",
			res.Checksum, res.Trailer,
		)
	}
	return nil
}
