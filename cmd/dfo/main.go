package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/dfo/pkg/dfo"
)

const appVersion = "0.1.0"

func main() {
	app := &cli.App{
		Name:  "dfo",
		Usage: "turn a directory tree into a checksummed value, and back",
		Before: func(c *cli.Context) error {
			configureLogging(c.Bool("verbose"))
			return nil
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "verbose output",
			},
			&cli.Int64Flag{
				Name:  "max-blob",
				Usage: "cap on in-memory record size in bytes",
			},
			&cli.IntFlag{
				Name:  "max-depth",
				Usage: "cap on directory nesting while unpacking",
			},
		},
		Commands: []*cli.Command{
			packCmd(),
			unpackCmd(),
			verifyCmd(),
			listCmd(),
			sendCmd(),
			{
				Name:  "version",
				Usage: "print version",
				Action: func(c *cli.Context) error {
					fmt.Println(appVersion)
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dfo: %v\n", err)
		os.Exit(1)
	}
}

func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	))
}

func unpackOptions(c *cli.Context) *dfo.UnpackOptions {
	return &dfo.UnpackOptions{
		MaxBlob:  c.Int64("max-blob"),
		MaxDepth: c.Int("max-depth"),
	}
}
