// dfod receives dfo streams over websockets and unpacks them under a
// base directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/dfo/pkg/remote"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:  "dfod",
		Usage: "receive dfo streams over websockets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Value: "127.0.0.1:8345",
				Usage: "address to listen on",
			},
			&cli.StringFlag{
				Name:     "dir",
				Required: true,
				Usage:    "base directory trees are unpacked under",
			},
			&cli.Int64Flag{
				Name:  "max-blob",
				Usage: "cap on in-memory record size in bytes",
			},
			&cli.IntFlag{
				Name:  "max-depth",
				Usage: "cap on directory nesting",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "verbose output",
			},
		},
		Action: serve,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dfod: %v\n", err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	))

	baseDir := c.String("dir")
	if info, err := os.Stat(baseDir); err != nil || !info.IsDir() {
		return fmt.Errorf("--dir %s is not a directory", baseDir)
	}

	srv := &http.Server{
		Addr: c.String("listen"),
		Handler: logRequests(&remote.Server{
			BaseDir:  baseDir,
			MaxDepth: c.Int("max-depth"),
			MaxBlob:  c.Int64("max-blob"),
		}),
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening",
			"addr", srv.Addr,
			"dir", baseDir,
			"version", version,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), 10*time.Second,
	)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil &&
		!errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
		)
		next.ServeHTTP(w, r)
	})
}
