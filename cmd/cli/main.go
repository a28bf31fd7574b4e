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

	"github.com/specialistvlad/hydroshard/internal/app"
	"github.com/specialistvlad/hydroshard/internal/cli"
)

// main is the entrypoint for the hydroshard application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()

	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitRunError)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application panicked: %v", r)
		}
	}()

	hydroshardApp, err := app.NewApp(outW, appConfig)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	res, err := hydroshardApp.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	if n := res.FailedTiles(); n > 0 {
		return &cli.ExitError{
			Code:    cli.ExitFailedTiles,
			Message: fmt.Sprintf("%d tile(s) failed, see %s", n, hydroshardApp.Model().FailureReportPath()),
		}
	}
	return nil
}
