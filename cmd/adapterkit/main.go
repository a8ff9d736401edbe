// Package main provides the adapterkit CLI.
//
// Every command builds the simulated adapter from the settings file given by
// --config (or the defaults), starts it, runs one query against its feature
// registry and stops it again.
//
// Usage:
//
//	adapterkit [--config file] <command> [options]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	app.ExitErrHandler = exitErrHandler
	if err := app.RunContext(ctx, os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp(in io.Reader, out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      "adapterkit",
		Usage:     "Query a simulated industrial data adapter",
		Version:   version,
		Reader:    in,
		Writer:    out,
		ErrWriter: errOut,
		Flags:     globalFlags(),
		Commands: []*cli.Command{
			FeaturesCommand(),
			HealthCommand(),
			TagsCommand(),
			SnapshotCommand(),
			ProcessedCommand(),
			EventsCommand(),
			InvokeCommand(),
		},
	}
}

// exitErrHandler prints err and exits, preserving codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
