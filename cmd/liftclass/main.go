package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/YuminosukeSato/liftclass/pkg/log"
)

var (
	version = "v0.0.1-default"
	commit  = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		log.GetLogger().Error("fatal error", err)
		stop()
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "liftclass",
		Usage:   "Classify how well barbell lifts were performed from wearable sensor data",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Writer:  out,
		Commands: []*cli.Command{
			runCmd(out),
			versionCmd(out),
		},
	}
}

func versionCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(_ context.Context, _ *cli.Command) error {
			_, err := fmt.Fprintf(out, "liftclass %s (commit: %s)\n", version, commit)
			return err
		},
	}
}
