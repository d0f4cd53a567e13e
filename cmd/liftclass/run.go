package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/YuminosukeSato/liftclass/config"
	"github.com/YuminosukeSato/liftclass/pipeline"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
	"github.com/YuminosukeSato/liftclass/report"
)

const fileMode = 0o644

const (
	trainFlag     = "train"
	testFlag      = "test"
	configFlag    = "config"
	plotFlag      = "plot"
	reportFlag    = "report"
	logLevelFlag  = "log-level"
	logFormatFlag = "log-format"
	seedFlag      = "seed"
	jobsFlag      = "jobs"
	rawFlag       = "raw"
)

func runCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Train, evaluate and select a classifier, then predict the examinable rows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  trainFlag,
				Usage: "Path to the labelled training CSV",
			},
			&cli.StringFlag{
				Name:  testFlag,
				Usage: "Path to the examinable CSV",
			},
			&cli.StringFlag{
				Name:    configFlag,
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file (optional)",
			},
			&cli.StringFlag{
				Name:  plotFlag,
				Usage: "Write the random forest accuracy plot to this file (.png or .svg)",
			},
			&cli.StringFlag{
				Name:  reportFlag,
				Usage: "Write the Markdown report to this file instead of stdout",
			},
			&cli.StringFlag{
				Name:  logLevelFlag,
				Usage: "Log level [debug, info, warn, error]",
			},
			&cli.StringFlag{
				Name:  logFormatFlag,
				Usage: "Log format [auto, console, json]",
			},
			&cli.Uint64Flag{
				Name:  seedFlag,
				Usage: "Random seed for partitioning, folds and models",
			},
			&cli.IntFlag{
				Name:  jobsFlag,
				Usage: "Concurrent fold fits (0 uses every CPU)",
			},
			&cli.BoolFlag{
				Name:  rawFlag,
				Usage: "Print plain Markdown even on a terminal",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runAction(ctx, cmd, out)
		},
	}
}

func runAction(ctx context.Context, cmd *cli.Command, out io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Logging, os.Stderr); err != nil {
		return err
	}

	res, err := pipeline.Run(ctx, cfg, pipeline.WithRunID(uuid.NewString()))
	if err != nil {
		return err
	}
	logger := log.GetLoggerWithName("cli").With(log.RunIDKey, res.RunID)

	if path := cmd.String(plotFlag); path != "" {
		if err := report.SavePlot(plotModel(res), path); err != nil {
			return err
		}
		logger.Info("plot written", log.PathKey, path)
	}

	md, err := report.Markdown(res)
	if err != nil {
		return err
	}
	if path := cmd.String(reportFlag); path != "" {
		if err := os.WriteFile(path, []byte(md), fileMode); err != nil {
			return errors.Wrapf(err, "writing report %s", path)
		}
		logger.Info("report written", log.PathKey, path)
		return nil
	}

	if !cmd.Bool(rawFlag) && isTerminal(out) {
		if md, err = report.Render(md, "", 0); err != nil {
			return err
		}
	}
	_, err = fmt.Fprint(out, md)
	return err
}

// loadConfig reads the configuration file and lets explicit flags override it.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String(configFlag))
	if err != nil {
		return nil, err
	}
	if cmd.IsSet(trainFlag) {
		cfg.Data.TrainPath = cmd.String(trainFlag)
	}
	if cmd.IsSet(testFlag) {
		cfg.Data.TestPath = cmd.String(testFlag)
	}
	if cmd.IsSet(logLevelFlag) {
		cfg.Logging.Level = cmd.String(logLevelFlag)
	}
	if cmd.IsSet(logFormatFlag) {
		cfg.Logging.Format = cmd.String(logFormatFlag)
	}
	if cmd.IsSet(seedFlag) {
		cfg.Seed = cmd.Uint64(seedFlag)
	}
	if cmd.IsSet(jobsFlag) {
		cfg.Training.NJobs = cmd.Int(jobsFlag)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(lc config.LoggingConfig, w *os.File) error {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	var console bool
	switch lc.Format {
	case "", "auto":
		console = isTerminal(w)
	case "console":
		console = true
	case "json":
	default:
		return errors.NewValidationError("logging.format", "must be one of auto, console, json", lc.Format)
	}
	log.Setup(w, level, console)
	return nil
}

// plotModel returns the random forest, whose mtry table drives the plot.
func plotModel(res *pipeline.Result) *pipeline.TrainedModel {
	for _, tm := range res.Models {
		if tm.Name == pipeline.ModelRandomForest {
			return tm
		}
	}
	return res.BestModel
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
