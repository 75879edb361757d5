// lokishipper tails *.log files under a directory and pushes every line to
// Grafana Loki, labelled with the configured static labels and the level
// found in the line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/Chichichkin/LokiLoggerHandler/internal/config"
	"github.com/Chichichkin/LokiLoggerHandler/internal/daemon"
	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
	"github.com/Chichichkin/LokiLoggerHandler/internal/logging/batch"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBatchSize     = 1000
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	envFile    string
	url        string
	labels     []string
	logPath    string
	debug      bool
	jsonLogs   bool
}

func parseFlags(args []string) (*cliFlags, error) {
	var f cliFlags

	flagSet := pflag.NewFlagSet("lokishipper", pflag.ContinueOnError)
	flagSet.StringVarP(&f.configPath, "config", "c", "", "path to a .yml or .json config file")
	flagSet.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flagSet.StringVar(&f.url, "url", "", "Loki push URL (overrides config and "+config.EnvURL+")")
	flagSet.StringArrayVarP(&f.labels, "label", "l", nil, "static label as name=value, repeatable; replaces configured labels")
	flagSet.StringVar(&f.logPath, "log-path", "", "directory to scan for *.log files")
	flagSet.BoolVar(&f.debug, "debug", false, "enable debug logging")
	flagSet.BoolVar(&f.jsonLogs, "json-logs", false, "write own logs as JSON")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))
	}
	return &f, nil
}

// parseLabels keeps the order in which labels were given.
func parseLabels(raw []string) (logging.LabelSet, error) {
	pairs := make([]string, 0, 2*len(raw))
	for _, l := range raw {
		name, value, ok := strings.Cut(l, "=")
		if !ok {
			return logging.LabelSet{}, fmt.Errorf("label %q is not name=value", l)
		}
		pairs = append(pairs, strings.TrimSpace(name), value)
	}
	return logging.NewLabelSet(pairs...)
}

func newLogger(f *cliFlags) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if f.jsonLogs {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if f.debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// loadConfig applies file, environment and flags, in that order.
func loadConfig(f *cliFlags) (*config.Config, error) {
	return config.Load(f.configPath, func(cfg *config.Config) error {
		if f.url != "" {
			cfg.URL = f.url
		}
		if f.logPath != "" {
			cfg.Tail.Path = f.logPath
		}
		if len(f.labels) > 0 {
			labels, err := parseLabels(f.labels)
			if err != nil {
				return err
			}
			cfg.Labels = labels
		}
		if cfg.FlushInterval == 0 {
			cfg.FlushInterval = defaultFlushInterval
		}
		if cfg.BatchSize == 0 {
			cfg.BatchSize = defaultBatchSize
		}
		return nil
	})
}

func run(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	logger := newLogger(flags)
	logging.SetInternalLogger(logger)

	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return err
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	opts := cfg.HandlerOptions()
	opts.Logger = logger

	handler, err := batch.NewLokiHandler(cfg.URL, cfg.Labels, opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler.Start(ctx)

	tailConfig := cfg.TailerConfig()
	tailConfig.Logger = logger
	tailService := daemon.NewTailService(ctx, tailConfig, handler)
	tailService.Start()

	logger.WithFields(logrus.Fields{
		"url":    cfg.URL,
		"labels": cfg.Labels.String(),
		"path":   cfg.Tail.Path,
	}).Info("shipping logs")

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan
	logger.WithField("signal", sig.String()).Info("received shutdown signal")

	tailService.Stop()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*cfg.Timeout)
	defer closeCancel()

	err = handler.Close(closeCtx)

	stats := handler.Stats()
	logger.WithFields(logrus.Fields{
		"emitted": stats.EntriesEmitted,
		"flushed": stats.EntriesFlushed,
		"dropped": stats.EntriesDropped,
		"lost":    stats.EntriesLost,
	}).Info("shut down")

	if err != nil {
		return fmt.Errorf("final flush failed: %w", err)
	}
	return nil
}
