package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yegors/atlas/internal/config"
	"github.com/yegors/atlas/internal/parser"
	"github.com/yegors/atlas/internal/storage/sqlite"
	"github.com/yegors/atlas/internal/tracelog"
	"github.com/yegors/atlas/pkg/logger"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

type rootOptions struct {
	configPath string
	format     string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "atlas",
		Short: "Parse ATC transcripts into structured instructions",
		Long: `Atlas turns air traffic control transcripts into structured clearance
instructions and tracks the active clearance of each callsign across a sequence
of transmissions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.format {
			case formatJSON, formatTable:
				return nil
			default:
				return fmt.Errorf("invalid --format %q: want json or table", opts.format)
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a TOML config file")
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", formatJSON, "output format: json or table")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(parseCmd(opts))
	root.AddCommand(sequenceCmd(opts))
	root.AddCommand(readbackCmd(opts))
	root.AddCommand(batchCmd(opts))
	root.AddCommand(serveCmd(opts))
	return root
}

// app holds the components shared by every command
type app struct {
	config   *config.Config
	logger   *logger.Logger
	pipeline *parser.Pipeline
	records  *sqlite.RecordStorage
	closers  []func() error
}

// newApp loads the configuration and builds the shared components. When
// commandOutput is set, stdout carries command results and terminal logs go
// to stderr instead.
func newApp(opts *rootOptions, commandOutput bool) (*app, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if commandOutput {
		cfg.Logging.Output = logger.OutputStderr
	}

	log, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{config: cfg, logger: log}

	var sinks tracelog.MultiSink
	if cfg.Trace.Enabled {
		fileSink, err := tracelog.NewFileSink(cfg.Trace.SinkConfig(), log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, fileSink.Close)
		sinks = append(sinks, fileSink)
	}
	if cfg.Storage.Enabled {
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		records, err := sqlite.NewRecordStorage(db, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.records = records
		sinks = append(sinks, records)
	}

	pc := cfg.Parser.PipelineConfig()
	switch len(sinks) {
	case 0:
	case 1:
		pc.Sink = sinks[0]
	default:
		pc.Sink = sinks
	}
	a.pipeline = parser.New(pc, log)
	return a, nil
}

// Close releases sinks in reverse order of creation
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

// withApp runs fn against a freshly built app and closes it afterwards
func withApp(opts *rootOptions, fn func(a *app) error) error {
	a, err := newApp(opts, true)
	if err != nil {
		return err
	}
	runErr := fn(a)
	if err := a.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close sinks: %w", err)
	}
	return runErr
}
