package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/rshade/eap-emissions-calculator/internal/config"
	"github.com/rshade/eap-emissions-calculator/internal/emissions"
	"github.com/rshade/eap-emissions-calculator/internal/export"
	"github.com/rshade/eap-emissions-calculator/internal/store"
)

const binaryName = "eap-emissions-calculator"

const usage = `Usage: eap-emissions-calculator [-config file] <command> [args]

Commands:
  sources                      list energy sources and their factors
  add <source> <quantity>      add a calculation
  edit <n|id> <quantity>       change the quantity of a calculation (blank = 0)
  remove <n|id>                delete a calculation
  list                         show the calculation table and totals
  totals                       show total energy and emissions
  reset                        clear all calculations
  export [flags]               write the table to a CSV or XLSX file
  serve [flags]                run the HTTP API
  version                      show build information
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app is the state shared by all commands.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	calc     *emissions.Calculator
	store    *store.SQLite
	exporter *export.Exporter
	out      io.Writer
}

// run executes one CLI invocation and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(binaryName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("EAP_CONFIG"), "Path to YAML configuration file")
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cmdName, cmdArgs := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(stderr, "[%s] unknown command %q\n\n", binaryName, cmdName)
		fs.Usage()
		return 2
	}

	bootLogger := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).With().Timestamp().Logger()
	cfg, err := config.Load(*configPath, bootLogger)
	if err != nil {
		fmt.Fprintf(stderr, "[%s] Failed to load configuration: %v\n", binaryName, err)
		return 1
	}
	logger := cfg.NewLogger().Output(zerolog.ConsoleWriter{Out: stderr})

	a, err := newApp(cfg, logger, stdout, cmd.needsStore)
	if err != nil {
		fmt.Fprintf(stderr, "[%s] %v\n", binaryName, err)
		return 1
	}
	defer a.close()

	if err := cmd.run(a, cmdArgs); err != nil {
		fmt.Fprintf(stderr, "[%s] Error: %v\n", binaryName, err)
		return 1
	}
	return 0
}

func newApp(cfg config.Config, logger zerolog.Logger, out io.Writer, needsStore bool) (*app, error) {
	emissions.SetLogger(logger)

	table := emissions.DefaultTable()
	if cfg.SourcesFile != "" {
		t, err := emissions.LoadSourcesFile(cfg.SourcesFile)
		if err != nil {
			return nil, fmt.Errorf("load energy sources: %w", err)
		}
		table = t
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		calc:     emissions.NewCalculator(table),
		exporter: export.NewExporter(export.Dirs{Downloads: cfg.DownloadsDir, Data: cfg.DataDir}, logger),
		out:      out,
	}
	if !needsStore {
		return a, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	records, err := st.Load(context.Background())
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load history: %w", err)
	}
	a.calc.Restore(records)
	a.store = st
	return a, nil
}

func (a *app) save() error {
	return a.store.Save(context.Background(), a.calc.Records())
}

func (a *app) close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("failed to close history store")
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info().Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
