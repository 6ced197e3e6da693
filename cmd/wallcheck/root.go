package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"Wallcheck/internal/calc/assessment"
	"Wallcheck/internal/config"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/logging"
	"Wallcheck/internal/repo"
)

type options struct {
	configPath string
	db         string
	by         string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "wallcheck",
		Short:        "API 579 Level 1 metal loss assessments and RBI intervals",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default $WALLCHECK_CONFIG)")
	root.PersistentFlags().StringVar(&opts.db, "db", "wallcheck.db", "SQLite audit database; empty uses the configured database")
	root.PersistentFlags().StringVar(&opts.by, "by", "cli", "name recorded as the requester")

	root.AddCommand(
		newAssessCmd(opts),
		newImportCmd(),
		newReportCmd(opts),
		newWorkerCmd(opts),
		newSubmitCmd(opts),
		newMaterialsCmd(),
	)
	return root
}

// execute runs the CLI with a logger on the context, as main does.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	ctx = logging.WithLogger(ctx, logging.New(stderr, slog.LevelInfo))
	ctx = logging.WithAttrs(ctx, slog.String("app", "wallcheck"))

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		logging.Error(ctx, "command execution failed", slog.Any("err", errs.Loggable(err)))
		return err
	}
	return nil
}

func (o *options) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.db != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = o.db
	}
	return cfg, nil
}

// withService opens the audit store and runs fn with an assessment service over it.
func (o *options) withService(ctx context.Context, fn func(svc *assessment.Service, cfg config.Config) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	c, err := cfg.Build()
	if err != nil {
		return errs.Wrap(err, "build calculation services")
	}
	store, err := repo.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return errs.Wrap(err, "open database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warn(ctx, "close database failed", slog.Any("err", errs.Loggable(err)))
		}
	}()
	return fn(assessment.NewService(c.Engine, c.Calculator, c.Intervals, store), cfg)
}

func readRequest(path string) (assessment.Request, error) {
	if path == "" {
		return assessment.Request{}, errs.Validation("file", "request file is required (-f)")
	}
	f, err := os.Open(path)
	if err != nil {
		return assessment.Request{}, errs.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var req assessment.Request
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return assessment.Request{}, errs.Validationf("file", "%s: malformed JSON at offset %d", path, syntax.Offset)
		}
		return assessment.Request{}, errs.Validationf("file", "%s: %v", path, err)
	}
	return req, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errs.Wrap(enc.Encode(v), "write output")
}
