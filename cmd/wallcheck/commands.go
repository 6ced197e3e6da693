package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"Wallcheck/internal/calc/assessment"
	"Wallcheck/internal/calc/importer"
	"Wallcheck/internal/calc/material"
	"Wallcheck/internal/calc/report"
	"Wallcheck/internal/config"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/logging"
	"Wallcheck/internal/queue"
)

func assess(ctx context.Context, svc *assessment.Service, req assessment.Request, withRBI bool, by string) (assessment.Assessment, error) {
	if withRBI {
		return svc.AssessWithRBI(ctx, req, by)
	}
	return svc.Assess(ctx, req, by)
}

func newAssessCmd(opts *options) *cobra.Command {
	var file string
	var withRBI bool
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Assess one inspection event and record it",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(file)
			if err != nil {
				return err
			}
			return opts.withService(cmd.Context(), func(svc *assessment.Service, _ config.Config) error {
				a, err := assess(cmd.Context(), svc, req, withRBI, opts.by)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), a)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "request JSON")
	cmd.Flags().BoolVar(&withRBI, "rbi", false, "also derive the inspection interval")
	return cmd
}

func newImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Read thickness readings from an .xlsx survey",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errs.Validation("xlsx", "workbook is required (-x)")
			}
			f, err := os.Open(file)
			if err != nil {
				return errs.Wrapf(err, "open %s", file)
			}
			defer f.Close()

			res, err := importer.ReadReadings(f)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return errs.Validationf("xlsx", "%d problems in %s", len(res.Errors), file)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "xlsx", "x", "", "survey workbook")
	return cmd
}

func newReportCmd(opts *options) *cobra.Command {
	var file, out, history string
	var withRBI bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Assess a request and write its PDF, or write an equipment history workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errs.Validation("output", "output path is required (-o)")
			}
			if (file == "") == (history == "") {
				return errs.Validation("file", "give either a request (-f) or an equipment id (--history)")
			}
			var req assessment.Request
			if file != "" {
				var err error
				if req, err = readRequest(file); err != nil {
					return err
				}
			}
			return opts.withService(cmd.Context(), func(svc *assessment.Service, _ config.Config) error {
				f, err := os.Create(out)
				if err != nil {
					return errs.Wrapf(err, "create %s", out)
				}
				defer f.Close()

				if history != "" {
					list, err := svc.History(cmd.Context(), history)
					if err != nil {
						return err
					}
					if len(list) == 0 {
						return errs.Resolution("history", "no calculations recorded for "+history)
					}
					return report.WriteXLSX(f, list)
				}
				a, err := assess(cmd.Context(), svc, req, withRBI, opts.by)
				if err != nil {
					return err
				}
				// Read back so the PDF shows what was stored, RBI results included.
				if a, err = svc.Get(cmd.Context(), a.ID); err != nil {
					return err
				}
				if err := report.WritePDF(f, a); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", a.ID, a.Verdict, out)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "request JSON")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file")
	cmd.Flags().StringVar(&history, "history", "", "equipment id whose history to export as .xlsx")
	cmd.Flags().BoolVar(&withRBI, "rbi", false, "also derive the inspection interval")
	return cmd
}

func newWorkerCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume assessment jobs from NATS JetStream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd.Context(), func(svc *assessment.Service, cfg config.Config) error {
				if cfg.Queue.URL == "" {
					return errs.Validation("queue.url", "NATS_URL is not set")
				}
				ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
				return queue.Run(ctx, queue.Options{
					URL:        cfg.Queue.URL,
					Stream:     cfg.Queue.Stream,
					Durable:    cfg.Queue.Durable,
					AckWait:    cfg.Queue.AckWait,
					MaxDeliver: cfg.Queue.MaxDeliver,
				}, svc)
			})
		},
	}
}

func newSubmitCmd(opts *options) *cobra.Command {
	var file string
	var withRBI bool
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a request for the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(file)
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Queue.URL == "" {
				return errs.Validation("queue.url", "NATS_URL is not set")
			}
			nc, err := nats.Connect(cfg.Queue.URL, nats.Name("wallcheck-cli"))
			if err != nil {
				return errs.Wrapf(err, "connect %s", cfg.Queue.URL)
			}
			defer nc.Close()
			js, err := jetstream.New(nc)
			if err != nil {
				return errs.Wrap(err, "jetstream")
			}
			if err := queue.Submit(cmd.Context(), js, queue.Job{Request: req, WithRBI: withRBI, TriggeredBy: opts.by}); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", queue.AssessSubject(req.EquipmentID))
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "request JSON")
	cmd.Flags().BoolVar(&withRBI, "rbi", false, "also derive the inspection interval")
	return cmd
}

func newMaterialsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "materials",
		Short: "List the material grades in the builtin table",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := material.NewResolver(nil).Table()
			w := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(w, "table %s\n", t.Version()); err != nil {
				return err
			}
			for _, spec := range t.Grades() {
				g, _ := t.Lookup(spec)
				first, last := g.Points[0], g.Points[len(g.Points)-1]
				if _, err := fmt.Fprintf(w, "%-14s %-13s %s-%s F\n", g.Spec, g.Category, first.TemperatureF, last.TemperatureF); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
