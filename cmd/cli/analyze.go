package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cellqc/adapters/excel"
	"cellqc/adapters/postgres"
	"cellqc/internal/analysis"
	"cellqc/internal/config"
)

type analyzeOptions struct {
	output string
	format string
	sheet  string
	save   bool
}

func newAnalyzeCmd(global *globalOptions) *cobra.Command {
	opts := analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <file-or-directory>",
		Short: "Screen cycler exports for outliers and pick a reference channel per batch",
		Long: `Read .xlsx and .csv cycler exports, group channels by the batch key in
their file names, and analyze every batch.

Example: cellqc analyze ./exports --format summary
         cellqc analyze ./exports --output report.json --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch strings.ToLower(opts.format) {
			case "json", "summary":
			default:
				return fmt.Errorf("unknown format %q (use json or summary)", opts.format)
			}
			cfg, logger, err := global.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			readerCfg := excel.DefaultReaderConfig()
			if opts.sheet != "" {
				readerCfg.CycleSheet = opts.sheet
			}
			reader := excel.NewDataReader(readerCfg, logger)
			series, err := reader.ReadSeries(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			analyzer, err := analysis.New(cfg.Analysis, logger)
			if err != nil {
				return err
			}
			report, err := analyzer.Analyze(cmd.Context(), series)
			if err != nil {
				return err
			}

			if opts.save {
				if err := saveReport(cmd.Context(), cfg, report); err != nil {
					return err
				}
				logger.Info("report saved", "run_id", report.RunID)
			}
			return writeReport(cmd.OutOrStdout(), report, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().StringVar(&opts.format, "format", "json", "Output format: json or summary")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "Worksheet holding cycle rows (default Cycle)")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Persist the report to DATABASE_URL")
	return cmd
}

func saveReport(ctx context.Context, cfg *config.Config, report *analysis.RunReport) error {
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return postgres.NewReportRepository(db).SaveReport(ctx, report)
}

func writeReport(stdout io.Writer, report *analysis.RunReport, opts analyzeOptions) error {
	out := stdout
	if opts.output != "" && opts.output != "-" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch strings.ToLower(opts.format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "summary":
		return printSummary(out, report)
	default:
		return fmt.Errorf("unknown format %q (use json or summary)", opts.format)
	}
}

// printSummary writes one line per batch
func printSummary(w io.Writer, report *analysis.RunReport) error {
	fmt.Fprintf(w, "run %s  method %s  config %s\n\n", report.RunID, report.OutlierMethod, report.ConfigFingerprint.Short())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tCHANNELS\tEXCLUDED\tREFERENCE\tMETHOD\tFLAGS")
	for _, b := range report.Batches {
		reference, method := "-", "-"
		if b.Selection != nil {
			reference = b.Selection.Channel.String()
			method = string(b.Selection.Method)
		}
		var flags []string
		if b.Inconsistent {
			flags = append(flags, "inconsistent")
		}
		if b.ProblemBatch {
			flags = append(flags, "problem")
		}
		if len(b.Diagnostics) > 0 {
			flags = append(flags, fmt.Sprintf("%d diagnostics", len(b.Diagnostics)))
		}
		excluded := make([]string, 0, len(b.Excluded()))
		for _, id := range b.Excluded() {
			excluded = append(excluded, id.String())
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			b.Key, b.Statistics.Channels, orDash(strings.Join(excluded, ",")), reference, method, orDash(strings.Join(flags, ", ")))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
