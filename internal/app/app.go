// Package app wires the Mobius3D session, the plan enumeration and the two
// pipelines together. The commands only add prompts and signal handling.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mrsinham/mobiuskit/internal/console"
	"github.com/mrsinham/mobiuskit/internal/download"
	"github.com/mrsinham/mobiuskit/internal/mobius"
	"github.com/mrsinham/mobiuskit/internal/planstats"
	"github.com/mrsinham/mobiuskit/internal/prompt"
)

// Connect logs in and fetches the full plan list.
func Connect(ctx context.Context, cfg *prompt.Config, log *slog.Logger) (*mobius.Client, []mobius.Patient, error) {
	client, err := mobius.NewClient(cfg.BaseURL, mobius.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Login(ctx, cfg.Username, cfg.Password); err != nil {
		return nil, nil, err
	}

	patients, err := client.ListPatients(ctx, mobius.DefaultLimit)
	if err != nil {
		return nil, nil, err
	}
	log.Debug("plan list loaded", "patients", len(patients))
	return client, patients, nil
}

// Download runs the file download pipeline for cfg.SearchTerm into cfg.DestDir.
func Download(ctx context.Context, cfg *prompt.Config, out io.Writer, log *slog.Logger) (download.Result, error) {
	if err := cfg.ValidateDownload(); err != nil {
		return download.Result{}, err
	}
	client, patients, err := Connect(ctx, cfg, log)
	if err != nil {
		return download.Result{}, err
	}

	d := &download.Downloader{Source: client, DestDir: cfg.DestDir, Out: out, Log: log}
	res, err := d.Run(ctx, patients, cfg.SearchTerm)
	if err != nil {
		return res, err
	}

	if res.Patients == 0 {
		fmt.Fprintln(out, console.WarnStyle.Render(fmt.Sprintf("No patient matches %q", cfg.SearchTerm)))
	}
	return res, nil
}

// Stats runs the statistics pipeline over every patient and prints the
// report to out. An interrupted scan still prints what was gathered.
func Stats(ctx context.Context, cfg *prompt.Config, out io.Writer, log *slog.Logger) (*planstats.Summary, planstats.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, planstats.Report{}, err
	}
	client, patients, err := Connect(ctx, cfg, log)
	if err != nil {
		return nil, planstats.Report{}, err
	}

	agg := &planstats.Aggregator{Source: client, Out: out, Log: log}
	sum, err := agg.Run(ctx, patients)
	if err != nil {
		return sum, planstats.Report{}, err
	}

	report := planstats.BuildReport(sum)
	if err := report.Render(out); err != nil {
		return sum, report, err
	}

	footer := fmt.Sprintf("Scanned %d of %d patients, %d skipped on incomplete plan data",
		report.PatientsScanned, report.PatientsTotal, report.PatientsSkipped)
	fmt.Fprintln(out, console.SubtitleStyle.Render(footer))
	if sum.Interrupted {
		fmt.Fprintln(out, console.WarnStyle.Render("Interrupted: statistics cover the patients scanned so far"))
	}
	return sum, report, nil
}
