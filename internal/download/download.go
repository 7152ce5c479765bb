// Package download copies the data files of completed plan checks into a
// local folder tree, one folder per plan name.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrsinham/mobiuskit/internal/dcminfo"
	"github.com/mrsinham/mobiuskit/internal/mobius"
)

// Source lists and serves plan-check data files. *mobius.Client implements it.
type Source interface {
	PlanFiles(ctx context.Context, requestID string) ([]mobius.File, error)
	Attachment(ctx context.Context, requestID, filename string) (io.ReadCloser, error)
}

// Result counts what a run touched.
type Result struct {
	Patients int
	Plans    int
	Files    []string
}

// Downloader writes files to {DestDir}/{plan notes}/{filename}.
type Downloader struct {
	Source  Source
	DestDir string
	// Out receives one progress line per file. Nil discards them.
	Out io.Writer
	Log *slog.Logger
}

// Matches reports whether term is a substring of the patient's name or ID.
// Matching is case-sensitive.
func Matches(p mobius.Patient, term string) bool {
	return strings.Contains(p.Name, term) || strings.Contains(p.ID, term)
}

// Run downloads every file of every completed plan of the patients matching
// term. Files already on disk are replaced; plans sharing a name share a
// folder, so the plan processed last wins on clashing file names. The first
// error stops the run; the returned Result lists what was written before it.
func (d *Downloader) Run(ctx context.Context, patients []mobius.Patient, term string) (Result, error) {
	var res Result
	for _, p := range patients {
		if !Matches(p, term) {
			continue
		}
		res.Patients++

		for _, plan := range p.Plans {
			if !plan.HasResults() {
				continue
			}
			res.Plans++
			if err := d.downloadPlan(ctx, plan, &res); err != nil {
				return res, fmt.Errorf("patient %s, plan %q: %w", p.ID, plan.Notes, err)
			}
		}
	}
	return res, nil
}

func (d *Downloader) downloadPlan(ctx context.Context, plan mobius.Plan, res *Result) error {
	dir := filepath.Join(d.DestDir, plan.Notes)
	if err := os.Mkdir(dir, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("creating plan folder: %w", err)
	}

	files, err := d.Source.PlanFiles(ctx, plan.RequestID)
	if err != nil {
		return err
	}

	for _, f := range files {
		path := filepath.Join(dir, f.Filename)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing old %s: %w", path, err)
		}

		fmt.Fprintf(d.out(), "Saving %s\n", path)
		if err := d.save(ctx, plan.RequestID, f.Filename, path); err != nil {
			return err
		}
		res.Files = append(res.Files, path)

		if dcminfo.IsDICOM(f.Filename) {
			d.describe(path)
		}
	}
	return nil
}

// save streams one attachment to path. The file is closed on every path;
// a failed copy can leave a partial file behind.
func (d *Downloader) save(ctx context.Context, requestID, filename, path string) error {
	body, err := d.Source.Attachment(ctx, requestID, filename)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

// describe echoes the DICOM header of a written file. Failing to read it is
// not a download failure.
func (d *Downloader) describe(path string) {
	info, err := dcminfo.Inspect(path)
	if err != nil {
		d.logger().Warn("cannot read DICOM header", "file", path, "error", err)
		return
	}
	fmt.Fprintf(d.out(), "  %s\n", info)
}

func (d *Downloader) out() io.Writer {
	if d.Out == nil {
		return io.Discard
	}
	return d.Out
}

func (d *Downloader) logger() *slog.Logger {
	if d.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Log
}
