package planstats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mrsinham/mobiuskit/internal/mobius"
)

// DetailSource fetches plan-check details. *mobius.Client implements it.
type DetailSource interface {
	PlanDetail(ctx context.Context, requestID string) (*mobius.PlanDetail, error)
}

// PatientOutcome is the result of scanning one patient.
type PatientOutcome struct {
	Patient  string
	Recorded int
	// Skipped is set when the patient record or a plan detail lacked an
	// expected key; the patient's remaining plans were not scanned.
	Skipped bool
	Reason  error
}

// Summary is what a run produced, complete or not.
type Summary struct {
	Stats       *Stats
	Outcomes    []PatientOutcome
	Total       int
	Interrupted bool
}

// Skipped returns how many patients were abandoned on a missing key.
func (s *Summary) Skipped() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Skipped {
			n++
		}
	}
	return n
}

// Aggregator walks a plan list and accumulates statistics.
type Aggregator struct {
	Source DetailSource
	// Out receives one progress line per patient. Nil discards them.
	Out io.Writer
	Log *slog.Logger
}

// Run scans every patient in order. A missing key in the patient record or
// in a plan detail abandons that patient only; any other failure stops the run with an error.
// Cancelling ctx stops the scan early and returns the partial summary with
// Interrupted set and no error.
func (a *Aggregator) Run(ctx context.Context, patients []mobius.Patient) (*Summary, error) {
	out := a.Out
	if out == nil {
		out = io.Discard
	}
	log := a.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	sum := &Summary{Stats: NewStats(), Total: len(patients)}
	for i, p := range patients {
		if ctx.Err() != nil {
			sum.Interrupted = true
			break
		}
		fmt.Fprintf(out, "Scanning patient %d of %d\n", i+1, len(patients))

		outcome, err := a.scanPatient(ctx, sum.Stats, p)
		if err != nil {
			if ctx.Err() != nil {
				// Plans recorded before the interrupt stay in the stats.
				sum.Outcomes = append(sum.Outcomes, outcome)
				sum.Interrupted = true
				break
			}
			return sum, fmt.Errorf("scanning patient %s: %w", p.ID, err)
		}
		if outcome.Skipped {
			log.Debug("skipped patient", "patient", p.ID, "reason", outcome.Reason)
		}
		sum.Outcomes = append(sum.Outcomes, outcome)
	}
	return sum, nil
}

func (a *Aggregator) scanPatient(ctx context.Context, stats *Stats, p mobius.Patient) (PatientOutcome, error) {
	outcome := PatientOutcome{Patient: p.Name}
	skip := func(reason error) (PatientOutcome, error) {
		outcome.Skipped = true
		outcome.Reason = reason
		return outcome, nil
	}

	if err := p.Require(mobius.KeyPlans); err != nil {
		return skip(err)
	}
	for _, plan := range p.Plans {
		if err := plan.Require(mobius.KeyResults); err != nil {
			return skip(err)
		}
		if !plan.HasResults() {
			continue
		}
		if err := plan.Require(mobius.KeyRequestID); err != nil {
			return skip(err)
		}

		detail, err := a.Source.PlanDetail(ctx, plan.RequestID)
		if err != nil {
			return outcome, err
		}

		recorded, err := stats.AddPlan(p, plan, detail)
		if errors.Is(err, mobius.ErrMissingField) {
			return skip(err)
		}
		if err != nil {
			return outcome, err
		}
		if recorded {
			outcome.Recorded++
		}
	}
	return outcome, nil
}
