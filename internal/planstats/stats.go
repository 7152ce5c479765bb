package planstats

import (
	"strings"

	"github.com/mrsinham/mobiuskit/internal/mobius"
)

// Entry is one recorded plan.
type Entry struct {
	Patient string
	Plan    string
	MU      float64
}

// Stats accumulates plan and beam statistics. A plan, identified by its SOP
// instance UID, contributes at most once.
type Stats struct {
	Entries    []Entry
	BeamMU     []float64
	BeamEnergy []float64
	Buckets    map[Modality][]float64

	seen map[string]struct{}
}

// NewStats returns empty statistics.
func NewStats() *Stats {
	return &Stats{
		Buckets: make(map[Modality][]float64),
		seen:    make(map[string]struct{}),
	}
}

// Seen reports whether the plan with the given SOP instance UID was already
// considered.
func (s *Stats) Seen(sopinst string) bool {
	_, ok := s.seen[sopinst]
	return ok
}

// AddPlan folds one plan check into the statistics and reports whether it
// was recorded. Duplicates and plans with no MU on a TrueBeam fraction group
// are not recorded. An error wrapping mobius.ErrMissingField means the detail
// document, the patient name or the plan notes are absent; beams read
// before the failure stay recorded.
func (s *Stats) AddPlan(patient mobius.Patient, plan mobius.Plan, detail *mobius.PlanDetail) (bool, error) {
	sop, err := detail.SOPInstance()
	if err != nil {
		return false, err
	}
	if s.Seen(sop) {
		return false, nil
	}
	s.seen[sop] = struct{}{}

	ids, err := detail.FractionGroupIDs()
	if err != nil {
		return false, err
	}

	var mu float64
	for _, id := range ids {
		group, err := detail.FractionGroup(id)
		if err != nil {
			return false, err
		}
		machine, err := group.Machine()
		if err != nil {
			return false, err
		}
		if !strings.Contains(machine, TrueBeamMachine) {
			continue
		}

		beams, err := group.Beams()
		if err != nil {
			return false, err
		}
		for _, b := range beams {
			mu += b.MU
			if !b.HasEnergy {
				continue
			}
			s.BeamEnergy = append(s.BeamEnergy, b.Energy)
			s.BeamMU = append(s.BeamMU, b.MU)
		}
		break
	}

	if mu == 0 {
		return false, nil
	}
	if err := patient.Require(mobius.KeyPatientName); err != nil {
		return false, err
	}
	if err := plan.Require(mobius.KeyNotes); err != nil {
		return false, err
	}

	s.Entries = append(s.Entries, Entry{Patient: patient.Name, Plan: plan.Notes, MU: mu})
	if m, ok := Classify(plan.Notes); ok {
		s.Buckets[m] = append(s.Buckets[m], mu)
	}
	return true, nil
}

// Classified returns the number of plans across all modality buckets.
func (s *Stats) Classified() int {
	n := 0
	for _, b := range s.Buckets {
		n += len(b)
	}
	return n
}
