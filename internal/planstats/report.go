package planstats

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Report is the printable and exportable form of a Summary.
type Report struct {
	Plans           []PlanLine     `yaml:"plans"`
	Modalities      []ModalityLine `yaml:"modalities"`
	Energies        []EnergyLine   `yaml:"energies"`
	PatientsTotal   int            `yaml:"patients_total"`
	PatientsScanned int            `yaml:"patients_scanned"`
	PatientsSkipped int            `yaml:"patients_skipped"`
	Interrupted     bool           `yaml:"interrupted"`
}

// PlanLine is one recorded plan.
type PlanLine struct {
	Patient string  `yaml:"patient"`
	Plan    string  `yaml:"plan"`
	MU      float64 `yaml:"mu"`
}

// ModalityLine describes one non-empty modality bucket. Percent is relative
// to the number of classified plans, not to every recorded plan.
type ModalityLine struct {
	Modality Modality `yaml:"modality"`
	Plans    int      `yaml:"plans"`
	Percent  float64  `yaml:"percent"`
	MeanMU   float64  `yaml:"mean_mu"`
}

// EnergyLine is the share of total beam MU delivered at one energy.
type EnergyLine struct {
	EnergyMV float64 `yaml:"energy_mv"`
	Percent  float64 `yaml:"percent"`
}

// BuildReport computes the report figures from a summary.
func BuildReport(sum *Summary) Report {
	s := sum.Stats
	r := Report{
		PatientsTotal:   sum.Total,
		PatientsScanned: len(sum.Outcomes),
		PatientsSkipped: sum.Skipped(),
		Interrupted:     sum.Interrupted,
	}

	for _, e := range s.Entries {
		r.Plans = append(r.Plans, PlanLine{Patient: e.Patient, Plan: e.Plan, MU: e.MU})
	}

	classified := s.Classified()
	for _, m := range AllModalities() {
		bucket := s.Buckets[m]
		if len(bucket) == 0 {
			continue
		}
		r.Modalities = append(r.Modalities, ModalityLine{
			Modality: m,
			Plans:    len(bucket),
			Percent:  float64(len(bucket)) / float64(classified) * 100,
			MeanMU:   sum64(bucket) / float64(len(bucket)),
		})
	}

	total := sum64(s.BeamMU)
	if total == 0 {
		return r
	}
	byEnergy := make(map[float64]float64)
	for i, e := range s.BeamEnergy {
		byEnergy[e] += s.BeamMU[i]
	}
	energies := make([]float64, 0, len(byEnergy))
	for e := range byEnergy {
		energies = append(energies, e)
	}
	slices.Sort(energies)
	for _, e := range energies {
		r.Energies = append(r.Energies, EnergyLine{EnergyMV: e, Percent: byEnergy[e] / total * 100})
	}
	return r
}

// Render writes the plan list and the modality and energy statistics as
// plain text.
func (r Report) Render(w io.Writer) error {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	b.WriteString(rule + "\n")
	for _, p := range r.Plans {
		fmt.Fprintf(&b, "%s (%s): %.0f\n", p.Patient, p.Plan, p.MU)
	}

	b.WriteString(rule + "\n")
	for _, m := range r.Modalities {
		fmt.Fprintf(&b, "Mean %s MU for %d (%.1f%%) plans: %.0f\n", m.Modality, m.Plans, m.Percent, m.MeanMU)
	}
	for _, e := range r.Energies {
		fmt.Fprintf(&b, "%s MV Utilization: %.1f%%\n", FormatEnergy(e.EnergyMV), e.Percent)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// SaveYAML writes the report to path as YAML.
func (r Report) SaveYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// FormatEnergy prints whole energies without a decimal part ("6"), others
// as short as possible ("6.5").
func FormatEnergy(mv float64) string {
	return strconv.FormatFloat(mv, 'f', -1, 64)
}

func sum64(v []float64) float64 {
	var t float64
	for _, x := range v {
		t += x
	}
	return t
}
