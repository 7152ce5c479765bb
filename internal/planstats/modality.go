// Package planstats gathers monitor-unit and beam-energy statistics across
// Mobius3D plan checks and groups plans by treatment modality.
package planstats

import "strings"

// Modality is a treatment delivery technique inferred from a plan name.
type Modality string

const (
	ThreeDCRT Modality = "3DCRT"
	SBRT      Modality = "SBRT"
	SRS       Modality = "SRS"
	VMAT      Modality = "VMAT"
)

// TrueBeamMachine is the machine name fragment selecting the fraction group
// a plan's MU is read from.
const TrueBeamMachine = "TrueBeam"

// classifiers are tried in order; the first one matching wins.
var classifiers = []struct {
	modality  Modality
	fragments []string
}{
	{ThreeDCRT, []string{"3DC", "2DC"}},
	{SBRT, []string{"SBR", "FSR"}},
	{VMAT, []string{"VMA"}},
	{SRS, []string{"SRS"}},
}

// AllModalities returns the modalities in report order.
func AllModalities() []Modality {
	return []Modality{ThreeDCRT, SBRT, SRS, VMAT}
}

// Classify returns the modality of a plan from its name. Matching is a
// case-sensitive substring search; ok is false when no fragment matches.
func Classify(notes string) (m Modality, ok bool) {
	for _, c := range classifiers {
		for _, f := range c.fragments {
			if strings.Contains(notes, f) {
				return c.modality, true
			}
		}
	}
	return "", false
}
