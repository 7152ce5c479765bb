// Package mobius is a small client for the Mobius3D plan-check web service.
//
// It covers the handful of endpoints the operator tools need: login, the plan
// list, plan-check details, the per-check data file list and raw attachments.
// Wire types keep every field the tools read as a pointer or map so that a
// missing key can be told apart from a zero value.
package mobius

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrMissingField is wrapped by every error reporting an expected key that is
// absent from a server response.
var ErrMissingField = errors.New("missing field")

func missing(path string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, path)
}

// PlanList is the body returned by the plan list endpoint.
type PlanList struct {
	Patients []Patient `json:"patients"`
}

// Keys of the plan list records. A record decoded without one of them reports
// it through Require.
const (
	KeyPatientName = "patientName"
	KeyPlans       = "plans"
	KeyRequestID   = "request_cid"
	KeyNotes       = "notes"
	KeyResults     = "results"
)

// Patient is one patient with its plan-check records, newest first.
type Patient struct {
	Name  string `json:"patientName"`
	ID    string `json:"patientId"`
	Plans []Plan `json:"plans"`

	absent []string
}

func (p *Patient) UnmarshalJSON(b []byte) error {
	type plain Patient
	var v plain
	absent, err := decodeRecord(b, &v, KeyPatientName, KeyPlans)
	if err != nil {
		return err
	}
	*p = Patient(v)
	p.absent = absent
	return nil
}

func (p Patient) MarshalJSON() ([]byte, error) {
	type plain Patient
	return encodeRecord(plain(p), p.absent)
}

// Require returns an error wrapping ErrMissingField if any of keys was absent
// from the decoded record.
func (p Patient) Require(keys ...string) error {
	return require(p.absent, "patients[].", keys)
}

// Plan is a single plan-check record.
type Plan struct {
	RequestID string          `json:"request_cid"`
	Notes     string          `json:"notes"`
	Results   json.RawMessage `json:"results"`

	absent []string
}

func (p *Plan) UnmarshalJSON(b []byte) error {
	type plain Plan
	var v plain
	absent, err := decodeRecord(b, &v, KeyRequestID, KeyNotes, KeyResults)
	if err != nil {
		return err
	}
	*p = Plan(v)
	p.absent = absent
	return nil
}

func (p Plan) MarshalJSON() ([]byte, error) {
	type plain Plan
	return encodeRecord(plain(p), p.absent)
}

// Require returns an error wrapping ErrMissingField if any of keys was absent
// from the decoded record.
func (p Plan) Require(keys ...string) error {
	return require(p.absent, "plans[].", keys)
}

// decodeRecord decodes b into v and lists which of keys b lacks.
func decodeRecord(b []byte, v any, keys ...string) ([]string, error) {
	var present map[string]json.RawMessage
	if err := json.Unmarshal(b, &present); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return nil, err
	}
	var absent []string
	for _, k := range keys {
		if _, ok := present[k]; !ok {
			absent = append(absent, k)
		}
	}
	return absent, nil
}

// encodeRecord encodes v leaving out the keys it was decoded without.
func encodeRecord(v any, absent []string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || len(absent) == 0 {
		return b, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	for _, k := range absent {
		delete(fields, k)
	}
	return json.Marshal(fields)
}

func require(absent []string, prefix string, keys []string) error {
	for _, k := range keys {
		if slices.Contains(absent, k) {
			return missing(prefix + k)
		}
	}
	return nil
}

// HasResults reports whether the plan check has finished analysis. The
// server leaves results empty (or null) until then.
func (p Plan) HasResults() bool {
	raw := bytes.TrimSpace(p.Results)
	switch string(raw) {
	case "", "null", "false", "0", `""`, "[]", "{}":
		return false
	}
	// Whitespace-only containers such as "[ ]" are still empty.
	if len(raw) >= 2 && (raw[0] == '[' || raw[0] == '{') {
		return len(bytes.TrimSpace(raw[1:len(raw)-1])) > 0
	}
	return true
}

// File describes one data file attached to a plan check.
type File struct {
	Filename string `json:"filename"`
}

type fileList struct {
	Data []File `json:"data"`
}

// PlanDetail is the subset of the plan-check details document the tools read.
type PlanDetail struct {
	Settings *DetailSettings `json:"settings"`
	Data     *DetailData     `json:"data"`
}

// DetailSettings holds the plan settings block of a details document.
type DetailSettings struct {
	PlanDICOM *PlanDICOM `json:"plan_dicom"`
}

// PlanDICOM identifies the DICOM RT plan the check was run on.
type PlanDICOM struct {
	SOPInstance *string `json:"sopinst"`
}

// DetailData holds the computed data block of a details document.
type DetailData struct {
	FractionGroupInfo *FractionGroupInfo `json:"fractionGroup_info"`
}

// FractionGroupInfo maps fraction group ids to their groups.
type FractionGroupInfo struct {
	Groups map[string]*FractionGroup `json:"fractionGroup_num2info_dict"`
}

// FractionGroup is a set of beams delivered on one treatment machine.
type FractionGroup struct {
	MachineName *string                  `json:"TreatmentMachineName"`
	BeamInfo    map[string]*BeamInfo     `json:"beam_num2info_dict"`
	Meterset    map[string]*BeamMeterset `json:"beam_num2meterset_dict"`
}

// BeamInfo is the planned beam description; only the energy is read.
type BeamInfo struct {
	Energy *float64 `json:"energy_int"`
}

// BeamMeterset is the beam meterset in MU.
type BeamMeterset struct {
	Value *float64 `json:"value"`
}

// Beam is one treatment beam with its nominal energy (MV) and meterset (MU).
// HasEnergy is false for a meterset beam missing from the info dict.
type Beam struct {
	Number    string
	Energy    float64
	HasEnergy bool
	MU        float64
}

// SOPInstance returns the plan's DICOM SOP instance UID.
func (d *PlanDetail) SOPInstance() (string, error) {
	switch {
	case d == nil || d.Settings == nil:
		return "", missing("settings")
	case d.Settings.PlanDICOM == nil:
		return "", missing("settings.plan_dicom")
	case d.Settings.PlanDICOM.SOPInstance == nil:
		return "", missing("settings.plan_dicom.sopinst")
	}
	return *d.Settings.PlanDICOM.SOPInstance, nil
}

// FractionGroupIDs returns the fraction group ids in ascending numeric order.
func (d *PlanDetail) FractionGroupIDs() ([]string, error) {
	switch {
	case d == nil || d.Data == nil:
		return nil, missing("data")
	case d.Data.FractionGroupInfo == nil:
		return nil, missing("data.fractionGroup_info")
	case d.Data.FractionGroupInfo.Groups == nil:
		return nil, missing("data.fractionGroup_info.fractionGroup_num2info_dict")
	}
	return SortedKeys(d.Data.FractionGroupInfo.Groups), nil
}

// FractionGroup returns the group with the given id.
func (d *PlanDetail) FractionGroup(id string) (*FractionGroup, error) {
	ids, err := d.FractionGroupIDs()
	if err != nil {
		return nil, err
	}
	if !slices.Contains(ids, id) || d.Data.FractionGroupInfo.Groups[id] == nil {
		return nil, missing("fractionGroup_num2info_dict." + id)
	}
	return d.Data.FractionGroupInfo.Groups[id], nil
}

// Machine returns the treatment machine name of the group.
func (g *FractionGroup) Machine() (string, error) {
	if g.MachineName == nil {
		return "", missing("TreatmentMachineName")
	}
	return *g.MachineName, nil
}

// Beams pairs each meterset entry with the energy of the same beam number,
// in ascending numeric beam order. Beams with no meterset carry no MU and are
// left out; a meterset beam with no info entry keeps its MU without an energy.
func (g *FractionGroup) Beams() ([]Beam, error) {
	if g.BeamInfo == nil {
		return nil, missing("beam_num2info_dict")
	}
	if g.Meterset == nil {
		return nil, missing("beam_num2meterset_dict")
	}
	for _, num := range SortedKeys(g.BeamInfo) {
		if info := g.BeamInfo[num]; info == nil || info.Energy == nil {
			return nil, missing("beam_num2info_dict." + num + ".energy_int")
		}
	}

	beams := make([]Beam, 0, len(g.Meterset))
	for _, num := range SortedKeys(g.Meterset) {
		ms := g.Meterset[num]
		if ms == nil || ms.Value == nil {
			return nil, missing("beam_num2meterset_dict." + num + ".value")
		}
		b := Beam{Number: num, MU: *ms.Value}
		if info, ok := g.BeamInfo[num]; ok {
			b.Energy, b.HasEnergy = *info.Energy, true
		}
		beams = append(beams, b)
	}
	return beams, nil
}

// SortedKeys returns the keys of m in ascending numeric order. Keys that are
// not integers sort after numeric ones, lexically.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		ai, aerr := strconv.Atoi(a)
		bi, berr := strconv.Atoi(b)
		switch {
		case aerr == nil && berr == nil:
			return cmp.Compare(ai, bi)
		case aerr == nil:
			return -1
		case berr == nil:
			return 1
		}
		return strings.Compare(a, b)
	})
	return keys
}
