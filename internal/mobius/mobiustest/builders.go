package mobiustest

import (
	"encoding/json"

	"github.com/mrsinham/mobiuskit/internal/mobius"
)

// Beam describes one beam of a fraction group.
type Beam struct {
	Number string
	Energy float64
	MU     float64
}

// Group describes one fraction group of a plan.
type Group struct {
	ID      string
	Machine string
	Beams   []Beam
}

// Plan returns a plan-check record. A completed plan carries a non-empty
// results object.
func Plan(requestID, notes string, completed bool) mobius.Plan {
	p := mobius.Plan{RequestID: requestID, Notes: notes, Results: json.RawMessage(`{}`)}
	if completed {
		p.Results = json.RawMessage(`{"status":"complete"}`)
	}
	return p
}

// Detail builds a plan-check details document with the given SOP instance
// UID and fraction groups.
func Detail(sopinst string, groups ...Group) string {
	g := make(map[string]any, len(groups))
	for _, grp := range groups {
		info := make(map[string]any, len(grp.Beams))
		meterset := make(map[string]any, len(grp.Beams))
		for _, b := range grp.Beams {
			info[b.Number] = map[string]any{"energy_int": b.Energy}
			meterset[b.Number] = map[string]any{"value": b.MU}
		}
		g[grp.ID] = map[string]any{
			"TreatmentMachineName":   grp.Machine,
			"beam_num2info_dict":     info,
			"beam_num2meterset_dict": meterset,
		}
	}
	doc := map[string]any{
		"settings": map[string]any{
			"plan_dicom": map[string]any{"sopinst": sopinst},
		},
		"data": map[string]any{
			"fractionGroup_info": map[string]any{
				"fractionGroup_num2info_dict": g,
			},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// TrueBeam is a single-group detail on a TrueBeam machine.
func TrueBeam(sopinst string, beams ...Beam) string {
	return Detail(sopinst, Group{ID: "1", Machine: "TrueBeam1", Beams: beams})
}

// Without returns p as if the plan list had omitted the given keys.
func Without(p mobius.Plan, keys ...string) mobius.Plan {
	b, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		panic(err)
	}
	for _, k := range keys {
		delete(fields, k)
	}
	if b, err = json.Marshal(fields); err != nil {
		panic(err)
	}
	var out mobius.Plan
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}
