package planstats

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mrsinham/mobiuskit/internal/mobius"
	"github.com/mrsinham/mobiuskit/internal/mobius/mobiustest"
)

// fakeSource serves plan details from memory. onFetch, when set, runs before
// every fetch with the 1-based call number.
type fakeSource struct {
	details map[string]string
	calls   int
	onFetch func(call int)
}

func (f *fakeSource) PlanDetail(ctx context.Context, requestID string) (*mobius.PlanDetail, error) {
	f.calls++
	if f.onFetch != nil {
		f.onFetch(f.calls)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, ok := f.details[requestID]
	if !ok {
		return nil, errors.New("404 not found")
	}
	var d mobius.PlanDetail
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func beam(mu, energy float64) mobiustest.Beam {
	return mobiustest.Beam{Number: "1", Energy: energy, MU: mu}
}

func TestAggregator_Run(t *testing.T) {
	src := &fakeSource{details: map[string]string{
		"a1": mobiustest.TrueBeam("sop-a1", beam(200, 6)),
		"a2": mobiustest.TrueBeam("sop-a2", beam(400, 10)),
		"b1": mobiustest.TrueBeam("sop-a1", beam(200, 6)), // same plan checked twice
		"c1": mobiustest.TrueBeam("sop-c1", beam(1000, 6)),
	}}
	patients := []mobius.Patient{
		{Name: "Alpha", ID: "1", Plans: []mobius.Plan{
			mobiustest.Plan("a1", "3DC Brain", true),
			mobiustest.Plan("a2", "VMA Prostate", true),
			mobiustest.Plan("a3", "pending", false),
		}},
		{Name: "Beta", ID: "2", Plans: []mobius.Plan{mobiustest.Plan("b1", "3DC Brain", true)}},
		{Name: "Gamma", ID: "3", Plans: []mobius.Plan{mobiustest.Plan("c1", "SRS Mets", true)}},
	}

	var out bytes.Buffer
	agg := &Aggregator{Source: src, Out: &out}
	sum, err := agg.Run(context.Background(), patients)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sum.Interrupted {
		t.Error("Run should not be interrupted")
	}
	if src.calls != 4 {
		t.Errorf("Expected 4 detail fetches (pending plan skipped), got %d", src.calls)
	}
	if len(sum.Stats.Entries) != 3 {
		t.Errorf("Expected 3 recorded plans, got %+v", sum.Stats.Entries)
	}
	wantProgress := "Scanning patient 1 of 3\nScanning patient 2 of 3\nScanning patient 3 of 3\n"
	if out.String() != wantProgress {
		t.Errorf("Progress output = %q, want %q", out.String(), wantProgress)
	}
	if sum.Outcomes[0].Recorded != 2 || sum.Outcomes[1].Recorded != 0 || sum.Outcomes[2].Recorded != 1 {
		t.Errorf("Unexpected outcomes: %+v", sum.Outcomes)
	}
}

func TestAggregator_MissingKeySkipsRestOfPatient(t *testing.T) {
	src := &fakeSource{details: map[string]string{
		"a1":  mobiustest.TrueBeam("sop-a1", beam(100, 6)),
		"bad": `{"settings": {"plan_dicom": {"sopinst": "sop-bad"}}}`,
		"a3":  mobiustest.TrueBeam("sop-a3", beam(300, 6)),
		"b1":  mobiustest.TrueBeam("sop-b1", beam(500, 10)),
	}}
	patients := []mobius.Patient{
		{Name: "Alpha", ID: "1", Plans: []mobius.Plan{
			mobiustest.Plan("a1", "VMA 1", true),
			mobiustest.Plan("bad", "VMA 2", true),
			mobiustest.Plan("a3", "VMA 3", true),
		}},
		{Name: "Beta", ID: "2", Plans: []mobius.Plan{mobiustest.Plan("b1", "SBRT Lung", true)}},
	}

	sum, err := (&Aggregator{Source: src}).Run(context.Background(), patients)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var plans []string
	for _, e := range sum.Stats.Entries {
		plans = append(plans, e.Plan)
	}
	if got := strings.Join(plans, ","); got != "VMA 1,SBRT Lung" {
		t.Errorf("Recorded plans = %s, want VMA 1,SBRT Lung", got)
	}
	if sum.Skipped() != 1 {
		t.Errorf("Expected 1 skipped patient, got %d", sum.Skipped())
	}
	o := sum.Outcomes[0]
	if !o.Skipped || !errors.Is(o.Reason, mobius.ErrMissingField) || o.Recorded != 1 {
		t.Errorf("Unexpected outcome for Alpha: %+v", o)
	}
	if src.calls != 3 {
		t.Errorf("Expected a3 not to be fetched, got %d fetches", src.calls)
	}
}

func TestAggregator_FetchErrorIsFatal(t *testing.T) {
	src := &fakeSource{details: map[string]string{}}
	patients := []mobius.Patient{
		{Name: "Alpha", ID: "1", Plans: []mobius.Plan{mobiustest.Plan("gone", "VMA", true)}},
		{Name: "Beta", ID: "2", Plans: []mobius.Plan{mobiustest.Plan("gone2", "VMA", true)}},
	}

	sum, err := (&Aggregator{Source: src}).Run(context.Background(), patients)
	if err == nil {
		t.Fatal("Expected fetch error to stop the run")
	}
	if src.calls != 1 {
		t.Errorf("Expected run to stop after first failure, got %d fetches", src.calls)
	}
	if sum == nil || sum.Interrupted {
		t.Errorf("Unexpected summary: %+v", sum)
	}
}

func TestAggregator_InterruptKeepsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		details: map[string]string{
			"a1": mobiustest.TrueBeam("sop-a1", beam(100, 6)),
			"b1": mobiustest.TrueBeam("sop-b1", beam(200, 6)),
			"c1": mobiustest.TrueBeam("sop-c1", beam(300, 6)),
		},
		onFetch: func(call int) {
			if call == 2 {
				cancel()
			}
		},
	}
	patients := []mobius.Patient{
		{Name: "Alpha", ID: "1", Plans: []mobius.Plan{mobiustest.Plan("a1", "VMA", true)}},
		{Name: "Beta", ID: "2", Plans: []mobius.Plan{mobiustest.Plan("b1", "VMA", true)}},
		{Name: "Gamma", ID: "3", Plans: []mobius.Plan{mobiustest.Plan("c1", "VMA", true)}},
	}

	sum, err := (&Aggregator{Source: src}).Run(ctx, patients)
	if err != nil {
		t.Fatalf("Interrupt should not be an error, got %v", err)
	}
	if !sum.Interrupted {
		t.Error("Expected Interrupted to be set")
	}
	if len(sum.Stats.Entries) != 1 || sum.Stats.Entries[0].Patient != "Alpha" {
		t.Errorf("Expected only Alpha recorded, got %+v", sum.Stats.Entries)
	}
	if src.calls != 2 {
		t.Errorf("Expected Gamma not to be scanned, got %d fetches", src.calls)
	}
}

func TestAggregator_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	src := &fakeSource{}
	sum, err := (&Aggregator{Source: src, Out: &out}).Run(ctx, []mobius.Patient{{Name: "Alpha"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !sum.Interrupted || out.Len() != 0 || src.calls != 0 {
		t.Errorf("Expected nothing scanned: interrupted=%v out=%q calls=%d", sum.Interrupted, out.String(), src.calls)
	}
}

func TestAggregator_MissingPlanListKeySkipsPatient(t *testing.T) {
	src := &fakeSource{details: map[string]string{
		"a1": mobiustest.TrueBeam("sop-a1", beam(100, 6)),
		"c1": mobiustest.TrueBeam("sop-c1", beam(300, 6)),
	}}
	body := `{"patients": [
		{"patientName": "Alpha", "patientId": "1", "plans": [{"request_cid": "a1", "results": {"x": 1}}]},
		{"patientName": "Beta", "patientId": "2", "plans": [{"notes": "VMA", "results": {"x": 1}}]},
		{"patientName": "Gamma", "patientId": "3", "plans": [{"request_cid": "c1", "notes": "VMA", "results": {"x": 1}}]}
	]}`
	var list mobius.PlanList
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	sum, err := (&Aggregator{Source: src}).Run(context.Background(), list.Patients)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(sum.Stats.Entries) != 1 || sum.Stats.Entries[0].Patient != "Gamma" {
		t.Errorf("Expected only Gamma recorded, got %+v", sum.Stats.Entries)
	}
	if sum.Skipped() != 2 {
		t.Errorf("Expected Alpha and Beta skipped, got %d", sum.Skipped())
	}
	if src.calls != 2 {
		t.Errorf("Beta's plan has no request id and should not be fetched, got %d fetches", src.calls)
	}
	for i, want := range []string{"plans[].notes", "plans[].request_cid"} {
		o := sum.Outcomes[i]
		if !errors.Is(o.Reason, mobius.ErrMissingField) || !strings.Contains(o.Reason.Error(), want) {
			t.Errorf("Outcome %d reason = %v, want missing %s", i, o.Reason, want)
		}
	}
}

func TestAggregator_MissingPatientKeys(t *testing.T) {
	tests := []struct {
		name    string
		patient string
	}{
		{"no plans", `{"patientName": "Alpha", "patientId": "1"}`},
		{"no results", `{"patientName": "Alpha", "patientId": "1", "plans": [{"request_cid": "a1", "notes": "VMA"}]}`},
		{"no name", `{"patientId": "1", "plans": [{"request_cid": "a1", "notes": "VMA", "results": {"x": 1}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p mobius.Patient
			if err := json.Unmarshal([]byte(tt.patient), &p); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			src := &fakeSource{details: map[string]string{"a1": mobiustest.TrueBeam("sop-a1", beam(100, 6))}}

			sum, err := (&Aggregator{Source: src}).Run(context.Background(), []mobius.Patient{p})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if sum.Skipped() != 1 || len(sum.Stats.Entries) != 0 {
				t.Errorf("Expected patient skipped, got skipped=%d entries=%+v", sum.Skipped(), sum.Stats.Entries)
			}
		})
	}
}

func TestAggregator_InterruptMidPatientCountsPatient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		details: map[string]string{
			"a1": mobiustest.TrueBeam("sop-a1", beam(100, 6)),
			"b1": mobiustest.TrueBeam("sop-b1", beam(200, 6)),
			"b2": mobiustest.TrueBeam("sop-b2", beam(300, 6)),
		},
		onFetch: func(call int) {
			if call == 3 {
				cancel()
			}
		},
	}
	patients := []mobius.Patient{
		{Name: "Alpha", ID: "1", Plans: []mobius.Plan{mobiustest.Plan("a1", "VMA", true)}},
		{Name: "Beta", ID: "2", Plans: []mobius.Plan{
			mobiustest.Plan("b1", "VMA", true),
			mobiustest.Plan("b2", "SRS", true),
		}},
		{Name: "Gamma", ID: "3", Plans: []mobius.Plan{mobiustest.Plan("c1", "VMA", true)}},
	}

	sum, err := (&Aggregator{Source: src}).Run(ctx, patients)
	if err != nil {
		t.Fatalf("Interrupt should not be an error, got %v", err)
	}
	if !sum.Interrupted || len(sum.Outcomes) != 2 {
		t.Fatalf("Expected 2 outcomes of an interrupted run, got interrupted=%v outcomes=%+v", sum.Interrupted, sum.Outcomes)
	}
	if beta := sum.Outcomes[1]; beta.Patient != "Beta" || beta.Recorded != 1 {
		t.Errorf("Unexpected partial outcome %+v", beta)
	}
	if r := BuildReport(sum); r.PatientsScanned != 2 {
		t.Errorf("PatientsScanned = %d, want 2", r.PatientsScanned)
	}
}
