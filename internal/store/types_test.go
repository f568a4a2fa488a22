package store

import (
	"encoding/json"
	"testing"
	"time"
)

func validRecord() *RunRecord {
	return NewRunRecord(
		"run-1",
		"theis",
		[]string{"T", "S"},
		[]float64{-2.3, -4.0},
		12.5,
		0.0031,
		"converged",
		17,
		RunConfig{CasePath: "case.yaml", Starts: 4, Workers: 2, Seed: 42},
	)
}

func TestRunRecord_JSONSerialization(t *testing.T) {
	record := validRecord()

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("failed to marshal record: %v", err)
	}

	var loaded RunRecord
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("failed to unmarshal record: %v", err)
	}

	if loaded.RunID != record.RunID {
		t.Errorf("expected runID %q, got %q", record.RunID, loaded.RunID)
	}
	if loaded.Model != record.Model {
		t.Errorf("expected model %q, got %q", record.Model, loaded.Model)
	}
	if len(loaded.BestParams) != 2 || loaded.BestParams[0] != -2.3 {
		t.Errorf("best params not preserved: %v", loaded.BestParams)
	}
	if loaded.FinalCost != record.FinalCost {
		t.Errorf("expected final cost %g, got %g", record.FinalCost, loaded.FinalCost)
	}
	if loaded.Config.CasePath != "case.yaml" {
		t.Errorf("config not preserved: %+v", loaded.Config)
	}
}

func TestRunRecord_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunRecord)
	}{
		{"empty runID", func(r *RunRecord) { r.RunID = "" }},
		{"empty model", func(r *RunRecord) { r.Model = "" }},
		{"empty params", func(r *RunRecord) { r.BestParams = nil }},
		{"name/param mismatch", func(r *RunRecord) { r.ParamNames = []string{"T"} }},
		{"empty status", func(r *RunRecord) { r.Status = "" }},
		{"negative iterations", func(r *RunRecord) { r.Iterations = -1 }},
		{"zero timestamp", func(r *RunRecord) { r.Timestamp = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := validRecord()
			tt.mutate(record)
			if err := record.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := validRecord().Validate(); err != nil {
		t.Errorf("valid record should pass: %v", err)
	}
}

func TestRunRecord_ToInfo(t *testing.T) {
	record := validRecord()
	info := record.ToInfo()

	if info.RunID != record.RunID || info.Model != record.Model {
		t.Errorf("identity fields lost: %+v", info)
	}
	if info.FinalCost != record.FinalCost || info.Iterations != record.Iterations {
		t.Errorf("summary fields lost: %+v", info)
	}
	if info.CasePath != "case.yaml" {
		t.Errorf("expected case path case.yaml, got %q", info.CasePath)
	}
}

func TestRunRecord_IsCompatible(t *testing.T) {
	record := validRecord()
	config := RunConfig{CasePath: "case.yaml"}

	if err := record.IsCompatible(config, "theis", []string{"T", "S"}); err != nil {
		t.Errorf("matching run should be compatible: %v", err)
	}

	if err := record.IsCompatible(RunConfig{CasePath: "other.yaml"}, "theis", []string{"T", "S"}); err == nil {
		t.Error("expected case path mismatch")
	}
	if err := record.IsCompatible(config, "expdecay", []string{"T", "S"}); err == nil {
		t.Error("expected model mismatch")
	}
	if err := record.IsCompatible(config, "theis", []string{"T"}); err == nil {
		t.Error("expected parameter count mismatch")
	}
	if err := record.IsCompatible(config, "theis", []string{"T", "K"}); err == nil {
		t.Error("expected parameter name mismatch")
	}
}
