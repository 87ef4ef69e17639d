package engine

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEvaluateBeforeAnyStep(t *testing.T) {
	env, agent := createTestAgent(t, []string{".*", ".."}, Position{X: 0, Y: 0}, 50, DefaultTuning())

	m, err := Evaluate(env, agent)
	if !errors.Is(err, ErrDivisionUndefined) {
		t.Fatalf("Expected ErrDivisionUndefined, got %v", err)
	}
	if m == nil {
		t.Fatal("Expected a metrics record alongside the error")
	}
	p := m.Performance
	if !p.CoverageEfficiency.Defined || p.CoverageEfficiency.Value != 1 {
		t.Errorf("Expected coverage 1 with only the start cell, got %v", p.CoverageEfficiency)
	}
	if !p.DirtCleanedPerStep.Defined || p.DirtCleanedPerStep.Value != 0 {
		t.Errorf("Expected 0 dirt per step, got %v", p.DirtCleanedPerStep)
	}
	if !p.EnergyPerStep.Defined || p.EnergyPerStep.Value != 0 {
		t.Errorf("Expected 0 energy per step, got %v", p.EnergyPerStep)
	}
	if !p.PercentDirtCleaned.Defined || p.PercentDirtCleaned.Value != 0 {
		t.Errorf("Expected 0%% dirt cleaned, got %v", p.PercentDirtCleaned)
	}
	if m.Final.TotalSteps != 1 {
		t.Errorf("Expected the start cell to count as one step, got %d", m.Final.TotalSteps)
	}
	if !strings.Contains(err.Error(), "energy_per_dirt_spot") {
		t.Errorf("Expected error to name energy_per_dirt_spot, got %v", err)
	}
}

func TestEvaluateNoDirtCleaned(t *testing.T) {
	env, agent := createTestAgent(t, []string{"...", "..."}, Position{X: 0, Y: 0}, 50, DefaultTuning())
	agent.Step()

	m, err := Evaluate(env, agent)
	if !errors.Is(err, ErrDivisionUndefined) {
		t.Fatalf("Expected ErrDivisionUndefined, got %v", err)
	}
	if m.Performance.EnergyPerDirtSpot.Defined || m.Performance.PercentEnergyPerDirtSpot.Defined {
		t.Error("Per-dirt ratios must be undefined when nothing was cleaned")
	}
	if m.Performance.PercentDirtCleaned.Defined {
		t.Error("Percent cleaned must be undefined with no initial dirt")
	}
	if !m.Performance.EnergyPerStep.Defined {
		t.Error("Energy per step should be defined after a step")
	}

	undefined := m.Undefined()
	want := []string{"percent_dirt_cleaned", "energy_per_dirt_spot", "percent_energy_per_dirt_spot"}
	if len(undefined) != len(want) {
		t.Fatalf("Expected %v undefined, got %v", want, undefined)
	}
}

func TestEvaluateValues(t *testing.T) {
	env, agent := createTestAgent(t, []string{".*", ".."}, Position{X: 0, Y: 0}, 10, moveOnlyTuning())
	agent.Step()

	m, err := Evaluate(env, agent)
	if err != nil {
		t.Fatalf("Expected every ratio defined, got %v", err)
	}

	if m.Initial.DirtySpots != 1 || m.Initial.Obstacles != 0 || m.Initial.Energy != 10 {
		t.Errorf("Unexpected initial conditions: %+v", m.Initial)
	}
	f := m.Final
	if f.PendingDirt != 0 || f.DirtCleaned != 1 || f.TotalSteps != 2 || f.UniqueCellsVisited != 2 {
		t.Errorf("Unexpected final state: %+v", f)
	}
	if f.Energy != 9 || f.EnergyConsumed != 1 {
		t.Errorf("Expected energy 9 consumed 1, got %v and %v", f.Energy, f.EnergyConsumed)
	}

	p := m.Performance
	checks := []struct {
		name string
		got  Ratio
		want float64
	}{
		{"percent_dirt_cleaned", p.PercentDirtCleaned, 100},
		{"percent_energy_consumed", p.PercentEnergyConsumed, 10},
		{"dirt_cleaned_per_step", p.DirtCleanedPerStep, 0.5},
		{"coverage_efficiency", p.CoverageEfficiency, 1},
		{"energy_per_dirt_spot", p.EnergyPerDirtSpot, 1},
		{"energy_per_step", p.EnergyPerStep, 0.5},
		{"percent_energy_per_dirt_spot", p.PercentEnergyPerDirtSpot, 10},
		{"percent_energy_per_step", p.PercentEnergyPerStep, 5},
	}
	for _, c := range checks {
		if !c.got.Defined || !approx(c.got.Value, c.want) {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestEvaluateCoverageNeverExceedsOne(t *testing.T) {
	layout := []string{".....", ".....", ".....", ".....", "....."}
	env, agent := createTestAgent(t, layout, Position{X: 2, Y: 2}, 100, moveOnlyTuning())

	for i := 1; i <= 6; i++ {
		agent.Step()
		m, _ := Evaluate(env, agent)
		cov := m.Performance.CoverageEfficiency
		if !cov.Defined || cov.Value > 1 {
			t.Fatalf("step %d: coverage must be defined and at most 1, got %v", i, cov)
		}
		if m.Final.TotalSteps != i+1 {
			t.Errorf("step %d: expected %d path cells, got %d", i, i+1, m.Final.TotalSteps)
		}
	}
}

func TestRatioJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Ratio `json:"a"`
		B Ratio `json:"b"`
	}{A: Ratio{Value: 1.5, Defined: true}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"a":1.5,"b":null}` {
		t.Errorf("Unexpected JSON: %s", data)
	}

	var back struct {
		A Ratio `json:"a"`
		B Ratio `json:"b"`
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !back.A.Defined || back.A.Value != 1.5 || back.B.Defined {
		t.Errorf("Unexpected round trip: %+v", back)
	}
	if back.B.String() != "undefined" {
		t.Errorf("Expected undefined string, got %s", back.B.String())
	}
}
