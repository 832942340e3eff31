package ratedist

import "testing"

func TestConstantFallsBackToTarget(t *testing.T) {
	c := &Constant{}
	c.Initialize(map[string]any{})
	if got := c.GetRate(0, 42); got != 42 {
		t.Fatalf("GetRate = %v, want 42", got)
	}
	if got := c.GetRate(100, 42); got != 42 {
		t.Fatalf("GetRate must be constant across t, got %v", got)
	}
}

func TestConstantExplicitRPS(t *testing.T) {
	c := &Constant{}
	c.Initialize(map[string]any{"rps": 10.0})
	if !c.Validate() {
		t.Fatalf("expected valid")
	}
	if got := c.GetRate(0, 42); got != 10 {
		t.Fatalf("GetRate = %v, want 10", got)
	}
}

func TestConstantRejectsNonPositiveRPS(t *testing.T) {
	c := &Constant{}
	c.Initialize(map[string]any{"rps": -1.0})
	if c.Validate() {
		t.Fatalf("expected invalid for negative rps")
	}
}

func TestLinearRampLaws(t *testing.T) {
	l := &Linear{}
	l.Initialize(map[string]any{"ramp_duration": 60.0})
	if got := l.GetRate(0, 100); got != 0 {
		t.Fatalf("GetRate(0) = %v, want 0", got)
	}
	if got := l.GetRate(60, 100); got != 100 {
		t.Fatalf("GetRate(ramp) = %v, want 100", got)
	}
	if got := l.GetRate(120, 100); got != 100 {
		t.Fatalf("GetRate beyond ramp = %v, want 100", got)
	}
	prev := 0.0
	for _, tm := range []float64{0, 10, 20, 30, 40, 50, 60} {
		got := l.GetRate(tm, 100)
		if got < prev {
			t.Fatalf("linear ramp not monotonic at t=%v", tm)
		}
		prev = got
	}
}

func TestStepUsesLastAppliedStepOrDefault(t *testing.T) {
	s := &Step{}
	s.Initialize(map[string]any{"steps": "[[10, 50], [30, 100]]", "default_rps": 10.0})
	cases := map[float64]float64{5: 10, 10: 50, 20: 50, 30: 100, 40: 100}
	for at, want := range cases {
		if got := s.GetRate(at, 999); got != want {
			t.Fatalf("GetRate(%v) = %v, want %v", at, got, want)
		}
	}
}

func TestStepRejectsNonMonotonicTimes(t *testing.T) {
	s := &Step{}
	s.Initialize(map[string]any{"steps": "[[10, 50], [5, 10]]"})
	if s.Validate() {
		t.Fatalf("expected invalid for non-monotonic step times")
	}
}

func TestSinePeriodicityAndBounds(t *testing.T) {
	s := &Sine{}
	s.Initialize(map[string]any{"period": 100.0, "amplitude": 0.5, "base_rps": 10.0})
	a := s.GetRate(5, 999)
	b := s.GetRate(105, 999)
	if diff := a - b; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("sine not periodic: got %v vs %v", a, b)
	}
	for _, tm := range []float64{0, 25, 50, 75} {
		rate := s.GetRate(tm, 999)
		if rate < 10*(1-0.5)-1e-9 || rate > 10*(1+0.5)+1e-9 {
			t.Fatalf("sine rate %v out of bounds at t=%v", rate, tm)
		}
	}
}

func TestMixSingleComponentEqualsComponent(t *testing.T) {
	m := newMix(Default()).(*Mix)
	m.Initialize(map[string]any{
		"components": []any{
			map[string]any{"weight": 2.0, "distribution": map[string]any{"name": "constant", "config": map[string]any{"rps": 10.0}}},
		},
	})
	if !m.Validate() {
		t.Fatalf("expected valid mix")
	}
	if got := m.GetRate(0, 999); got != 10 {
		t.Fatalf("GetRate = %v, want 10", got)
	}
}

func TestMixValidationRejectsNegativeWeight(t *testing.T) {
	errs := ValidateConfig(Default(), "mix", map[string]any{
		"components": []any{
			map[string]any{"weight": -1.0, "distribution": map[string]any{"name": "constant", "config": map[string]any{}}},
		},
	}, "config")
	found := false
	for _, e := range errs {
		if e == "components[0].weight must be > 0" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected components[0].weight error, got %v", errs)
	}
}

func TestSequenceRepeatPeriodicity(t *testing.T) {
	s := newSequence(Default()).(*Sequence)
	s.Initialize(map[string]any{
		"post_behavior": "repeat",
		"stages": []any{
			map[string]any{"duration_seconds": 10.0, "distribution": map[string]any{"name": "constant", "config": map[string]any{"rps": 10.0}}},
			map[string]any{"duration_seconds": 10.0, "distribution": map[string]any{"name": "constant", "config": map[string]any{"rps": 30.0}}},
		},
	})
	if !s.Validate() {
		t.Fatalf("expected valid sequence")
	}
	cases := map[float64]float64{5: 10, 15: 30, 25: 10, 35: 30}
	for at, want := range cases {
		if got := s.GetRate(at, 999); got != want {
			t.Fatalf("GetRate(%v) = %v, want %v", at, got, want)
		}
	}
}

func TestSequenceHoldLastAfterStages(t *testing.T) {
	s := newSequence(Default()).(*Sequence)
	s.Initialize(map[string]any{
		"stages": []any{
			map[string]any{"duration_seconds": 10.0, "distribution": map[string]any{"name": "constant", "config": map[string]any{"rps": 10.0}}},
		},
	})
	if got := s.GetRate(50, 999); got != 10 {
		t.Fatalf("GetRate hold_last = %v, want 10", got)
	}
}

func TestSequenceZeroAfterStages(t *testing.T) {
	s := newSequence(Default()).(*Sequence)
	s.Initialize(map[string]any{
		"post_behavior": "zero",
		"stages": []any{
			map[string]any{"duration_seconds": 10.0, "distribution": map[string]any{"name": "constant", "config": map[string]any{"rps": 10.0}}},
		},
	})
	if got := s.GetRate(50, 999); got != 0 {
		t.Fatalf("GetRate zero post_behavior = %v, want 0", got)
	}
}

func TestRegistryInstantiateUnknownShape(t *testing.T) {
	r := NewRegistry()
	_, err := r.Instantiate("nope", nil)
	if err == nil {
		t.Fatalf("expected error for unknown shape")
	}
}

func TestGetRateNeverNegative(t *testing.T) {
	shapes := []Shape{&Constant{}, &Linear{}, &Step{}, &Sine{}}
	for _, s := range shapes {
		s.Initialize(map[string]any{})
		if got := s.GetRate(10, 5); got < 0 {
			t.Fatalf("%T returned negative rate %v", s, got)
		}
	}
}
