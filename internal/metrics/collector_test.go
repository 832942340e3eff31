package metrics_test

import (
	"testing"
	"time"

	"github.com/origo-stack/performance-simulator/internal/metrics"
)

func TestCalculatePercentilesEmptySlice(t *testing.T) {
	result := metrics.CalculatePercentiles(nil)
	if result == nil {
		t.Fatal("expected non-nil zero-value result for empty input")
	}
	if result.Min != 0 || result.Max != 0 {
		t.Errorf("expected zeroed result, got %+v", result)
	}
}

func TestCalculatePercentilesSingleValue(t *testing.T) {
	result := metrics.CalculatePercentiles([]time.Duration{100 * time.Millisecond})
	if result.Min != 100*time.Millisecond || result.Max != 100*time.Millisecond {
		t.Errorf("expected min=max=100ms, got %+v", result)
	}
	if result.StdDev != 0 {
		t.Errorf("stddev of a single sample must be 0, got %v", result.StdDev)
	}
}

func TestCalculatePercentilesMultipleValues(t *testing.T) {
	samples := []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		150 * time.Millisecond,
		200 * time.Millisecond,
		250 * time.Millisecond,
	}
	result := metrics.CalculatePercentiles(samples)

	if result.Min != 50*time.Millisecond {
		t.Errorf("Min = %v, want 50ms", result.Min)
	}
	if result.Max != 250*time.Millisecond {
		t.Errorf("Max = %v, want 250ms", result.Max)
	}
	if result.Median != 150*time.Millisecond {
		t.Errorf("Median = %v, want 150ms", result.Median)
	}
	if result.P95 < result.Median {
		t.Errorf("P95 (%v) should be >= Median (%v)", result.P95, result.Median)
	}
}

func TestCalculatePercentilesUnsortedInputIsSorted(t *testing.T) {
	samples := []time.Duration{
		300 * time.Millisecond,
		10 * time.Millisecond,
		100 * time.Millisecond,
	}
	result := metrics.CalculatePercentiles(samples)
	if result.Min != 10*time.Millisecond {
		t.Errorf("Min = %v, want 10ms regardless of input order", result.Min)
	}
	if result.Max != 300*time.Millisecond {
		t.Errorf("Max = %v, want 300ms regardless of input order", result.Max)
	}
}
