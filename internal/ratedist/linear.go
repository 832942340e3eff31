package ratedist

// Linear ramps from zero to the target rate over ramp_duration seconds,
// then holds at the target.
type Linear struct {
	rampDuration float64
	parseErr     bool
}

func newLinear() Shape { return &Linear{rampDuration: 60} }

func (l *Linear) Metadata() Metadata {
	return Metadata{
		Name:        "linear",
		Version:     "1.0",
		Description: "Linear ramp from 0 to target RPS over ramp_duration seconds.",
		Parameters: map[string]Parameter{
			"ramp_duration": {Type: "float", Default: 60, Description: "Seconds to reach target RPS.", Required: false},
		},
	}
}

func (l *Linear) Initialize(config map[string]any) {
	l.rampDuration = 60
	if raw, ok := config["ramp_duration"]; ok {
		v, ok := parseFloat(raw)
		if !ok {
			l.parseErr = true
			return
		}
		l.rampDuration = v
	}
}

func (l *Linear) Validate() bool {
	if l.parseErr {
		return false
	}
	return l.rampDuration > 0
}

func (l *Linear) GetRate(elapsedSeconds float64, targetRPS float64) float64 {
	if l.parseErr || l.rampDuration <= 0 {
		return clampNonNegative(targetRPS)
	}
	if elapsedSeconds >= l.rampDuration {
		return clampNonNegative(targetRPS)
	}
	return clampNonNegative((elapsedSeconds / l.rampDuration) * targetRPS)
}
